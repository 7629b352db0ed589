// Package report renders batch results as terminal tables.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/launchtrace/pkg/batch"
	"github.com/Sumatoshi-tech/launchtrace/pkg/launch"
)

const (
	msFormat   = "%.3f"
	noneMarker = "-"
)

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

// WriteSummary writes one row per analysed trace followed by the batch
// status lines.
func WriteSummary(w io.Writer, set batch.ResultSet) error {
	title := set.Label
	if set.Device != "" {
		title = strings.TrimSpace(title + " " + set.Device)
	}

	if _, err := fmt.Fprintf(w, "=== %s ===\n", strings.ToUpper(title)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if len(set.Records) > 0 {
		writeLaunches(w, set.Records)
	}

	if len(set.Reactions) > 0 {
		writeReactions(w, set.Reactions)
	}

	return writeStatus(w, set.Summary)
}

func writeLaunches(w io.Writer, records []launch.MetricsRecord) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"App", "Cycle", "Kind", "Type", "Category", "Execution ms", "Missing"})
	tbl.SetColumnConfigs([]table.ColumnConfig{{Name: "Execution ms", Align: text.AlignRight}})

	for _, rec := range records {
		tbl.AppendRow(table.Row{
			rec.DisplayName,
			humanize.Ordinal(rec.Cycle + 1),
			rec.Kind,
			rec.LaunchType,
			rec.Category,
			fmt.Sprintf(msFormat, rec.ExecutionMs),
			orNone(strings.Join(rec.Missing, ", ")),
		})
	}

	tbl.AppendFooter(table.Row{"Total: " + humanize.Comma(int64(len(records))) + " launches"})
	tbl.Render()
}

func writeReactions(w io.Writer, reactions []batch.ReactionRecord) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"App", "Cycle", "Kind", "Package", "Reaction ms"})
	tbl.SetColumnConfigs([]table.ColumnConfig{{Name: "Reaction ms", Align: text.AlignRight}})

	for _, rec := range reactions {
		tbl.AppendRow(table.Row{
			rec.App,
			humanize.Ordinal(rec.Cycle + 1),
			rec.Kind,
			orNone(rec.Package),
			fmt.Sprintf(msFormat, rec.ReactionMs),
		})
	}

	tbl.AppendFooter(table.Row{"Total: " + humanize.Comma(int64(len(reactions))) + " reactions"})
	tbl.Render()
}

func writeStatus(w io.Writer, sum batch.Summary) error {
	status := color.New(color.FgGreen)
	if len(sum.Failed) > 0 {
		status = color.New(color.FgRed)
	}

	if _, err := status.Fprintf(w, "%s of %s traces analysed\n",
		humanize.Comma(int64(sum.Succeeded)), humanize.Comma(int64(sum.Attempted))); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	if sum.Degraded > 0 {
		if _, err := color.New(color.FgYellow).Fprintf(w, "  %s with absent phases\n",
			humanize.Comma(int64(sum.Degraded))); err != nil {
			return fmt.Errorf("write status: %w", err)
		}
	}

	for _, f := range sum.Failed {
		if _, err := color.New(color.FgRed).Fprintf(w, "  - %s: %s\n", f.File, f.Error); err != nil {
			return fmt.Errorf("write status: %w", err)
		}
	}

	return nil
}

func orNone(s string) string {
	if s == "" {
		return noneMarker
	}

	return s
}
