package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/launchtrace/pkg/launch"
)

// WriteDetail writes the phase timeline of rec and its topN busiest
// processes. topN <= 0 lists every process.
func WriteDetail(w io.Writer, rec launch.MetricsRecord, topN int) error {
	if _, err := fmt.Fprintf(w, "%s (%s, %s %s)\n", rec.File, rec.DisplayName, rec.LaunchType, rec.Category); err != nil {
		return fmt.Errorf("write detail: %w", err)
	}

	phases := newTable(w)
	phases.AppendHeader(table.Row{"Phase", "Chain", "ms"})
	phases.SetColumnConfigs([]table.ColumnConfig{{Name: "ms", Align: text.AlignRight}})

	for _, p := range rec.Phases {
		ms := fmt.Sprintf(msFormat, p.Ms)
		if !p.Resolved {
			ms = noneMarker
		}

		phases.AppendRow(table.Row{p.Name, p.Chain, ms})
	}

	phases.Render()

	procs := rec.Attribution.CPUByProcess
	if topN > 0 && len(procs) > topN {
		procs = procs[:topN]
	}

	if len(procs) == 0 {
		return nil
	}

	cpu := newTable(w)
	cpu.AppendHeader(table.Row{"Process", "PID", "CPU ms", "CPU %"})
	cpu.SetColumnConfigs([]table.ColumnConfig{
		{Name: "CPU ms", Align: text.AlignRight},
		{Name: "CPU %", Align: text.AlignRight},
	})

	for _, p := range procs {
		cpu.AppendRow(table.Row{p.Name, p.PID, fmt.Sprintf(msFormat, p.Ms), fmt.Sprintf("%.2f", p.Percent)})
	}

	cpu.Render()

	return nil
}
