package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/launchtrace/pkg/atrace"
	"github.com/Sumatoshi-tech/launchtrace/pkg/observability"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

const dbExtension = ".db"

// ConvertCommand holds the flags of the convert command.
type ConvertCommand struct {
	globals *Globals
	output  string
	initObs initFunc
}

// NewConvertCommand creates the trace-to-SQLite conversion command.
func NewConvertCommand(globals *Globals) *cobra.Command {
	return newConvertCommandWithDeps(globals, observability.Init)
}

func newConvertCommandWithDeps(globals *Globals, initObs initFunc) *cobra.Command {
	cc := &ConvertCommand{globals: globals, initObs: initObs}

	cmd := &cobra.Command{
		Use:   "convert <trace>",
		Short: "Convert a trace into a SQLite event database",
		Long: `Parse a systrace/atrace capture and write its events to a SQLite database.

The default output is <trace>.db, which "analyze --store sqlite" picks up
instead of re-parsing the trace.`,
		Args: cobra.ExactArgs(1),
		RunE: cc.run,
	}

	cmd.Flags().StringVarP(&cc.output, "output", "o", "", "Database path (default: <trace>.db)")

	return cmd
}

func (cc *ConvertCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := cc.globals.Load()
	if err != nil {
		return err
	}

	providers, stop, err := startObservability(cc.initObs, cfg, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer stop()

	src := args[0]

	dst := cc.output
	if dst == "" {
		dst = src + dbExtension
	}

	ctx := cmd.Context()

	store, err := atrace.LoadFile(ctx, src, atrace.Options{Logger: providers.Logger})
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}
	defer store.Close()

	data := store.Dataset()

	if err := tracestore.WriteSQLite(ctx, dst, data); err != nil {
		return err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("stat database: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s spans, %s threads, %s processes, %s thread states (%s)\n",
		dst,
		humanize.Comma(int64(len(data.Spans))),
		humanize.Comma(int64(len(data.Threads))),
		humanize.Comma(int64(len(data.Processes))),
		humanize.Comma(int64(len(data.States))),
		humanize.Bytes(uint64(info.Size())))

	return err
}
