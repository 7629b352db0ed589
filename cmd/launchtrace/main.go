// Package main provides the entry point for the launchtrace CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/launchtrace/cmd/launchtrace/commands"
	"github.com/Sumatoshi-tech/launchtrace/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	globals := &commands.Globals{}

	rootCmd := &cobra.Command{
		Use:   "launchtrace",
		Short: "Android app launch timeline analysis",
		Long: `launchtrace reconstructs app launch timelines from Android system traces.

Commands:
  analyze   Analyse a directory of launch traces (optionally against a reference)
  reaction  Measure app reaction time for a directory of traces
  convert   Convert a trace into a SQLite event database
  validate  Check a result file against the results schema
  mcp       Serve analysis tools over the Model Context Protocol`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	globals.Register(rootCmd)

	rootCmd.AddCommand(commands.NewAnalyzeCommand(globals))
	rootCmd.AddCommand(commands.NewReactionCommand(globals))
	rootCmd.AddCommand(commands.NewConvertCommand(globals))
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewMCPCommand(globals))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "launchtrace %s\n", version.String())
		},
	}
}
