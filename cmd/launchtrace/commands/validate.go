package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/launchtrace/pkg/persist"
)

// ErrInvalidResults is returned when a result file violates the schema.
var ErrInvalidResults = errors.New("results do not match schema")

// ValidateCommand holds the flags of the validate command.
type ValidateCommand struct {
	schema  string
	noColor bool
}

// NewValidateCommand creates the result-file validation command.
func NewValidateCommand() *cobra.Command {
	vc := &ValidateCommand{}

	cmd := &cobra.Command{
		Use:   "validate <results>...",
		Short: "Check result files against the results schema",
		Long: `Validate result files written by "analyze --out" against the embedded
JSON schema. JSON, YAML and LZ4-compressed JSON files are accepted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: vc.run,
	}

	cmd.Flags().StringVar(&vc.schema, "schema", "", "Use this JSON schema instead of the embedded one")
	cmd.Flags().BoolVar(&vc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (vc *ValidateCommand) run(cmd *cobra.Command, args []string) error {
	if vc.noColor {
		color.NoColor = true
	}

	var schema []byte

	if vc.schema != "" {
		data, err := os.ReadFile(vc.schema)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}

		schema = data
	}

	w := cmd.OutOrStdout()
	invalid := 0

	for _, path := range args {
		violations, err := validateFile(path, schema)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if err := printViolations(w, path, violations); err != nil {
			return err
		}

		if len(violations) > 0 {
			invalid++
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrInvalidResults, invalid, len(args))
	}

	return nil
}

// validateFile decodes path with its codec and checks the JSON form of the
// document.
func validateFile(path string, schema []byte) ([]persist.Violation, error) {
	var doc any

	if err := persist.LoadResults(path, &doc); err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode document: %w", err)
	}

	return persist.Validate(bytes.NewReader(data), schema)
}

func printViolations(w io.Writer, path string, violations []persist.Violation) error {
	if len(violations) == 0 {
		_, err := color.New(color.FgGreen).Fprintf(w, "%s: valid\n", path)

		return err
	}

	if _, err := color.New(color.FgRed).Fprintf(w, "%s: %d violations\n", path, len(violations)); err != nil {
		return err
	}

	for _, v := range violations {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", v.Field, v.Description); err != nil {
			return err
		}
	}

	return nil
}
