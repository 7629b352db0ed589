package persist

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xeipuuv/gojsonschema"
)

// ResultsSchema is the JSON schema of a persisted batch result set.
//
//go:embed results.schema.json
var ResultsSchema []byte

// Violation is one schema error.
type Violation struct {
	Field       string
	Description string
}

// Validate checks the JSON document read from r against schema, or against
// ResultsSchema when schema is nil. A malformed document or schema is an
// error; schema violations are returned as the slice.
func Validate(r io.Reader, schema []byte) ([]Violation, error) {
	if schema == nil {
		schema = ResultsSchema
	}

	var doc any

	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	out := make([]Violation, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, Violation{Field: e.Field(), Description: e.Description()})
	}

	return out, nil
}
