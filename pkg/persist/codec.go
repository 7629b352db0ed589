// Package persist encodes result sets to files, picking the codec from the
// file name: JSON, YAML, or either wrapped in an LZ4 frame.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	yamlExtension = ".yaml"
	ymlExtension  = ".yml"
	lz4Extension  = ".lz4"
)

// Format names accepted by CodecFor.
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatJSONLZ4 = "json.lz4"
)

const defaultIndent = "  "

// ErrUnknownFormat is returned for an unsupported format or file extension.
var ErrUnknownFormat = errors.New("unknown output format")

// Codec defines how a value is serialized and deserialized.
type Codec interface {
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
	// Extension returns the file extension, e.g. ".json" or ".json.lz4".
	Extension() string
}

// JSONCodec implements Codec using JSON.
type JSONCodec struct {
	// Indent is the indentation string. Empty means compact output.
	Indent string
}

// NewJSONCodec creates a pretty-printing JSON codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

func (c *JSONCodec) Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if c.Indent != "" {
		enc.SetIndent("", c.Indent)
	}

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

func (c *JSONCodec) Decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

func (c *JSONCodec) Extension() string { return jsonExtension }

// YAMLCodec implements Codec using YAML.
type YAMLCodec struct{}

func (YAMLCodec) Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(len(defaultIndent))

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	return nil
}

func (YAMLCodec) Decode(r io.Reader, v any) error {
	if err := yaml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

func (YAMLCodec) Extension() string { return yamlExtension }

// LZ4Codec compresses the output of Inner into an LZ4 frame.
type LZ4Codec struct {
	Inner Codec
}

func (c LZ4Codec) Encode(w io.Writer, v any) error {
	zw := lz4.NewWriter(w)

	if err := c.Inner.Encode(zw, v); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

func (c LZ4Codec) Decode(r io.Reader, v any) error {
	return c.Inner.Decode(lz4.NewReader(r), v)
}

func (c LZ4Codec) Extension() string { return c.Inner.Extension() + lz4Extension }

// CodecFor returns the codec for a format name.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return NewJSONCodec(), nil
	case FormatYAML, "yml":
		return YAMLCodec{}, nil
	case FormatJSONLZ4:
		return LZ4Codec{Inner: &JSONCodec{}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// CodecForPath returns the codec implied by a file name's extension.
func CodecForPath(path string) (Codec, error) {
	lower := strings.ToLower(path)

	compressed := strings.HasSuffix(lower, lz4Extension)
	lower = strings.TrimSuffix(lower, lz4Extension)

	var inner Codec

	switch {
	case strings.HasSuffix(lower, jsonExtension):
		inner = NewJSONCodec()
	case strings.HasSuffix(lower, yamlExtension), strings.HasSuffix(lower, ymlExtension):
		inner = YAMLCodec{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if compressed {
		return LZ4Codec{Inner: inner}, nil
	}

	return inner, nil
}
