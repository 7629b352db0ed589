package optional_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
)

const (
	testValue    = 42
	testFallback = 7
)

// TestOption_SomeNone verifies basic presence semantics.
func TestOption_SomeNone(t *testing.T) {
	t.Parallel()

	some := optional.Some(testValue)
	none := optional.None[int]()

	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, testValue, v)
	assert.True(t, some.Set())

	_, ok = none.Get()
	assert.False(t, ok)
	assert.Equal(t, testFallback, none.GetOr(testFallback))
	assert.Equal(t, "None", none.String())
	assert.Equal(t, "42", some.String())
}

// TestOption_MustGetPanics verifies MustGet on an unset Option.
func TestOption_MustGetPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { optional.None[string]().MustGet() })
	assert.Equal(t, testValue, optional.Some(testValue).MustGet())
}

// TestOption_OrAndMap verifies fallback chaining and mapping.
func TestOption_OrAndMap(t *testing.T) {
	t.Parallel()

	got := optional.None[int]().Or(optional.Some(testFallback))
	assert.Equal(t, testFallback, got.MustGet())

	doubled := optional.Map(optional.Some(testValue), func(v int) int { return v * 2 })
	assert.Equal(t, testValue*2, doubled.MustGet())

	assert.False(t, optional.Map(optional.None[int](), func(v int) int { return v }).Set())
	assert.False(t, optional.FromPair(testValue, false).Set())
}

// TestOption_JSON verifies null encoding for unset values.
func TestOption_JSON(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		A optional.Option[int] `json:"a"`
		B optional.Option[int] `json:"b"`
	}

	data, err := json.Marshal(wrapper{A: optional.Some(testValue)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":42,"b":null}`, string(data))

	var decoded wrapper

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, testValue, decoded.A.MustGet())
	assert.False(t, decoded.B.Set())
}

// TestOption_YAML verifies null encoding for unset values in YAML.
func TestOption_YAML(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		A optional.Option[int] `yaml:"a"`
		B optional.Option[int] `yaml:"b"`
	}

	data, err := yaml.Marshal(wrapper{A: optional.Some(testValue)})
	require.NoError(t, err)
	assert.Equal(t, "a: 42\nb: null\n", string(data))

	var decoded wrapper

	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, testValue, decoded.A.MustGet())
	assert.False(t, decoded.B.Set())
}
