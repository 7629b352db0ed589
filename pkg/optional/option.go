// Package optional provides a generic value-or-absent container.
package optional

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Option holds a value of type T or nothing.
type Option[T any] struct {
	v   T
	set bool
}

// None returns an empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Some returns an Option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{v: v, set: true}
}

// FromPair builds an Option from the (value, ok) shape returned by lookups.
func FromPair[T any](v T, ok bool) Option[T] {
	if !ok {
		return None[T]()
	}

	return Some(v)
}

// Get returns the value and whether it is set.
func (o Option[T]) Get() (T, bool) {
	return o.v, o.set
}

// GetOr returns the value, or alt when unset.
func (o Option[T]) GetOr(alt T) T {
	if o.set {
		return o.v
	}

	return alt
}

// Set reports whether the Option holds a value.
func (o Option[T]) Set() bool {
	return o.set
}

// MustGet returns the value and panics when unset.
func (o Option[T]) MustGet() T {
	if !o.set {
		panic("optional: MustGet on unset Option")
	}

	return o.v
}

// Or returns o when set, otherwise alt.
func (o Option[T]) Or(alt Option[T]) Option[T] {
	if o.set {
		return o
	}

	return alt
}

func (o Option[T]) String() string {
	if !o.set {
		return "None"
	}

	return fmt.Sprintf("%v", o.v)
}

// Map applies fn to the held value.
func Map[T, U any](o Option[T], fn func(T) U) Option[U] {
	if !o.set {
		return None[U]()
	}

	return Some(fn(o.v))
}

// MarshalJSON encodes an unset Option as null.
func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}

	return json.Marshal(o.v)
}

// UnmarshalJSON decodes null as an unset Option.
func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None[T]()

		return nil
	}

	var v T

	err := json.Unmarshal(data, &v)
	if err != nil {
		return fmt.Errorf("decode option: %w", err)
	}

	*o = Some(v)

	return nil
}

// MarshalYAML encodes an unset Option as null.
func (o Option[T]) MarshalYAML() (any, error) {
	if !o.set {
		return nil, nil
	}

	return o.v, nil
}

// UnmarshalYAML decodes null as an unset Option.
func (o *Option[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*o = None[T]()

		return nil
	}

	var v T

	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("decode option: %w", err)
	}

	*o = Some(v)

	return nil
}
