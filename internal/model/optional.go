package model

import (
	"bytes"
	"encoding/json"
)

// Optional holds a value that may be absent, explicitly null, or present.
//
// WHY NOT A POINTER?
// A *bool can only say "nil" or "a value". When a JSON body omits a field and
// when it sends `null`, both end up as nil, so "leave completed alone" and
// "clear the due date" would be indistinguishable. Optional keeps the two apart.
//
// The zero value is "absent", so a struct of Optionals decoded from `{}` is a no-op.
type Optional[T any] struct {
	value T
	set   bool
	null  bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Null returns an Optional that was explicitly set to null.
func Null[T any]() Optional[T] {
	return Optional[T]{set: true, null: true}
}

// IsSet reports whether the field was supplied at all (value or null).
func (o Optional[T]) IsSet() bool { return o.set }

// IsNull reports whether the field was explicitly set to null.
func (o Optional[T]) IsNull() bool { return o.set && o.null }

// Get returns the value and true when a non-null value was supplied.
func (o Optional[T]) Get() (T, bool) {
	if !o.set || o.null {
		var zero T
		return zero, false
	}
	return o.value, true
}

// UnmarshalJSON is only called by encoding/json when the key is present,
// which is exactly what marks the field as set.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.value = zero
		o.null = true
		return nil
	}
	o.null = false
	return json.Unmarshal(data, &o.value)
}

// MarshalJSON writes the value, or null when absent or null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if v, ok := o.Get(); ok {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}
