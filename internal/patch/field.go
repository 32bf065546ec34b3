// Package patch implements the RFC 7396 merge-patch semantics of person
// and location events. All derivation functions are pure.
package patch

import "encoding/json"

// Field is a tri-state JSON value: absent (keep the aggregate value),
// null (remove it), or a concrete value (overwrite it). The zero Field
// is absent, which is what encoding/json leaves behind for missing keys.
type Field[T any] struct {
	Defined bool
	Valid   bool
	Value   T
}

// Value returns a Field carrying v.
func Value[T any](v T) Field[T] {
	return Field[T]{Defined: true, Valid: true, Value: v}
}

// Null returns a Field carrying JSON null.
func Null[T any]() Field[T] {
	return Field[T]{Defined: true}
}

func (f Field[T]) IsAbsent() bool {
	return !f.Defined
}

func (f Field[T]) IsNull() bool {
	return f.Defined && !f.Valid
}

func (f Field[T]) IsValue() bool {
	return f.Defined && f.Valid
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Defined = true
	if string(data) == "null" {
		f.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &f.Value); err != nil {
		return err
	}
	f.Valid = true
	return nil
}

// value returns what the field contributes to a JSON object, assuming
// the field is defined.
func (f Field[T]) value() any {
	if !f.Valid {
		return nil
	}
	return f.Value
}
