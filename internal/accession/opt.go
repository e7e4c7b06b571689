package accession

import (
	"bytes"
	"encoding/json"
)

// Opt is a JSON slot that remembers whether its key was present in the
// source document and whether it held null.
type Opt[T any] struct {
	Val   T
	Valid bool
	Keyed bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Val: v, Valid: true, Keyed: true}
}

func Null[T any]() Opt[T] {
	return Opt[T]{Keyed: true}
}

// IsZero reports an absent key, so `omitzero` drops unset slots on encode.
func (o Opt[T]) IsZero() bool {
	return !o.Keyed
}

// Present reports a key holding a non-null value.
func (o Opt[T]) Present() bool {
	return o.Keyed && o.Valid
}

// Unset removes the slot from the encoded document.
func (o *Opt[T]) Unset() {
	*o = Opt[T]{}
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	var zero T
	o.Keyed = true
	o.Val = zero
	o.Valid = false
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, &o.Val); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// Truthy follows the legacy scripts' notion of truth for boolean slots.
func Truthy(o Opt[bool]) bool {
	return o.Present() && o.Val
}
