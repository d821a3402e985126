// Package dataset loads the product and guideline datasets and indexes
// guidelines by category.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	FieldName     = "Name"
	FieldCategory = "Category"
)

// ErrNotObject is returned when a dataset element is not a JSON object.
var ErrNotObject = errors.New("record is not a JSON object")

// Record is one product or guideline. It keeps the exact JSON it was
// decoded from, so re-encoding reproduces the original field order.
type Record struct {
	fields map[string]any
	raw    json.RawMessage
}

// NewRecord parses a single JSON object.
func NewRecord(data []byte) (Record, error) {
	var r Record

	err := r.UnmarshalJSON(data)
	if err != nil {
		return Record{}, err
	}

	return r, nil
}

// MustNewRecord is like [NewRecord] but panics on error.
func MustNewRecord(data string) Record {
	r, err := NewRecord([]byte(data))
	if err != nil {
		panic(err)
	}

	return r
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any

	err := dec.Decode(&fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotObject, err)
	}

	if fields == nil {
		return ErrNotObject
	}

	var compact bytes.Buffer

	err = json.Compact(&compact, data)
	if err != nil {
		return fmt.Errorf("compact record: %w", err)
	}

	r.fields = fields
	r.raw = compact.Bytes()

	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.raw == nil {
		return []byte("{}"), nil
	}

	return r.raw, nil
}

// Raw returns the record's compact JSON encoding.
func (r Record) Raw() json.RawMessage {
	b, _ := r.MarshalJSON() //nolint:errcheck // Never fails.

	return b
}

// String returns the string value of field. Missing and non-string values
// report false.
func (r Record) String(field string) (string, bool) {
	s, ok := r.fields[field].(string)

	return s, ok
}

// Name returns the record's Name, when it is a string.
func (r Record) Name() (string, bool) {
	return r.String(FieldName)
}

// Category returns the record's Category, when it is a string.
func (r Record) Category() (string, bool) {
	return r.String(FieldCategory)
}

// DisplayName is the Name used in human-readable output: the string value
// when Name is a string, its JSON encoding when it is another type, and
// the empty string when it is missing.
func (r Record) DisplayName() string {
	v, ok := r.fields[FieldName]
	if !ok {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}
