package yaml

import (
	"bytes"
	"io"

	"github.com/goccy/go-yaml"
)

// Encoder writes configuration documents. Sequences are indented under
// their key and multi-line strings, such as long CEL expressions, are
// written as literal blocks.
type Encoder struct {
	e *yaml.Encoder
}

// NewEncoder creates an [Encoder] writing to w. Additional goccy encode
// options are appended to the defaults.
func NewEncoder(w io.Writer, opts ...yaml.EncodeOption) *Encoder {
	defaults := []yaml.EncodeOption{
		yaml.Indent(2),
		yaml.IndentSequence(true),
		yaml.UseLiteralStyleIfMultiline(true),
	}

	return &Encoder{
		e: yaml.NewEncoder(w, append(defaults, opts...)...),
	}
}

func (e *Encoder) Encode(v any) error {
	return e.e.Encode(v) //nolint:wrapcheck // Return the original error.
}

func (e *Encoder) Close() error {
	return e.e.Close() //nolint:wrapcheck // Return the original error.
}

// Marshal encodes v as a single document.
func Marshal(v any, opts ...yaml.EncodeOption) ([]byte, error) {
	var buf bytes.Buffer

	enc := NewEncoder(&buf, opts...)

	err := enc.Encode(v)
	if err != nil {
		return nil, err
	}

	err = enc.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
