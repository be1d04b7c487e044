package export

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the loosely-typed values carried in export rows.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindRaw // nested object or array, kept as raw JSON text
)

// Value is a tagged variant for a single row cell. Export rows are
// heterogeneous JSON values; modeling them explicitly keeps the mapping into
// SQLite storage classes total instead of relying on interface{} coercion.
type Value struct {
	Kind Kind
	Bool bool
	Num  json.Number
	Str  string
	Raw  string
}

// UnmarshalJSON classifies the raw token without losing numeric precision.
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case 'n':
		*v = Value{Kind: KindNull}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Value{Kind: KindBool, Bool: b}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{Kind: KindString, Str: s}
		return nil
	case '{', '[':
		*v = Value{Kind: KindRaw, Raw: string(data)}
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Value{Kind: KindNumber, Num: n}
		return nil
	}
}

// IsNull reports whether the value is JSON null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// String renders the value for logs and default-clause synthesis.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return v.Num.String()
	case KindString:
		return v.Str
	default:
		return v.Raw
	}
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Boolean returns a boolean Value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number returns a numeric Value from its literal text.
func Number(lit string) Value { return Value{Kind: KindNumber, Num: json.Number(lit)} }

// Text returns a string Value.
func Text(s string) Value { return Value{Kind: KindString, Str: s} }

// RowField is one named cell in a row, in document order.
type RowField struct {
	Name  string
	Value Value
}

// Row is an ordered record. Field order follows the JSON object; the first
// row's field order decides the column order of bulk inserts.
type Row struct {
	Fields []RowField
}

// Get returns the value for a field name and whether the field is present.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Names returns the field names in document order.
func (r Row) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// UnmarshalJSON decodes a row object preserving field order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be a JSON object")
	}
	r.Fields = r.Fields[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Fields = append(r.Fields, RowField{Name: keyTok.(string), Value: v})
	}
	return nil
}
