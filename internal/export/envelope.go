// Package export defines the SNAP export document model: a self-describing
// JSON envelope carrying table structure and row data for every table in the
// source system.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Envelope is one ingested export document. Table order follows the order of
// keys in the document's "tables" object.
type Envelope struct {
	ExportedAt string
	TotalRows  int64
	Tables     []Table
}

// Table is a single exported table: its declared structure and its rows.
type Table struct {
	Name      string
	Structure []ColumnSpec
	Rows      []Row
	HasRows   bool   // "data" key present in the document
	RowCount  *int64 // declared row count, nil when absent
	HasStruct bool   // "structure" key present in the document
}

// ColumnSpec describes one declared column. Name and DeclaredType are
// pointers so validation can tell a missing key from an empty value.
type ColumnSpec struct {
	Name         *string `json:"column_name"`
	DeclaredType *string `json:"data_type"`
	PrimaryKey   bool    `json:"primary_key"`
	NotNull      bool    `json:"not_null"`
	Default      *Value  `json:"default"`
}

type rawTable struct {
	Structure *[]ColumnSpec `json:"structure"`
	Data      *[]Row        `json:"data"`
	RowCount  *int64        `json:"row_count"`
}

type rawEnvelope struct {
	Metadata *struct {
		ExportedAt string `json:"exported_at"`
		TotalRows  int64  `json:"total_rows"`
	} `json:"metadata"`
	Tables json.RawMessage `json:"tables"`
}

// Decode parses a SNAP export document. It requires the top-level "metadata"
// and "tables" keys and rejects an envelope whose tables section is empty.
func Decode(data []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse export document: %w", err)
	}
	if raw.Metadata == nil {
		return nil, fmt.Errorf("export document missing required key %q", "metadata")
	}
	if len(raw.Tables) == 0 {
		return nil, fmt.Errorf("export document missing required key %q", "tables")
	}

	env := &Envelope{
		ExportedAt: raw.Metadata.ExportedAt,
		TotalRows:  raw.Metadata.TotalRows,
	}

	// Decode the tables object token by token so the document's table order
	// is preserved; encoding/json maps would randomize it.
	dec := json.NewDecoder(bytes.NewReader(raw.Tables))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse tables section: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("tables section must be an object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse tables section: %w", err)
		}
		name := keyTok.(string)

		var rt rawTable
		if err := dec.Decode(&rt); err != nil {
			return nil, fmt.Errorf("parse table %q: %w", name, err)
		}

		t := Table{Name: name, RowCount: rt.RowCount}
		if rt.Structure != nil {
			t.HasStruct = true
			t.Structure = *rt.Structure
		}
		if rt.Data != nil {
			t.HasRows = true
			t.Rows = *rt.Data
		}
		env.Tables = append(env.Tables, t)
	}

	if len(env.Tables) == 0 {
		return nil, fmt.Errorf("export document has no tables")
	}
	return env, nil
}

// DecodeFile reads and parses the export document at path.
func DecodeFile(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export document: %w", err)
	}
	return Decode(data)
}

// Table returns the table with the given name, or nil.
func (e *Envelope) Table(name string) *Table {
	for i := range e.Tables {
		if e.Tables[i].Name == name {
			return &e.Tables[i]
		}
	}
	return nil
}
