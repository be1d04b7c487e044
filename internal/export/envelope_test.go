package export

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleDoc = `{
  "metadata": {"exported_at": "2024-06-01T03:00:00", "total_rows": 3},
  "tables": {
    "productos": {
      "structure": [
        {"column_name": "id", "data_type": "INTEGER", "primary_key": true, "not_null": true, "default": null},
        {"column_name": "nombre", "data_type": "VARCHAR(100)", "primary_key": false, "not_null": true, "default": null},
        {"column_name": "precio", "data_type": "FLOAT", "primary_key": false, "not_null": false, "default": null}
      ],
      "data": [
        {"id": 1, "nombre": "Cafe", "precio": 12.5},
        {"id": 2, "nombre": "Pan", "precio": 3}
      ],
      "row_count": 2
    },
    "ganancias": {
      "structure": [
        {"column_name": "fecha", "data_type": "DATETIME", "primary_key": false, "not_null": false, "default": null}
      ],
      "data": [
        {"fecha": "2024-05-31 10:00:00"}
      ],
      "row_count": 1
    }
  }
}`

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if env.ExportedAt != "2024-06-01T03:00:00" {
		t.Errorf("ExportedAt = %q", env.ExportedAt)
	}
	if env.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", env.TotalRows)
	}

	var names []string
	for _, tab := range env.Tables {
		names = append(names, tab.Name)
	}
	if diff := cmp.Diff([]string{"productos", "ganancias"}, names); diff != "" {
		t.Errorf("table order mismatch (-want +got):\n%s", diff)
	}

	prod := env.Table("productos")
	if prod == nil {
		t.Fatal("Table(productos) = nil")
	}
	if !prod.HasStruct || !prod.HasRows {
		t.Errorf("HasStruct = %v, HasRows = %v, want both true", prod.HasStruct, prod.HasRows)
	}
	if prod.RowCount == nil || *prod.RowCount != 2 {
		t.Errorf("RowCount = %v, want 2", prod.RowCount)
	}
	if len(prod.Structure) != 3 {
		t.Fatalf("len(Structure) = %d, want 3", len(prod.Structure))
	}
	if got := *prod.Structure[1].Name; got != "nombre" {
		t.Errorf("column 1 name = %q", got)
	}
	if !prod.Structure[0].PrimaryKey {
		t.Error("id column should be primary key")
	}
}

func TestDecodeTableOrderPreserved(t *testing.T) {
	// Table order must follow the document, not lexicographic order.
	doc := `{
      "metadata": {"exported_at": "x", "total_rows": 0},
      "tables": {
        "zzz": {"structure": [], "data": [], "row_count": 0},
        "aaa": {"structure": [], "data": [], "row_count": 0},
        "mmm": {"structure": [], "data": [], "row_count": 0}
      }
    }`
	env, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var names []string
	for _, tab := range env.Tables {
		names = append(names, tab.Name)
	}
	if diff := cmp.Diff([]string{"zzz", "aaa", "mmm"}, names); diff != "" {
		t.Errorf("table order mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePresenceFlags(t *testing.T) {
	doc := `{
      "metadata": {"exported_at": "x", "total_rows": 0},
      "tables": {
        "bare": {},
        "empty": {"structure": [], "data": []}
      }
    }`
	env, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	bare := env.Table("bare")
	if bare.HasStruct || bare.HasRows {
		t.Errorf("bare table: HasStruct = %v, HasRows = %v, want both false", bare.HasStruct, bare.HasRows)
	}
	if bare.RowCount != nil {
		t.Errorf("bare table: RowCount = %v, want nil", bare.RowCount)
	}

	empty := env.Table("empty")
	if !empty.HasStruct || !empty.HasRows {
		t.Errorf("empty table: HasStruct = %v, HasRows = %v, want both true", empty.HasStruct, empty.HasRows)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "not JSON",
			doc:     "not json at all",
			wantErr: "parse export document",
		},
		{
			name:    "missing metadata",
			doc:     `{"tables": {"t": {}}}`,
			wantErr: `missing required key "metadata"`,
		},
		{
			name:    "missing tables",
			doc:     `{"metadata": {"exported_at": "x", "total_rows": 0}}`,
			wantErr: `missing required key "tables"`,
		},
		{
			name:    "empty tables object",
			doc:     `{"metadata": {"exported_at": "x", "total_rows": 0}, "tables": {}}`,
			wantErr: "no tables",
		},
		{
			name:    "tables is an array",
			doc:     `{"metadata": {"exported_at": "x", "total_rows": 0}, "tables": []}`,
			wantErr: "must be an object",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			if err == nil {
				t.Fatal("Decode succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestTableLookupMissing(t *testing.T) {
	env, err := Decode([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := env.Table("no_such_table"); got != nil {
		t.Errorf("Table(no_such_table) = %v, want nil", got)
	}
}
