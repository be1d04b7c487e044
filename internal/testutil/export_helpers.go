package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// ExportColumn describes one column of a test export table.
type ExportColumn struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
	Default    interface{}
}

// ExportTable describes one table of a test export document.
type ExportTable struct {
	Name     string
	Columns  []ExportColumn
	Rows     []map[string]interface{}
	RowCount *int64
	NoData   bool // omit the "data" key entirely
}

// ExportDoc builds a SNAP export document from the given tables, preserving
// table order.
func ExportDoc(t *testing.T, tables ...ExportTable) []byte {
	t.Helper()

	var sb strings.Builder
	sb.WriteString(`{"metadata":{"exported_at":"2024-06-01T03:00:00","total_rows":0},"tables":{`)

	for i, tbl := range tables {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%s:{", mustJSON(t, tbl.Name))

		cols := make([]map[string]interface{}, 0, len(tbl.Columns))
		for _, c := range tbl.Columns {
			col := map[string]interface{}{
				"column_name": c.Name,
				"data_type":   c.Type,
				"primary_key": c.PrimaryKey,
				"not_null":    c.NotNull,
			}
			if c.Default != nil {
				col["default"] = c.Default
			}
			cols = append(cols, col)
		}
		fmt.Fprintf(&sb, `"structure":%s`, string(mustJSONBytes(t, cols)))

		if !tbl.NoData {
			fmt.Fprintf(&sb, `,"data":%s`, string(mustJSONBytes(t, tbl.Rows)))
		}
		if tbl.RowCount != nil {
			fmt.Fprintf(&sb, `,"row_count":%d`, *tbl.RowCount)
		}
		sb.WriteString("}")
	}

	sb.WriteString("}}")
	return []byte(sb.String())
}

// Int64Ptr returns a pointer to n, for declared row counts.
func Int64Ptr(n int64) *int64 { return &n }

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	return string(mustJSONBytes(t, v))
}

func mustJSONBytes(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal test fixture: %v", err)
	}
	return b
}
