// Package translate turns the self-described schema of a SNAP export into
// SQLite table definitions. Table and column names come from the export and
// are untrusted: every identifier is backtick-quoted, and declared types pass
// through an explicit mapping table instead of being interpolated.
package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledgerline/snapstore/internal/export"
)

// ValidationError is a hard schema problem that blocks the whole rebuild.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("export failed validation: %s", strings.Join(e.Issues, "; "))
}

// Report collects the outcome of validating an envelope. Issues block the
// rebuild; warnings are logged and carried along.
type Report struct {
	Issues   []string
	Warnings []string
}

// Err returns a *ValidationError when the report has issues, nil otherwise.
func (r *Report) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: r.Issues}
}

// Validate checks every table in the envelope against the structural rules:
// a missing or empty structure and columns without a name or declared type
// are hard errors; missing or empty row data and a declared row count that
// disagrees with the actual rows are warnings.
func Validate(env *export.Envelope) *Report {
	rep := &Report{}

	for _, t := range env.Tables {
		if !t.HasStruct {
			rep.Issues = append(rep.Issues, fmt.Sprintf("table %q: missing structure", t.Name))
			continue
		}
		if len(t.Structure) == 0 {
			rep.Issues = append(rep.Issues, fmt.Sprintf("table %q: no columns declared", t.Name))
			continue
		}

		for i, col := range t.Structure {
			if col.Name == nil {
				rep.Issues = append(rep.Issues, fmt.Sprintf("table %q, column %d: missing column_name", t.Name, i))
			}
			if col.DeclaredType == nil {
				rep.Issues = append(rep.Issues, fmt.Sprintf("table %q, column %d: missing data_type", t.Name, i))
			}
		}

		if !t.HasRows {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("table %q: missing data section", t.Name))
		} else if len(t.Rows) == 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("table %q: data section is empty", t.Name))
		}

		if t.RowCount != nil && t.HasRows && *t.RowCount != int64(len(t.Rows)) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf(
				"table %q: declared row_count %d does not match %d data rows",
				t.Name, *t.RowCount, len(t.Rows)))
		}
	}

	return rep
}

var typeMapping = map[string]string{
	"VARCHAR":   "TEXT",
	"INTEGER":   "INTEGER",
	"BOOLEAN":   "INTEGER",
	"TEXT":      "TEXT",
	"REAL":      "REAL",
	"BLOB":      "BLOB",
	"DATETIME":  "TEXT",
	"DATE":      "TEXT",
	"TIMESTAMP": "TEXT",
}

// MapType maps a declared SNAP column type to a SQLite storage type.
// Matching is case-insensitive and unknown types fall back to TEXT.
func MapType(declared string) string {
	if mapped, ok := typeMapping[strings.ToUpper(declared)]; ok {
		return mapped
	}
	return "TEXT"
}

// scalarDefaultRe extracts the quoted literal out of a serialized
// ScalarElementColumnDefault('...') ORM wrapper.
var scalarDefaultRe = regexp.MustCompile(`ScalarElementColumnDefault\('([^']+)'\)`)

// ormSentinels are serialized ORM default-wrapper class names with no usable
// literal. Any default carrying one degrades to NULL.
var ormSentinels = []string{"ColumnDefault", "DefaultClause", "Scalar"}

// DefaultLiteral converts a declared default value into a SQL literal for a
// DEFAULT clause. The export sometimes serializes framework-internal wrapper
// objects as their string representation; those degrade to NULL rather than
// producing invalid SQL.
func DefaultLiteral(v export.Value) string {
	if v.IsNull() {
		return "NULL"
	}

	s := v.String()

	if strings.Contains(s, "ScalarElementColumnDefault") {
		if m := scalarDefaultRe.FindStringSubmatch(s); m != nil {
			return "'" + m[1] + "'"
		}
		return "NULL"
	}
	for _, sentinel := range ormSentinels {
		if strings.Contains(s, sentinel) {
			return "NULL"
		}
	}

	switch strings.ToUpper(s) {
	case "NULL", "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME":
		return strings.ToUpper(s)
	}

	switch v.Kind {
	case export.KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case export.KindNumber:
		return v.Num.String()
	case export.KindString:
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	default:
		return "NULL"
	}
}

// QuoteIdent backtick-quotes a schema-driven identifier.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// BuildTableDef synthesizes the CREATE TABLE statement for one exported
// table. Columns with an empty name are dropped; if nothing survives, the
// table is unbuildable and an error naming it is returned.
func BuildTableDef(tableName string, structure []export.ColumnSpec) (string, error) {
	var defs []string

	for _, col := range structure {
		if col.Name == nil || *col.Name == "" {
			continue
		}

		declared := ""
		if col.DeclaredType != nil {
			declared = *col.DeclaredType
		}
		def := QuoteIdent(*col.Name) + " " + MapType(declared)

		if col.PrimaryKey {
			def += " PRIMARY KEY"
		}
		// Primary keys are implicitly NOT NULL.
		if col.NotNull && !col.PrimaryKey {
			def += " NOT NULL"
		}

		if col.Default != nil && !col.Default.IsNull() {
			def += " DEFAULT " + DefaultLiteral(*col.Default)
		}

		defs = append(defs, def)
	}

	if len(defs) == 0 {
		return "", fmt.Errorf("table %q has no valid columns", tableName)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n);", QuoteIdent(tableName), strings.Join(defs, ",\n    ")), nil
}
