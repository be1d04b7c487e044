package rebuild

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ledgerline/snapstore/internal/export"
	"github.com/ledgerline/snapstore/internal/testutil"
	"github.com/ledgerline/snapstore/internal/translate"
)

func testDoc(t *testing.T) []byte {
	t.Helper()
	return testutil.ExportDoc(t,
		testutil.ExportTable{
			Name: "productos",
			Columns: []testutil.ExportColumn{
				{Name: "id", Type: "INTEGER", PrimaryKey: true, NotNull: true},
				{Name: "nombre", Type: "VARCHAR", NotNull: true},
				{Name: "precio", Type: "REAL"},
				{Name: "activo", Type: "BOOLEAN"},
			},
			Rows: []map[string]interface{}{
				{"id": 1, "nombre": "Cafe", "precio": 12.5, "activo": true},
				{"id": 2, "nombre": "Pan", "precio": 3.0, "activo": false},
				{"id": 3, "nombre": "Te", "precio": nil, "activo": true},
			},
			RowCount: testutil.Int64Ptr(3),
		},
		testutil.ExportTable{
			Name: "ganancias",
			Columns: []testutil.ExportColumn{
				{Name: "fecha", Type: "DATETIME"},
				{Name: "total", Type: "REAL"},
			},
			Rows: []map[string]interface{}{
				{"fecha": "2024-05-31 10:00:00", "total": 99.5},
			},
			RowCount: testutil.Int64Ptr(1),
		},
	)
}

func openStore(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	testutil.MustNoErr(t, err, "open store")
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM " + translate.QuoteIdent(table)).Scan(&n)
	testutil.MustNoErr(t, err, "count rows")
	return n
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "store.db")
	docPath := testutil.WriteFile(t, dir, "export.json", testDoc(t))

	o := New(active)
	done, err := o.Rebuild(docPath)
	testutil.MustNoErr(t, err, "rebuild")
	if !done {
		t.Fatal("Rebuild returned false")
	}

	testutil.MustExist(t, active)
	testutil.MustNotExist(t, active+".staging")

	db := openStore(t, active)
	if got := countRows(t, db, "productos"); got != 3 {
		t.Errorf("productos rows = %d, want 3", got)
	}
	if got := countRows(t, db, "ganancias"); got != 1 {
		t.Errorf("ganancias rows = %d, want 1", got)
	}

	// Booleans store as integers, JSON null as NULL.
	var activo int64
	err = db.QueryRow("SELECT activo FROM productos WHERE id = 1").Scan(&activo)
	testutil.MustNoErr(t, err, "select activo")
	if activo != 1 {
		t.Errorf("activo = %d, want 1", activo)
	}

	var nulls int
	err = db.QueryRow("SELECT COUNT(*) FROM productos WHERE precio IS NULL").Scan(&nulls)
	testutil.MustNoErr(t, err, "count null precio")
	if nulls != 1 {
		t.Errorf("NULL precio rows = %d, want 1", nulls)
	}
}

func TestRebuildReplacesActiveStore(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "store.db")
	o := New(active)

	docPath := testutil.WriteFile(t, dir, "export.json", testDoc(t))
	if _, err := o.Rebuild(docPath); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	// A second export with fewer rows fully replaces the first store.
	smaller := testutil.ExportDoc(t, testutil.ExportTable{
		Name: "productos",
		Columns: []testutil.ExportColumn{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
		},
		Rows:     []map[string]interface{}{{"id": 1}},
		RowCount: testutil.Int64Ptr(1),
	})
	docPath = testutil.WriteFile(t, dir, "export2.json", smaller)

	done, err := o.Rebuild(docPath)
	testutil.MustNoErr(t, err, "second rebuild")
	if !done {
		t.Fatal("second Rebuild returned false")
	}

	db := openStore(t, active)
	if got := countRows(t, db, "productos"); got != 1 {
		t.Errorf("productos rows = %d, want 1", got)
	}
	var ganancias int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'ganancias'").Scan(&ganancias)
	testutil.MustNoErr(t, err, "check dropped table")
	if ganancias != 0 {
		t.Error("ganancias table survived the rebuild")
	}
}

func TestRebuildValidationFailureLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "store.db")
	o := New(active)

	docPath := testutil.WriteFile(t, dir, "good.json", testDoc(t))
	if _, err := o.Rebuild(docPath); err != nil {
		t.Fatalf("seed rebuild: %v", err)
	}

	// Missing structure is a hard validation error.
	bad := []byte(`{
      "metadata": {"exported_at": "x", "total_rows": 0},
      "tables": {"rota": {"data": []}}
    }`)
	badPath := testutil.WriteFile(t, dir, "bad.json", bad)

	done, err := o.Rebuild(badPath)
	if err == nil {
		t.Fatal("Rebuild succeeded on invalid export")
	}
	if done {
		t.Error("Rebuild reported done on failure")
	}
	var verr *translate.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error = %T %v, want *translate.ValidationError", err, err)
	}

	testutil.MustNotExist(t, active+".staging")
	db := openStore(t, active)
	if got := countRows(t, db, "productos"); got != 3 {
		t.Errorf("active store changed: productos rows = %d, want 3", got)
	}
}

func TestRebuildBuildFailureCleansStaging(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "store.db")
	o := New(active)

	// Structure present but every column nameless: passes row validation,
	// fails table synthesis.
	bad := []byte(`{
      "metadata": {"exported_at": "x", "total_rows": 0},
      "tables": {
        "huerfana": {
          "structure": [{"column_name": "", "data_type": "TEXT"}],
          "data": [],
          "row_count": 0
        }
      }
    }`)
	badPath := testutil.WriteFile(t, dir, "bad.json", bad)

	if _, err := o.Rebuild(badPath); err == nil {
		t.Fatal("Rebuild succeeded, want error")
	}
	testutil.MustNotExist(t, active+".staging")
	testutil.MustNotExist(t, active)
}

func TestRebuildCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	o := New(filepath.Join(dir, "store.db"))

	docPath := testutil.WriteFile(t, dir, "corrupt.json", []byte("{ not json"))
	if _, err := o.Rebuild(docPath); err == nil {
		t.Fatal("Rebuild succeeded on corrupt document")
	}
}

func TestRebuildMissingDocument(t *testing.T) {
	dir := t.TempDir()
	o := New(filepath.Join(dir, "store.db"))

	if _, err := o.Rebuild(filepath.Join(dir, "nope.json")); err == nil {
		t.Fatal("Rebuild succeeded on missing document")
	}
}

func TestRebuildRemovesStaleStaging(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "store.db")
	testutil.WriteFile(t, dir, "store.db.staging", []byte("stale garbage"))

	o := New(active)
	docPath := testutil.WriteFile(t, dir, "export.json", testDoc(t))
	done, err := o.Rebuild(docPath)
	testutil.MustNoErr(t, err, "rebuild")
	if !done {
		t.Fatal("Rebuild returned false")
	}
	testutil.MustNotExist(t, active+".staging")
}

func TestRebuildSingleFlight(t *testing.T) {
	dir := t.TempDir()
	o := New(filepath.Join(dir, "store.db"))
	docPath := testutil.WriteFile(t, dir, "export.json", testDoc(t))

	// Hold the rebuild lock; a concurrent attempt must bail out, not queue.
	o.mu.Lock()
	var wg sync.WaitGroup
	wg.Add(1)
	var done bool
	var err error
	go func() {
		defer wg.Done()
		done, err = o.Rebuild(docPath)
	}()
	wg.Wait()
	o.mu.Unlock()

	if err != nil {
		t.Fatalf("concurrent Rebuild errored: %v", err)
	}
	if done {
		t.Error("concurrent Rebuild ran, want skip")
	}

	// With the lock released the rebuild goes through.
	done, err = o.Rebuild(docPath)
	testutil.MustNoErr(t, err, "rebuild after unlock")
	if !done {
		t.Error("Rebuild returned false after unlock")
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name    string
		v       export.Value
		present bool
		want    interface{}
	}{
		{"absent field", export.Value{}, false, nil},
		{"json null", export.Null(), true, nil},
		{"true", export.Boolean(true), true, int64(1)},
		{"false", export.Boolean(false), true, int64(0)},
		{"integer", export.Number("42"), true, int64(42)},
		{"float", export.Number("12.5"), true, 12.5},
		{"plain string", export.Text("hola"), true, "hola"},
		{"empty string", export.Text(""), true, nil},
		{"literal NULL", export.Text("NULL"), true, nil},
		{"literal null lowercase", export.Text("null"), true, nil},
		{"nested JSON", export.Value{Kind: export.KindRaw, Raw: `{"a":1}`}, true, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeValue(tt.v, tt.present); got != tt.want {
				t.Errorf("NormalizeValue = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestInsertChunking(t *testing.T) {
	// Four columns against the 900-parameter budget forces multiple chunks
	// once the table is large enough.
	dir := t.TempDir()
	active := filepath.Join(dir, "store.db")

	rows := make([]map[string]interface{}, 500)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"id": i + 1, "a": "x", "b": i, "c": float64(i) / 2,
		}
	}
	doc := testutil.ExportDoc(t, testutil.ExportTable{
		Name: "bulk",
		Columns: []testutil.ExportColumn{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "a", Type: "TEXT"},
			{Name: "b", Type: "INTEGER"},
			{Name: "c", Type: "REAL"},
		},
		Rows:     rows,
		RowCount: testutil.Int64Ptr(500),
	})
	docPath := testutil.WriteFile(t, dir, "bulk.json", doc)

	o := New(active)
	done, err := o.Rebuild(docPath)
	testutil.MustNoErr(t, err, "rebuild")
	if !done {
		t.Fatal("Rebuild returned false")
	}

	db := openStore(t, active)
	if got := countRows(t, db, "bulk"); got != 500 {
		t.Errorf("bulk rows = %d, want 500", got)
	}
}
