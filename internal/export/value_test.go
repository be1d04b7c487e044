package export

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValueUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Value
	}{
		{"null", `null`, Null()},
		{"true", `true`, Boolean(true)},
		{"false", `false`, Boolean(false)},
		{"integer", `42`, Number("42")},
		{"negative", `-7`, Number("-7")},
		{"float", `12.5`, Number("12.5")},
		{"big integer keeps precision", `9007199254740993`, Number("9007199254740993")},
		{"string", `"hola"`, Text("hola")},
		{"empty string", `""`, Text("")},
		{"object kept raw", `{"a":1}`, Value{Kind: KindRaw, Raw: `{"a":1}`}},
		{"array kept raw", `[1,2]`, Value{Kind: KindRaw, Raw: `[1,2]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Value
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.json, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValueUnmarshalInvalid(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`bogus`), &v); err == nil {
		t.Error("Unmarshal(bogus) succeeded, want error")
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Boolean(true), "true"},
		{Boolean(false), "false"},
		{Number("3.14"), "3.14"},
		{Text("abc"), "abc"},
		{Value{Kind: KindRaw, Raw: `[1]`}, `[1]`},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRowFieldOrder(t *testing.T) {
	var r Row
	data := `{"zeta": 1, "alpha": "x", "mid": null}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, r.Names()); diff != "" {
		t.Errorf("field order mismatch (-want +got):\n%s", diff)
	}

	v, ok := r.Get("alpha")
	if !ok {
		t.Fatal("Get(alpha) not found")
	}
	if v.Kind != KindString || v.Str != "x" {
		t.Errorf("Get(alpha) = %+v", v)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found, want absent")
	}
}

func TestRowRejectsNonObject(t *testing.T) {
	var r Row
	if err := json.Unmarshal([]byte(`[1,2]`), &r); err == nil {
		t.Error("Unmarshal(array) succeeded, want error")
	}
}
