package raw

import (
	"encoding/json"
	"testing"
)

func decodeRow(t *testing.T, s string) Row {
	t.Helper()
	var r Row
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		t.Fatalf("unmarshal %s: %v", s, err)
	}
	return r
}

func TestFloat(t *testing.T) {
	r := decodeRow(t, `{"n":42.5,"s":"17","bad":"abc","nul":null,"b":true,"obj":{"x":1},"neg":-3,"sp":" 8 "}`)
	tests := []struct {
		key  string
		want float64
	}{
		{"n", 42.5},
		{"s", 17},
		{"bad", 0},
		{"nul", 0},
		{"b", 0},
		{"obj", 0},
		{"neg", -3},
		{"sp", 8},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := r.Float(tt.key); got != tt.want {
			t.Errorf("Float(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestFloatNonFiniteString(t *testing.T) {
	for _, s := range []string{`"NaN"`, `"Inf"`, `"-Inf"`} {
		if got := Float(json.RawMessage(s)); got != 0 {
			t.Errorf("Float(%s) = %v, want 0", s, got)
		}
	}
}

func TestString(t *testing.T) {
	r := decodeRow(t, `{"chain":"ethereum","n":1,"nul":null}`)

	if got, ok := r.String("chain"); !ok || got != "ethereum" {
		t.Errorf("String(chain) = %q, %v, want ethereum, true", got, ok)
	}
	if _, ok := r.String("n"); ok {
		t.Error("String(n) ok = true for a number")
	}
	if _, ok := r.String("nul"); ok {
		t.Error("String(nul) ok = true for null")
	}
	if _, ok := r.String("missing"); ok {
		t.Error("String(missing) ok = true")
	}
}

func TestRows(t *testing.T) {
	r := decodeRow(t, `{"items":[{"a":1},{"a":2}],"nul":null,"bad":3}`)

	rows, err := r.Rows("items")
	if err != nil {
		t.Fatalf("Rows(items) error: %v", err)
	}
	if len(rows) != 2 || rows[1].Float("a") != 2 {
		t.Errorf("Rows(items) = %v", rows)
	}
	if rows, err := r.Rows("nul"); err != nil || rows != nil {
		t.Errorf("Rows(nul) = %v, %v, want nil, nil", rows, err)
	}
	if _, err := r.Rows("bad"); err == nil {
		t.Error("Rows(bad) expected error, got nil")
	}
}
