package inference

import (
	"encoding/json"
	"testing"
)

func TestDecodeDiff(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid",
			raw:  `{"summary":"dos cambios","changes":[{"zone":"Eje A-B","kind":"added","description":"nuevo tabique","severity":"media"}]}`,
		},
		{
			name: "valid without severity",
			raw:  `{"summary":"s","changes":[{"zone":"z","kind":"removed","description":"d"}]}`,
		},
		{
			name:    "missing summary",
			raw:     `{"changes":[]}`,
			wantErr: true,
		},
		{
			name:    "unknown change kind",
			raw:     `{"summary":"s","changes":[{"zone":"z","kind":"renamed","description":"d"}]}`,
			wantErr: true,
		},
		{
			name:    "extra top-level field",
			raw:     `{"summary":"s","changes":[],"confidence":0.9}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `["summary"]`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecodeDiff(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Summary == "" {
				t.Error("expected summary to be populated")
			}
		})
	}
}

func TestDecodeCubicacion(t *testing.T) {
	valid := `{"items":[{"code":"P-101","description":"Hormigón G25","unit":"m3","quantity_before":12.5,"quantity_after":15,"delta":2.5}],"notes":"n"}`
	result, err := DecodeCubicacion(json.RawMessage(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Delta != 2.5 {
		t.Errorf("unexpected decode: %+v", result)
	}

	// Quantities must be numbers, not strings.
	if _, err := DecodeCubicacion(json.RawMessage(`{"items":[{"description":"d","unit":"m3","quantity_before":"12","quantity_after":15,"delta":3}]}`)); err == nil {
		t.Error("expected error for string quantity")
	}
	if _, err := DecodeCubicacion(json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for missing items")
	}
}

func TestDecodeImpactos(t *testing.T) {
	valid := `{"summary":"s","impactos":[{"title":"Costo","cost_delta":1200000,"children":[{"title":"Hormigón"}]}]}`
	result, err := DecodeImpactos(json.RawMessage(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := result.CountImpactos()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("node count = %d, want 2", n)
	}

	if _, err := DecodeImpactos(json.RawMessage(`{"impactos":[{"children":[]}]}`)); err == nil {
		t.Error("expected error for node without title")
	}
	if _, err := DecodeImpactos(json.RawMessage(`{"impactos":[{"title":"a","children":[{"title":"b","extra":true}]}]}`)); err == nil {
		t.Error("expected error for extra nested field")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
