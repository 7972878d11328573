package models

import (
	"errors"
	"testing"
)

func TestDiagnoseQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *DiagnoseQuery
		wantErr bool
	}{
		{"empty query", &DiagnoseQuery{Query: ""}, true},
		{"blank query", &DiagnoseQuery{Query: "   "}, true},
		{"valid query", &DiagnoseQuery{Query: "smells burnt"}, false},
		{"top_k too large", &DiagnoseQuery{Query: "x", TopK: 51}, true},
		{"top_k negative", &DiagnoseQuery{Query: "x", TopK: -1}, true},
		{"min_similarity above one", &DiagnoseQuery{Query: "x", MinSimilarity: 1.5}, true},
		{"top_k at max", &DiagnoseQuery{Query: "x", TopK: 50}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("Validate() error = %v, want ErrInvalidQuery", err)
			}
			if !tt.wantErr && tt.query.TopK == 0 {
				t.Error("expected default top_k to be set")
			}
		})
	}
}

func TestDiagnoseQuery_ValidateCanonicalizesFilters(t *testing.T) {
	q := &DiagnoseQuery{Query: "noise", Component: " Pumps ", Model: "ABB M3BP"}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.Component != "pump" {
		t.Errorf("Component = %q, want pump", q.Component)
	}
	if q.Model != "abb m3bp" {
		t.Errorf("Model = %q, want abb m3bp", q.Model)
	}
	if q.TopK != DefaultTopK {
		t.Errorf("TopK = %d", q.TopK)
	}
}

func TestCanonicalLabel(t *testing.T) {
	tests := map[string]string{
		"Motors":          "motor",
		"  PUMPS ":        "pump",
		"compressors":     "compressor",
		"Gas Turbine":     "gas turbine",
		"":                "",
		"centrifugal fan": "centrifugal fan",
	}
	for in, want := range tests {
		if got := CanonicalLabel(in); got != want {
			t.Errorf("CanonicalLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsReasonableComponent(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"pump", true},
		{"gas turbine", true},
		{"centrifugal compressor unit", true},
		{"heat-exchanger/shell", true},
		{"", false},
		{"pump, motor", false},
		{"bearing failed.", false},
		{"this is far too long", false},
		{"-pump", false},
		{"Pump", false},
	}
	for _, tt := range tests {
		if got := IsReasonableComponent(tt.in); got != tt.want {
			t.Errorf("IsReasonableComponent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCombinedText(t *testing.T) {
	r := Record{FaultDescription: "Burnt SMELL", RootCause: "Winding Overheating", CorrectiveAction: "Rewind"}
	if got := r.CombinedText(); got != "burnt smell winding overheating rewind" {
		t.Errorf("CombinedText = %q", got)
	}
	c := NewCandidate(r, 0.8)
	if c.CombinedText() != r.CombinedText() {
		t.Errorf("candidate text %q differs from record text", c.CombinedText())
	}
	if c.MatchedFaultDescription != "Burnt SMELL" || c.Similarity != 0.8 {
		t.Errorf("unexpected candidate %+v", c)
	}
}

func TestRecord_Canonical(t *testing.T) {
	r := Record{Component: " Motors", Model: " ", FaultDescription: " hum ", RootCause: "x", CorrectiveAction: "y"}.Canonical()
	if r.Component != "motor" || r.Model != "" || r.FaultDescription != "hum" {
		t.Errorf("Canonical = %+v", r)
	}
}
