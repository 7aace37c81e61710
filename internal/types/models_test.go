package types

import "testing"

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusNotStarted, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if !tt.status.Valid() {
			t.Errorf("%s should be valid", tt.status)
		}
	}
	if Status("paused").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestAnalysisProduced(t *testing.T) {
	var nilAnalysis *Analysis
	if nilAnalysis.Produced(FacetSummary) {
		t.Fatal("nil analysis has no facets")
	}

	a := &Analysis{ID: "c1", Summary: &Summary{Summary: "hello"}, Highlights: []Highlight{}}
	if !a.Produced(FacetSummary) {
		t.Error("summary should be produced")
	}
	if !a.Produced(FacetHighlights) {
		t.Error("empty highlights list still counts as produced")
	}
	if a.Produced(FacetInsights) || a.Produced(FacetBreakdown) {
		t.Error("insights and breakdown were never written")
	}
}
