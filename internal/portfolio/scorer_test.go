package portfolio

import (
	"testing"

	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/model"
)

func claims(n, sourcesEach int) []model.Claim {
	out := make([]model.Claim, n)
	for i := range out {
		out[i] = model.Claim{ClaimID: "cl_" + string(rune('a'+i)), ClaimVersion: 1, Text: "claim text " + string(rune('a'+i))}
		for j := 0; j < sourcesEach; j++ {
			out[i].SupportingSourceIDs = append(out[i].SupportingSourceIDs, "https://example.org/"+string(rune('a'+j)))
		}
	}
	return out
}

func findSignal(signals []model.Signal, typ model.SignalType) *model.Signal {
	for i := range signals {
		if signals[i].Type == typ {
			return &signals[i]
		}
	}
	return nil
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name        string
		claims      []model.Claim
		wantDensity float64
		wantFlood   float64
		wantScore   float64
	}{
		{"empty ledger", nil, 0, 0, 1},
		{"sparse", claims(4, 1), 0.2, 0, 1},
		{"at threshold", claims(2, 4), 0.8, 0, 1},
		{"flooded", claims(2, 6), 1, 0.04, 0.96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewScorer().Calculate(tt.claims, nil)
			if got.EvidenceDensity != tt.wantDensity {
				t.Errorf("density = %v, want %v", got.EvidenceDensity, tt.wantDensity)
			}
			if got.FloodPenalty != tt.wantFlood {
				t.Errorf("flood = %v, want %v", got.FloodPenalty, tt.wantFlood)
			}
			if got.PortfolioScore != tt.wantScore {
				t.Errorf("score = %v, want %v", got.PortfolioScore, tt.wantScore)
			}
			if sig := findSignal(got.Signals, model.SignalEvidenceDensity); sig == nil {
				t.Error("expected evidence density signal")
			}
			hasFlood := findSignal(got.Signals, model.SignalFlood) != nil
			if hasFlood != (tt.wantFlood > 0) {
				t.Errorf("flood signal present = %v, want %v", hasFlood, tt.wantFlood > 0)
			}
		})
	}
}

func TestCalculate_DuplicatesCarryNoPenalty(t *testing.T) {
	c := []model.Claim{
		{ClaimID: "cl_1", ClaimVersion: 1, Text: "GDP grew 2% in 2023."},
		{ClaimID: "cl_2", ClaimVersion: 1, Text: "gdp grew 2% in 2023"},
		{ClaimID: "cl_3", ClaimVersion: 1, Text: "Something else entirely."},
	}
	got := NewScorer().Calculate(c, nil)

	sig := findSignal(got.Signals, model.SignalNearDuplicates)
	if sig == nil {
		t.Fatal("expected near_duplicates signal")
	}
	groups := sig.Data["groups"].([][]string)
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Errorf("unexpected groups %v", groups)
	}
	if got.PortfolioScore != 1 {
		t.Errorf("duplicates must not change the score, got %v", got.PortfolioScore)
	}
}

func TestCalculate_AuthorityMix(t *testing.T) {
	idx := evidence.NewBuilder(nil, nil).Build(evidence.Input{Findings: []model.Finding{
		{SourceURL: "https://who.int/report", SourceType: "primary"},
		{SourceURL: "https://blog.example.com/a"},
	}})
	c := []model.Claim{{ClaimID: "cl_1", ClaimVersion: 1, Text: "x",
		SupportingSourceIDs: []string{"https://who.int/report", "https://blog.example.com/a"}}}

	sig := findSignal(NewScorer().Calculate(c, idx).Signals, model.SignalAuthorityMix)
	if sig == nil {
		t.Fatal("expected authority mix signal")
	}
	if sig.Data["primary"] != 1 || sig.Data["cited"] != 2 {
		t.Errorf("unexpected data %v", sig.Data)
	}
}
