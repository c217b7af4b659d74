// Package triage scores claims and selects the ones worth attacking.
package triage

import (
	"math"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/aem/internal/model"
)

// DefaultTopK is the number of claims selected when no limit is configured
const DefaultTopK = 10

// Score is the triage vector of one claim
type Score struct {
	ClaimRef              string  `json:"claim_ref"`
	ImpactScore           float64 `json:"impact_score"`
	DecisionRelevance     float64 `json:"decision_relevance"`
	FragilityScore        float64 `json:"fragility_score"`
	AttackSurfaceEstimate float64 `json:"attack_surface_estimate"`
}

// Scorer computes triage vectors
type Scorer struct {
	linked map[string]bool
}

// NewScorer creates a scorer. linkedClaims holds the claim ids linked to any question.
func NewScorer(linkedClaims []string) *Scorer {
	linked := make(map[string]bool, len(linkedClaims))
	for _, id := range linkedClaims {
		linked[id] = true
	}
	return &Scorer{linked: linked}
}

// Score computes the vector for one claim
func (s *Scorer) Score(c *model.Claim) Score {
	return Score{
		ClaimRef:              c.Ref(),
		ImpactScore:           round3(s.impact(c)),
		DecisionRelevance:     0.5,
		FragilityScore:        round3(fragility(c)),
		AttackSurfaceEstimate: round3(attackSurface(c)),
	}
}

func (s *Scorer) impact(c *model.Claim) float64 {
	score := 0.0
	if c.IsVerified {
		score += 0.4
	}
	if c.State == model.StateStable {
		score += 0.2
	}
	score += math.Min(0.2, float64(utf8.RuneCountInString(c.Text))/500)
	if s.linked[c.ClaimID] {
		score += 0.2
	}
	return score
}

func fragility(c *model.Claim) float64 {
	score := 0.0
	if len(c.SupportingSourceIDs) <= 1 {
		score += 0.3
	}
	if len(c.Contradicts) > 0 {
		score += 0.3
	}
	if c.State == model.StateContested || c.FalsificationStatus == model.PassTentative {
		score += 0.2
	}
	return score
}

func attackSurface(c *model.Claim) float64 {
	score := 0.2
	if hasNumericSignal(c.Text) {
		score += 0.3
	}
	if utf8.RuneCountInString(c.Text) > 150 {
		score += 0.2
	}
	return score
}

func hasNumericSignal(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) || r == '%' {
			return true
		}
	}
	return false
}

// Select scores every non-terminal claim and returns the top k by impact then
// fragility. Ties keep ledger order.
func (s *Scorer) Select(claims []model.Claim, k int) []Score {
	if k <= 0 {
		k = DefaultTopK
	}

	scores := make([]Score, 0, len(claims))
	for i := range claims {
		if claims[i].State.Terminal() {
			continue
		}
		scores = append(scores, s.Score(&claims[i]))
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].ImpactScore != scores[j].ImpactScore {
			return scores[i].ImpactScore > scores[j].ImpactScore
		}
		return scores[i].FragilityScore > scores[j].FragilityScore
	})

	if len(scores) > k {
		scores = scores[:k]
	}
	return scores
}

// Refs returns the claim refs of a selection
func Refs(scores []Score) []string {
	refs := make([]string, 0, len(scores))
	for _, s := range scores {
		refs = append(refs, s.ClaimRef)
	}
	return refs
}

// Fragilities returns the fragility column of a selection
func Fragilities(scores []Score) []float64 {
	out := make([]float64, 0, len(scores))
	for _, s := range scores {
		out = append(out, s.FragilityScore)
	}
	return out
}

// Relevances returns the decision relevance column of a selection
func Relevances(scores []Score) []float64 {
	out := make([]float64, 0, len(scores))
	for _, s := range scores {
		out = append(out, s.DecisionRelevance)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
