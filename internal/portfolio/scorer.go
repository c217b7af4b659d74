package portfolio

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

const (
	sourcesPerClaim = 5
	floodThreshold  = 0.8
	floodWeight     = 0.2
)

// Scorer computes the anti-gaming portfolio aggregate and its diagnostic signals
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{now: func() time.Time { return time.Now().UTC() }}
}

// Calculate scores the latest claims. idx may be nil.
func (s *Scorer) Calculate(claims []model.Claim, idx *evidence.Index) model.PortfolioState {
	var signals []model.Signal

	// 1. Evidence density
	total := 0
	for _, c := range claims {
		total += len(c.SupportingSourceIDs)
	}
	density, densitySignal := s.calculateDensity(len(claims), total)
	signals = append(signals, densitySignal)

	// 2. Flood penalty
	flood, floodSignal := s.calculateFlood(density)
	if flood > 0 {
		signals = append(signals, floodSignal)
	}

	// 3. Exact duplicates, reported without penalty
	if dupSignal, ok := s.detectDuplicates(claims); ok {
		signals = append(signals, dupSignal)
	}

	// 4. Authority mix of the evidence backing the portfolio
	if idx != nil && idx.Len() > 0 {
		signals = append(signals, s.authorityMix(claims, idx))
	}

	return model.PortfolioState{
		ClaimsCount:            len(claims),
		TotalSupportingSources: total,
		EvidenceDensity:        round3(density),
		FloodPenalty:           round3(flood),
		PortfolioScore:         round3(math.Max(0, 1-flood)),
		Signals:                signals,
		UpdatedAt:              s.now(),
	}
}

// calculateDensity returns min(1, sources / (5 * claims))
func (s *Scorer) calculateDensity(claims, sources int) (float64, model.Signal) {
	if claims == 0 {
		return 0, model.Signal{
			Type:        model.SignalEvidenceDensity,
			Severity:    model.SeverityWarning,
			Description: "No claims in ledger",
			Data:        map[string]interface{}{"claims": 0, "sources": sources},
		}
	}

	density := math.Min(1, float64(sources)/float64(sourcesPerClaim*claims))

	severity := model.SeverityInfo
	if density < 0.2 {
		severity = model.SeverityWarning
	}

	return density, model.Signal{
		Type:        model.SignalEvidenceDensity,
		Severity:    severity,
		Description: fmt.Sprintf("Evidence density: %.2f", density),
		Data: map[string]interface{}{
			"claims":  claims,
			"sources": sources,
			"density": round3(density),
			"formula": "min(1, total_supporting_sources / (5 * claims_count))",
		},
	}
}

// calculateFlood penalizes padding claims with sources past the density threshold
func (s *Scorer) calculateFlood(density float64) (float64, model.Signal) {
	penalty := math.Max(0, density-floodThreshold) * floodWeight
	return penalty, model.Signal{
		Type:        model.SignalFlood,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Evidence flood: density %.2f exceeds %.2f", density, floodThreshold),
		Data: map[string]interface{}{
			"density":   round3(density),
			"threshold": floodThreshold,
			"penalty":   round3(penalty),
			"formula":   "max(0, evidence_density - 0.8) * 0.2",
		},
	}
}

// detectDuplicates groups claims whose normalized text is identical
func (s *Scorer) detectDuplicates(claims []model.Claim) (model.Signal, bool) {
	groups := make(map[string][]string)
	for _, c := range claims {
		key := normalizeText(c.Text)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], c.Ref())
	}

	var dupes [][]string
	for _, refs := range groups {
		if len(refs) > 1 {
			dupes = append(dupes, refs)
		}
	}
	if len(dupes) == 0 {
		return model.Signal{}, false
	}
	sort.Slice(dupes, func(i, j int) bool { return dupes[i][0] < dupes[j][0] })

	return model.Signal{
		Type:        model.SignalNearDuplicates,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d groups of claims share the same normalized text", len(dupes)),
		Data: map[string]interface{}{
			"groups":  dupes,
			"penalty": 0,
		},
	}, true
}

// authorityMix reports the share of cited evidence flagged primary
func (s *Scorer) authorityMix(claims []model.Claim, idx *evidence.Index) model.Signal {
	seen := make(map[string]bool)
	primary, cited := 0, 0
	clusters := make(map[string]bool)
	for i := range claims {
		for _, e := range idx.ForClaim(&claims[i]) {
			if seen[e.EvidenceID] {
				continue
			}
			seen[e.EvidenceID] = true
			cited++
			clusters[e.SourceClusterID] = true
			if e.PrimarySourceFlag {
				primary++
			}
		}
	}

	share := 0.0
	if cited > 0 {
		share = float64(primary) / float64(cited)
	}
	severity := model.SeverityInfo
	if cited > 0 && share < 0.2 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalAuthorityMix,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d cited sources are primary across %d clusters", primary, cited, len(clusters)),
		Data: map[string]interface{}{
			"primary":       primary,
			"cited":         cited,
			"clusters":      len(clusters),
			"primary_share": round3(share),
		},
	}
}

func normalizeText(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '%')
	})
	return strings.Join(fields, " ")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Save writes the portfolio state atomically
func Save(path string, state model.PortfolioState) error {
	return store.WriteJSON(path, state)
}
