package metrics

import (
	"math"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/ppiankov/aem/internal/market"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

const (
	pMin = 0.01
	pMax = 0.99

	// priors for the first proxy-mode episode
	priorWidth    = 1.0
	priorResidual = 0.5
)

// ModeFor maps a project question type onto an IG mode; unknown types use entropy
func ModeFor(questionType string) model.IGMode {
	switch strings.ToLower(strings.TrimSpace(questionType)) {
	case "structural", "explanatory":
		return model.IGModeProxy
	default:
		return model.IGModeEntropy
	}
}

// Input is everything one episode record is computed from
type Input struct {
	RunID         string
	Mode          model.IGMode
	Claims        []model.Claim
	Settlements   []model.Settlement
	Attacks       []model.Attack
	EvidenceCount int
	TokensSpent   int
	Previous      *model.EpisodeRecord
}

// Compute builds the episode record for one orchestrator run
func Compute(in Input, now time.Time) model.EpisodeRecord {
	rec := model.EpisodeRecord{
		RunID:               in.RunID,
		IGMode:              in.Mode,
		OracleIntegrityRate: market.IntegrityRate(in.Settlements),
		EvidenceCount:       in.EvidenceCount,
		TokensSpent:         in.TokensSpent,
		ClaimsCount:         len(in.Claims),
		MeanWidth:           meanWidth(in.Claims),
		MeanResidual:        meanResidual(in.Attacks),
		TS:                  now.UTC(),
	}
	if rec.IGMode == "" {
		rec.IGMode = model.IGModeEntropy
	}

	switch rec.IGMode {
	case model.IGModeProxy:
		prevWidth, prevResidual := priorWidth, priorResidual
		if in.Previous != nil {
			prevWidth, prevResidual = in.Previous.MeanWidth, in.Previous.MeanResidual
		}
		rec.PriorEntropy = prevWidth
		rec.PosteriorEntropy = rec.MeanWidth
		rec.IG = math.Max(0, prevWidth-rec.MeanWidth) + math.Max(0, prevResidual-rec.MeanResidual)
	default:
		rec.PriorEntropy = BinaryEntropy(0.5)
		rec.PosteriorEntropy = posteriorEntropy(in.Claims)
		rec.IG = math.Max(0, rec.PriorEntropy-rec.PosteriorEntropy)
	}
	rec.IG = round4(rec.IG)
	rec.IGPerToken = rec.IG / float64(max(in.TokensSpent, 1))

	rec.ResolutionRate, rec.StableClaimRate = resolution(in.Claims)
	rec.TentativeDecayRate = tentativeDecay(in.Claims)
	rec.FalseCollapseRate = falseCollapse(in.Claims)

	rec.EvidenceDelta = in.EvidenceCount
	if in.Previous != nil {
		rec.EvidenceDelta = in.EvidenceCount - in.Previous.EvidenceCount
	}
	return rec
}

// BinaryEntropy is the entropy in bits of a Bernoulli(p) belief, p clipped to [0.01, 0.99]
func BinaryEntropy(p float64) float64 {
	p = math.Max(pMin, math.Min(pMax, p))
	return stat.Entropy([]float64{p, 1 - p}) / math.Ln2
}

// posteriorEntropy averages per-claim binary entropy; an empty ledger keeps the prior
func posteriorEntropy(claims []model.Claim) float64 {
	if len(claims) == 0 {
		return BinaryEntropy(0.5)
	}
	h := make([]float64, len(claims))
	for i, c := range claims {
		h[i] = BinaryEntropy(c.PTrue)
	}
	return mean(h, BinaryEntropy(0.5))
}

// meanWidth is the mean uncertainty width 1 - settlement_confidence
func meanWidth(claims []model.Claim) float64 {
	w := make([]float64, len(claims))
	for i, c := range claims {
		w[i] = 1 - c.SettlementConfidence
	}
	return round4(mean(w, priorWidth))
}

// meanResidual is the mean unresolved residual of selected attacks
func meanResidual(attacks []model.Attack) float64 {
	var r []float64
	for _, a := range attacks {
		if a.SelectedForGate {
			r = append(r, a.UnresolvedResidual)
		}
	}
	return round4(mean(r, priorResidual))
}

func resolution(claims []model.Claim) (float64, float64) {
	if len(claims) == 0 {
		return 0, 0
	}
	resolved, stable := 0, 0
	for _, c := range claims {
		if c.State == model.StateStable {
			stable++
		}
		if c.State == model.StateStable || c.IsVerified {
			resolved++
		}
	}
	n := float64(len(claims))
	return round4(float64(resolved) / n), round4(float64(stable) / n)
}

// tentativeDecay is the share of claims that spent tentative cycles and ended in FAIL
func tentativeDecay(claims []model.Claim) float64 {
	tentative, failed := 0, 0
	for _, c := range claims {
		if c.TentativeCyclesUsed == 0 {
			continue
		}
		tentative++
		if c.FalsificationStatus == model.Fail {
			failed++
		}
	}
	if tentative == 0 {
		return 0
	}
	return round4(float64(failed) / float64(tentative))
}

// falseCollapse is the share of PASS_STABLE claims still carrying a contradiction
func falseCollapse(claims []model.Claim) float64 {
	stable, collapsed := 0, 0
	for _, c := range claims {
		if c.FalsificationStatus != model.PassStable {
			continue
		}
		stable++
		if len(c.Contradicts) > 0 {
			collapsed++
		}
	}
	if stable == 0 {
		return 0
	}
	return round4(float64(collapsed) / float64(stable))
}

func mean(values []float64, empty float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return empty
	}
	return m
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Append adds one record to the episode journal
func Append(path string, rec model.EpisodeRecord) error {
	return store.AppendJSONL(path, rec)
}

// Last returns the most recent readable record, or nil
func Last(path string) (*model.EpisodeRecord, error) {
	all, err := store.ReadJSONL[model.EpisodeRecord](path)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[len(all)-1], nil
}
