package market

import (
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/schema"
	"github.com/ppiankov/aem/internal/store"
)

const (
	// IntegrityMinConfidence is required of every settlement that passes integrity
	IntegrityMinConfidence = 0.5

	// IntegrityStableConfidence is additionally required of PASS_STABLE settlements
	IntegrityStableConfidence = 0.8

	reasonContradictionReview = "contradiction_review_required"
)

// Scorer writes one append-only settlement per claim ref
type Scorer struct {
	schema *schema.Schema
	logger *zap.Logger
	now    func() time.Time
}

// NewScorer creates a market scorer validating outcomes against s
func NewScorer(s *schema.Schema, logger *zap.Logger) *Scorer {
	if s == nil {
		s = schema.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{schema: s, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Settle derives the settlement of one claim
func (s *Scorer) Settle(c *model.Claim) model.Settlement {
	decision := c.FalsificationStatus
	if decision == "" {
		decision = model.Fail
	}
	reason := c.FailureBoundary.Reason

	review := len(c.Contradicts) > 0
	if review && decision == model.PassStable {
		decision = model.PassTentative
		reason = reasonContradictionReview
	}

	if reason == "" {
		if v := schema.ValidateOutcomeShapeWith(s.schema, c.Outcome()); len(v) > 0 {
			reason = "schema_violation:" + v[0]
		}
	}

	conf := c.SettlementConfidence
	return model.Settlement{
		ClaimRef:                    c.Ref(),
		Decision:                    decision,
		SettlementConfidence:        conf,
		OracleIntegrityPass:         conf >= IntegrityMinConfidence && (decision != model.PassStable || conf >= IntegrityStableConfidence),
		ContradictionReviewRequired: review,
		Reason:                      reason,
		SettledAt:                   s.now(),
	}
}

// Result summarizes one market run
type Result struct {
	Written  int `json:"written"`
	Existing int `json:"existing"`
}

// Run appends settlements for claims whose ref is not yet in the file at path.
// Existing settlements are never rewritten.
func (s *Scorer) Run(path string, claims []model.Claim) (Result, error) {
	existing, err := store.ReadJSONL[model.Settlement](path)
	if err != nil {
		return Result{}, err
	}
	settled := make(map[string]bool, len(existing))
	for _, st := range existing {
		settled[st.ClaimRef] = true
	}

	var fresh []model.Settlement
	for i := range claims {
		ref := claims[i].Ref()
		if settled[ref] {
			continue
		}
		settled[ref] = true
		fresh = append(fresh, s.Settle(&claims[i]))
	}

	if err := store.AppendJSONL(path, fresh...); err != nil {
		return Result{}, err
	}

	s.logger.Info("settlements written",
		zap.Int("written", len(fresh)),
		zap.Int("existing", len(existing)))
	return Result{Written: len(fresh), Existing: len(existing)}, nil
}

// Load reads every readable settlement
func Load(path string) ([]model.Settlement, error) {
	return store.ReadJSONL[model.Settlement](path)
}

// IntegrityRate is the share of PASS_STABLE settlements passing oracle integrity,
// 1.0 when there are none
func IntegrityRate(settlements []model.Settlement) float64 {
	total, pass := 0, 0
	for _, st := range settlements {
		if st.Decision != model.PassStable {
			continue
		}
		total++
		if st.OracleIntegrityPass {
			pass++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(pass) / float64(total)
}
