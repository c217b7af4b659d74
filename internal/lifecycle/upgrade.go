package lifecycle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/schema"
)

// DefaultTentativeTTL is the number of gate runs a new claim may stay tentative
const DefaultTentativeTTL = 3

// UpgradeOptions are the defaults applied to freshly upgraded claims
type UpgradeOptions struct {
	Outcome      schema.DefaultOutcome
	TentativeTTL int
}

// UpgradeVerifyLedger converts upstream verify rows into version-1 claims.
// It is a no-op once the ledger holds any entry; the count of created claims is returned.
func (m *Machine) UpgradeVerifyLedger(rows []model.VerifyClaim, opts UpgradeOptions) (int, error) {
	created := 0
	err := m.Edit(func(tx *Tx) error {
		if len(tx.claims) > 0 {
			return nil
		}

		seen := make(map[string]bool, len(rows))
		for i, row := range rows {
			c := upgradeRow(row, i, opts)
			if seen[c.ClaimID] {
				m.logger.Warn("skipping duplicate verify claim", zap.String("claim_id", c.ClaimID))
				continue
			}
			seen[c.ClaimID] = true
			if err := tx.Append(c); err != nil {
				return fmt.Errorf("upgrade %s: %w", c.Ref(), err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func upgradeRow(row model.VerifyClaim, index int, opts UpgradeOptions) model.Claim {
	id := row.ClaimID
	if id == "" {
		id = fmt.Sprintf("cl_%d", index+1)
	}

	state := model.StateProposed
	if row.IsVerified {
		state = model.StateEvidenced
	}

	confidence := row.VerificationTier.Confidence()
	if row.Confidence != nil {
		confidence = clamp01(*row.Confidence)
	}

	ttl := opts.TentativeTTL
	if ttl <= 0 {
		ttl = DefaultTentativeTTL
	}

	out := opts.Outcome
	c := model.Claim{
		ClaimID:              id,
		ClaimVersion:         1,
		Text:                 row.Text,
		SupportingSourceIDs:  append([]string{}, row.SupportingSourceIDs...),
		IsVerified:           row.IsVerified,
		VerificationTier:     row.VerificationTier,
		State:                state,
		OutcomeType:          out.OutcomeType,
		ResolutionAuthority:  out.ResolutionAuthority,
		ResolutionMethod:     out.ResolutionMethod,
		SettlementConfidence: confidence,
		PTrue:                confidence,
		AuditTraceRequired:   out.AuditTraceRequired,
		TentativeTTL:         ttl,
		ReopenAllowed:        true,
		ReopenConditions:     []string{},
		Contradicts:          []model.Contradiction{},
	}
	if c.VerificationTier == "" {
		c.VerificationTier = model.TierUnverified
	}
	if c.Outcome().RequiresAuditTrace() {
		c.AuditTraceRequired = true
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
