package model

import "time"

// Settlement is the market decision for one claim version
type Settlement struct {
	ClaimRef                    string              `json:"claim_ref"`
	Decision                    FalsificationStatus `json:"decision"`
	SettlementConfidence        float64             `json:"settlement_confidence"`
	OracleIntegrityPass         bool                `json:"oracle_integrity_pass"`
	ContradictionReviewRequired bool                `json:"contradiction_review_required"`
	Reason                      string              `json:"reason,omitempty"`
	SettledAt                   time.Time           `json:"settled_at"`
}

// PortfolioState is the anti-gaming aggregate over the ledger
type PortfolioState struct {
	ClaimsCount            int       `json:"claims_count"`
	TotalSupportingSources int       `json:"total_supporting_sources"`
	EvidenceDensity        float64   `json:"evidence_density"`
	FloodPenalty           float64   `json:"flood_penalty"`
	PortfolioScore         float64   `json:"portfolio_score"`
	Signals                []Signal  `json:"signals"`
	UpdatedAt              time.Time `json:"updated_at"`
}
