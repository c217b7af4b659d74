package model

import "time"

// IGMode selects how information gain is measured
type IGMode string

const (
	IGModeEntropy IGMode = "entropy"
	IGModeProxy   IGMode = "proxy"
)

// EpisodeRecord is one line of policy/episode_metrics.jsonl
type EpisodeRecord struct {
	RunID               string    `json:"run_id,omitempty"`
	PriorEntropy        float64   `json:"prior_entropy"`
	PosteriorEntropy    float64   `json:"posterior_entropy"`
	IG                  float64   `json:"ig"`
	IGPerToken          float64   `json:"ig_per_token"`
	IGMode              IGMode    `json:"ig_mode"`
	OracleIntegrityRate float64   `json:"oracle_integrity_rate"`
	TentativeDecayRate  float64   `json:"tentative_decay_rate"`
	ResolutionRate      float64   `json:"resolution_rate"`
	StableClaimRate     float64   `json:"stable_claim_rate"`
	FalseCollapseRate   float64   `json:"false_collapse_rate"`
	EvidenceDelta       int       `json:"evidence_delta"`
	EvidenceCount       int       `json:"evidence_count"`
	MeanWidth           float64   `json:"mean_width"`
	MeanResidual        float64   `json:"mean_residual"`
	TokensSpent         int       `json:"tokens_spent"`
	ClaimsCount         int       `json:"claims_count"`
	TS                  time.Time `json:"ts"`
}
