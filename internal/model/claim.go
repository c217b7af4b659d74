package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClaimState is a position in the claim lifecycle
type ClaimState string

const (
	StateProposed  ClaimState = "proposed"
	StateEvidenced ClaimState = "evidenced"
	StateAttacked  ClaimState = "attacked"
	StateDefended  ClaimState = "defended"
	StateStable    ClaimState = "stable"
	StateDecaying  ClaimState = "decaying"
	StateContested ClaimState = "contested"
	StateFalsified ClaimState = "falsified"
	StateRetired   ClaimState = "retired"
)

// ValidStates lists every lifecycle state in declaration order
var ValidStates = []ClaimState{
	StateProposed, StateEvidenced, StateAttacked, StateDefended, StateStable,
	StateDecaying, StateContested, StateFalsified, StateRetired,
}

// Valid reports whether s is one of the nine lifecycle states
func (s ClaimState) Valid() bool {
	for _, v := range ValidStates {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further gate work applies to the state
func (s ClaimState) Terminal() bool {
	return s == StateRetired || s == StateFalsified
}

// VerificationTier is the upstream verification grade
type VerificationTier string

const (
	TierAuthoritative VerificationTier = "AUTHORITATIVE"
	TierVerified      VerificationTier = "VERIFIED"
	TierTentative     VerificationTier = "TENTATIVE"
	TierUnverified    VerificationTier = "UNVERIFIED"
)

// ParseVerificationTier normalizes loose upstream labels
func ParseVerificationTier(s string) VerificationTier {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTHORITATIVE":
		return TierAuthoritative
	case "VERIFIED", "CONFIRMED":
		return TierVerified
	case "TENTATIVE", "PARTIAL", "PARTIALLY_VERIFIED":
		return TierTentative
	default:
		return TierUnverified
	}
}

// Confidence maps a tier to the default settlement confidence of an upgraded claim
func (t VerificationTier) Confidence() float64 {
	switch t {
	case TierAuthoritative:
		return 0.9
	case TierVerified:
		return 0.8
	case TierTentative:
		return 0.6
	default:
		return 0.3
	}
}

// FalsificationStatus is the gate outcome
type FalsificationStatus string

const (
	PassStable    FalsificationStatus = "PASS_STABLE"
	PassTentative FalsificationStatus = "PASS_TENTATIVE"
	Fail          FalsificationStatus = "FAIL"
)

// RetireReason explains why a claim left the active ledger
type RetireReason string

const (
	RetireUnresolvableNow        RetireReason = "UNRESOLVABLE_NOW"
	RetireIllPosed               RetireReason = "ILL_POSED"
	RetireOutOfScope             RetireReason = "OUT_OF_SCOPE"
	RetireNormativeNonSettleable RetireReason = "NORMATIVE_NON_SETTLEABLE"
	RetireSuperseded             RetireReason = "SUPERSEDED"
)

// RetireReasons lists every accepted retire reason
var RetireReasons = []RetireReason{
	RetireUnresolvableNow, RetireIllPosed, RetireOutOfScope,
	RetireNormativeNonSettleable, RetireSuperseded,
}

// Valid reports whether r is an accepted retire reason
func (r RetireReason) Valid() bool {
	for _, v := range RetireReasons {
		if r == v {
			return true
		}
	}
	return false
}

// Failure boundary reasons written by the gate
const (
	ReasonDeadlockExit        = "deadlock_exit_max_cycles"
	ReasonNoAttackCoverage    = "no_attack_coverage"
	ReasonUnresolvedAttacks   = "unresolved_attacks"
	ReasonTentativeTTLExpired = "tentative_ttl_expired"
)

// ClaimScope bounds where a claim applies
type ClaimScope struct {
	Population string `json:"population"`
	Geography  string `json:"geography"`
	Timeframe  string `json:"timeframe"`
	Domain     string `json:"domain"`
}

// Fields returns the four scope keys in a fixed order
func (s ClaimScope) Fields() [4]string {
	return [4]string{s.Population, s.Geography, s.Timeframe, s.Domain}
}

// Contradiction is a directed edge from one claim version to another
type Contradiction struct {
	ClaimRef string  `json:"claim_ref"`
	Strength float64 `json:"contradiction_strength"`
	Resolved bool    `json:"resolved,omitempty"`
}

// FailureBoundary records why a claim could not settle
type FailureBoundary struct {
	Reason            string   `json:"reason,omitempty"`
	EvidenceRefs      []string `json:"evidence_refs,omitempty"`
	ThresholdExceeded bool     `json:"threshold_exceeded"`
}

// Claim is one versioned ledger entry
type Claim struct {
	ClaimID      string `json:"claim_id"`
	ClaimVersion int    `json:"claim_version"`
	Text         string `json:"text"`

	SupportingSourceIDs []string         `json:"supporting_source_ids"`
	IsVerified          bool             `json:"is_verified"`
	VerificationTier    VerificationTier `json:"verification_tier"`

	State ClaimState `json:"state"`

	OutcomeType          OutcomeType         `json:"outcome_type"`
	ResolutionAuthority  ResolutionAuthority `json:"resolution_authority"`
	ResolutionMethod     ResolutionMethod    `json:"resolution_method"`
	SettlementConfidence float64             `json:"settlement_confidence"`
	PTrue                float64             `json:"p_true"`
	AuditTraceRequired   bool                `json:"audit_trace_required"`
	AllowedEvidenceTypes []string            `json:"allowed_evidence_types,omitempty"`

	TentativeTTL        int `json:"tentative_ttl"`
	TentativeCyclesUsed int `json:"tentative_cycles_used"`

	RetireReason     RetireReason `json:"retire_reason,omitempty"`
	ReopenAllowed    bool         `json:"reopen_allowed"`
	ReopenConditions []string     `json:"reopen_conditions"`

	Scope               ClaimScope          `json:"claim_scope"`
	Contradicts         []Contradiction     `json:"contradicts"`
	FailureBoundary     FailureBoundary     `json:"failure_boundary"`
	FalsificationStatus FalsificationStatus `json:"falsification_status,omitempty"`
	Supersedes          string              `json:"supersedes,omitempty"`
	LastUpdated         time.Time           `json:"last_updated"`
}

// Ref returns the canonical "{claim_id}@{claim_version}" citation token
func (c *Claim) Ref() string {
	return FormatRef(c.ClaimID, c.ClaimVersion)
}

// Outcome projects the settlement-relevant fields of the claim
func (c *Claim) Outcome() ClaimOutcome {
	return ClaimOutcome{
		OutcomeType:          c.OutcomeType,
		ResolutionAuthority:  c.ResolutionAuthority,
		ResolutionMethod:     c.ResolutionMethod,
		SettlementConfidence: c.SettlementConfidence,
		AuditTraceRequired:   c.AuditTraceRequired,
		AllowedEvidenceTypes: c.AllowedEvidenceTypes,
	}
}

// HasUnresolvedContradiction reports whether any live contradiction edge exists
func (c *Claim) HasUnresolvedContradiction() bool {
	for _, ct := range c.Contradicts {
		if ct.Strength > 0 && !ct.Resolved {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching ledger state
func (c Claim) Clone() Claim {
	out := c
	out.SupportingSourceIDs = append([]string(nil), c.SupportingSourceIDs...)
	out.AllowedEvidenceTypes = append([]string(nil), c.AllowedEvidenceTypes...)
	if c.ReopenConditions != nil {
		out.ReopenConditions = append([]string{}, c.ReopenConditions...)
	}
	out.Contradicts = append([]Contradiction(nil), c.Contradicts...)
	out.FailureBoundary.EvidenceRefs = append([]string(nil), c.FailureBoundary.EvidenceRefs...)
	return out
}

// FormatRef builds a claim ref from its parts
func FormatRef(claimID string, version int) string {
	return fmt.Sprintf("%s@%d", claimID, version)
}

// ParseRef splits "id@version"; the id itself may not contain '@'
func ParseRef(ref string) (string, int, error) {
	ref = strings.TrimSpace(ref)
	idx := strings.LastIndex(ref, "@")
	if idx <= 0 || idx == len(ref)-1 {
		return "", 0, fmt.Errorf("malformed claim ref %q", ref)
	}
	version, err := strconv.Atoi(ref[idx+1:])
	if err != nil || version < 1 {
		return "", 0, fmt.Errorf("malformed claim ref %q: bad version", ref)
	}
	return ref[:idx], version, nil
}

// Normalize replaces nil collections so the ledger serializes lists, never null
func (c *Claim) Normalize() {
	if c.SupportingSourceIDs == nil {
		c.SupportingSourceIDs = []string{}
	}
	if c.ReopenConditions == nil {
		c.ReopenConditions = []string{}
	}
	if c.Contradicts == nil {
		c.Contradicts = []Contradiction{}
	}
}
