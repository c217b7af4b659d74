package model

// OutcomeType describes the shape of what settles a claim
type OutcomeType string

const (
	OutcomeBinary      OutcomeType = "binary"
	OutcomeNumeric     OutcomeType = "numeric"
	OutcomeInterval    OutcomeType = "interval"
	OutcomeCategorical OutcomeType = "categorical"
	OutcomeRanking     OutcomeType = "ranking"
	OutcomeExplanatory OutcomeType = "explanatory"
)

// ResolutionAuthority names who is entitled to settle a claim
type ResolutionAuthority string

const (
	AuthorityInternalAuditor ResolutionAuthority = "internal_auditor"
	AuthorityExternalSource  ResolutionAuthority = "external_source"
	AuthorityBenchmarkSuite  ResolutionAuthority = "benchmark_suite"
	AuthorityPanel           ResolutionAuthority = "panel"
)

// ResolutionMethod names how settlement is carried out
type ResolutionMethod string

const (
	MethodEvent      ResolutionMethod = "event"
	MethodDataset    ResolutionMethod = "dataset"
	MethodAuditPanel ResolutionMethod = "audit_panel"
	MethodBenchmark  ResolutionMethod = "benchmark"
	MethodManual     ResolutionMethod = "manual"
)

// ClaimOutcome is the subset of a claim the outcome schema validates
type ClaimOutcome struct {
	OutcomeType          OutcomeType         `json:"outcome_type"`
	ResolutionAuthority  ResolutionAuthority `json:"resolution_authority"`
	ResolutionMethod     ResolutionMethod    `json:"resolution_method"`
	SettlementConfidence float64             `json:"settlement_confidence"`
	AuditTraceRequired   bool                `json:"audit_trace_required"`
	AllowedEvidenceTypes []string            `json:"allowed_evidence_types,omitempty"`
}

// RequiresAuditTrace reports whether authority or method demand an audit trace
func (o ClaimOutcome) RequiresAuditTrace() bool {
	return o.ResolutionAuthority == AuthorityPanel || o.ResolutionMethod == MethodManual
}
