// Package schema owns the claim outcome contract: which authorities, methods and
// evidence types may settle a claim, and what it takes to settle it as stable.
package schema

import (
	"fmt"

	"github.com/ppiankov/aem/internal/model"
)

// Version is the schema_version emitted by the built-in default
const Version = "v1"

// DefaultOutcome is the default_claim_outcome block
type DefaultOutcome struct {
	OutcomeType           model.OutcomeType         `json:"outcome_type"`
	ResolutionAuthority   model.ResolutionAuthority `json:"resolution_authority"`
	ResolutionMethod      model.ResolutionMethod    `json:"resolution_method"`
	StableConfidenceFloor float64                   `json:"settlement_confidence_floor_stable"`
	AuditTraceRequired    bool                      `json:"audit_trace_required"`
	AllowedEvidenceTypes  []string                  `json:"allowed_evidence_types"`
}

// ValidationRules toggles the three settlement rules
type ValidationRules struct {
	PanelOrManualRequiresAuditTrace  bool    `json:"panel_or_manual_requires_audit_trace"`
	SettlementConfidenceStableMin    float64 `json:"settlement_confidence_stable_min"`
	EvidenceTypeMismatchBlocksStable bool    `json:"evidence_type_mismatch_blocks_stable"`
}

// Schema is the serialized outcome contract
type Schema struct {
	SchemaVersion              string                      `json:"schema_version"`
	ResolutionAuthorityOptions []model.ResolutionAuthority `json:"resolution_authority_options"`
	OutcomeTypeOptions         []model.OutcomeType         `json:"outcome_type_options"`
	ResolutionMethodOptions    []model.ResolutionMethod    `json:"resolution_method_options"`
	EvidenceTypeOptions        []string                    `json:"evidence_type_options"`
	OracleFailureModes         []string                    `json:"oracle_failure_modes"`
	DefaultClaimOutcome        DefaultOutcome              `json:"default_claim_outcome"`
	ValidationRules            ValidationRules             `json:"validation_rules"`
}

// Default returns the hard-coded fallback contract
func Default() *Schema {
	return &Schema{
		SchemaVersion: Version,
		ResolutionAuthorityOptions: []model.ResolutionAuthority{
			model.AuthorityInternalAuditor, model.AuthorityExternalSource,
			model.AuthorityBenchmarkSuite, model.AuthorityPanel,
		},
		OutcomeTypeOptions: []model.OutcomeType{
			model.OutcomeBinary, model.OutcomeNumeric, model.OutcomeInterval,
			model.OutcomeCategorical, model.OutcomeRanking, model.OutcomeExplanatory,
		},
		ResolutionMethodOptions: []model.ResolutionMethod{
			model.MethodEvent, model.MethodDataset, model.MethodAuditPanel,
			model.MethodBenchmark, model.MethodManual,
		},
		EvidenceTypeOptions: []string{
			"primary", "secondary", "dataset", "benchmark", "paper", "audit", "expert", "news",
		},
		OracleFailureModes: []string{
			"ambiguous_resolution", "authority_unavailable", "stale_evidence",
			"conflicting_oracles", "unauditable",
		},
		DefaultClaimOutcome: DefaultOutcome{
			OutcomeType:           model.OutcomeBinary,
			ResolutionAuthority:   model.AuthorityInternalAuditor,
			ResolutionMethod:      model.MethodAuditPanel,
			StableConfidenceFloor: 0.5,
			AuditTraceRequired:    false,
			AllowedEvidenceTypes:  []string{"primary", "secondary", "dataset", "benchmark", "paper", "audit"},
		},
		ValidationRules: ValidationRules{
			PanelOrManualRequiresAuditTrace:  true,
			SettlementConfidenceStableMin:    0.5,
			EvidenceTypeMismatchBlocksStable: true,
		},
	}
}

// stableMin is the effective confidence floor for PASS_STABLE
func (s *Schema) stableMin() float64 {
	if s.ValidationRules.SettlementConfidenceStableMin > 0 {
		return s.ValidationRules.SettlementConfidenceStableMin
	}
	return s.DefaultClaimOutcome.StableConfidenceFloor
}

// ValidateAuthorityAuditability returns every authority/auditability violation of an outcome
func ValidateAuthorityAuditability(s *Schema, o model.ClaimOutcome) []string {
	var violations []string
	if o.ResolutionAuthority != "" && !contains(s.ResolutionAuthorityOptions, o.ResolutionAuthority) {
		violations = append(violations, fmt.Sprintf("resolution_authority %q not allowed", o.ResolutionAuthority))
	}
	if o.ResolutionMethod != "" && !contains(s.ResolutionMethodOptions, o.ResolutionMethod) {
		violations = append(violations, fmt.Sprintf("resolution_method %q not allowed", o.ResolutionMethod))
	}
	if s.ValidationRules.PanelOrManualRequiresAuditTrace && o.RequiresAuditTrace() && !o.AuditTraceRequired {
		violations = append(violations, "panel_or_manual_requires_audit_trace")
	}
	return violations
}

// CanSettleStable decides whether an outcome may settle as PASS_STABLE given the
// evidence types actually used. The reason is "ok" on success.
func CanSettleStable(s *Schema, o model.ClaimOutcome, evidenceTypesUsed []string) (bool, string) {
	if violations := ValidateAuthorityAuditability(s, o); len(violations) > 0 {
		return false, "authority_auditability:" + violations[0]
	}

	if o.SettlementConfidence < s.stableMin() {
		return false, "settlement_confidence_below_min"
	}

	if s.ValidationRules.EvidenceTypeMismatchBlocksStable {
		allowed := o.AllowedEvidenceTypes
		if len(allowed) == 0 {
			allowed = s.DefaultClaimOutcome.AllowedEvidenceTypes
		}
		for _, used := range evidenceTypesUsed {
			if used == "" {
				continue
			}
			if !contains(allowed, used) {
				return false, "evidence_type_mismatch:" + used
			}
		}
	}

	return true, "ok"
}

// ValidateOutcomeShape reports missing or out-of-range outcome fields against the default schema
func ValidateOutcomeShape(o model.ClaimOutcome) []string {
	return ValidateOutcomeShapeWith(Default(), o)
}

// ValidateOutcomeShapeWith reports missing or out-of-range outcome fields
func ValidateOutcomeShapeWith(s *Schema, o model.ClaimOutcome) []string {
	var violations []string

	switch {
	case o.OutcomeType == "":
		violations = append(violations, "missing field: outcome_type")
	case !contains(s.OutcomeTypeOptions, o.OutcomeType):
		violations = append(violations, fmt.Sprintf("invalid outcome_type: %s", o.OutcomeType))
	}

	switch {
	case o.ResolutionAuthority == "":
		violations = append(violations, "missing field: resolution_authority")
	case !contains(s.ResolutionAuthorityOptions, o.ResolutionAuthority):
		violations = append(violations, fmt.Sprintf("invalid resolution_authority: %s", o.ResolutionAuthority))
	}

	switch {
	case o.ResolutionMethod == "":
		violations = append(violations, "missing field: resolution_method")
	case !contains(s.ResolutionMethodOptions, o.ResolutionMethod):
		violations = append(violations, fmt.Sprintf("invalid resolution_method: %s", o.ResolutionMethod))
	}

	if o.SettlementConfidence < 0 || o.SettlementConfidence > 1 {
		violations = append(violations, fmt.Sprintf("settlement_confidence out of range: %.3f", o.SettlementConfidence))
	}

	for _, et := range o.AllowedEvidenceTypes {
		if !contains(s.EvidenceTypeOptions, et) {
			violations = append(violations, fmt.Sprintf("invalid evidence type: %s", et))
		}
	}

	if o.RequiresAuditTrace() && !o.AuditTraceRequired {
		violations = append(violations, "audit_trace_required must be true for panel or manual resolution")
	}

	return violations
}

// normalize fills sections a partial override left empty
func (s *Schema) normalize() {
	def := Default()
	if s.SchemaVersion == "" {
		s.SchemaVersion = def.SchemaVersion
	}
	if len(s.ResolutionAuthorityOptions) == 0 {
		s.ResolutionAuthorityOptions = def.ResolutionAuthorityOptions
	}
	if len(s.OutcomeTypeOptions) == 0 {
		s.OutcomeTypeOptions = def.OutcomeTypeOptions
	}
	if len(s.ResolutionMethodOptions) == 0 {
		s.ResolutionMethodOptions = def.ResolutionMethodOptions
	}
	if len(s.EvidenceTypeOptions) == 0 {
		s.EvidenceTypeOptions = def.EvidenceTypeOptions
	}
	if len(s.OracleFailureModes) == 0 {
		s.OracleFailureModes = def.OracleFailureModes
	}
	if s.DefaultClaimOutcome.OutcomeType == "" {
		s.DefaultClaimOutcome = def.DefaultClaimOutcome
	}
}

func contains[T comparable](items []T, v T) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
