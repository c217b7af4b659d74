package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/project"
)

func outcome() model.ClaimOutcome {
	return model.ClaimOutcome{
		OutcomeType:          model.OutcomeBinary,
		ResolutionAuthority:  model.AuthorityInternalAuditor,
		ResolutionMethod:     model.MethodAuditPanel,
		SettlementConfidence: 0.8,
	}
}

func TestCanSettleStable(t *testing.T) {
	s := Default()

	tests := []struct {
		name       string
		mutate     func(o *model.ClaimOutcome)
		types      []string
		wantOK     bool
		wantReason string
	}{
		{"clean outcome", func(o *model.ClaimOutcome) {}, []string{"primary"}, true, "ok"},
		{"panel without audit trace", func(o *model.ClaimOutcome) {
			o.ResolutionAuthority = model.AuthorityPanel
		}, nil, false, "authority_auditability:panel_or_manual_requires_audit_trace"},
		{"panel with audit trace", func(o *model.ClaimOutcome) {
			o.ResolutionAuthority = model.AuthorityPanel
			o.AuditTraceRequired = true
		}, nil, true, "ok"},
		{"manual without audit trace", func(o *model.ClaimOutcome) {
			o.ResolutionMethod = model.MethodManual
		}, nil, false, "authority_auditability:panel_or_manual_requires_audit_trace"},
		{"confidence below floor", func(o *model.ClaimOutcome) {
			o.SettlementConfidence = 0.49
		}, nil, false, "settlement_confidence_below_min"},
		{"evidence type outside default allow list", func(o *model.ClaimOutcome) {}, []string{"primary", "news"}, false, "evidence_type_mismatch:news"},
		{"evidence type allowed by claim", func(o *model.ClaimOutcome) {
			o.AllowedEvidenceTypes = []string{"news"}
		}, []string{"news"}, true, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := outcome()
			tt.mutate(&o)
			ok, reason := CanSettleStable(s, o, tt.types)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestCanSettleStable_MismatchRuleDisabled(t *testing.T) {
	s := Default()
	s.ValidationRules.EvidenceTypeMismatchBlocksStable = false

	ok, reason := CanSettleStable(s, outcome(), []string{"news"})
	assert.True(t, ok)
	assert.Equal(t, "ok", reason)
}

func TestValidateOutcomeShape(t *testing.T) {
	assert.Empty(t, ValidateOutcomeShape(outcome()))

	violations := ValidateOutcomeShape(model.ClaimOutcome{
		ResolutionAuthority:  "oracle",
		SettlementConfidence: 1.5,
		AllowedEvidenceTypes: []string{"rumor"},
	})
	assert.Contains(t, violations, "missing field: outcome_type")
	assert.Contains(t, violations, "invalid resolution_authority: oracle")
	assert.Contains(t, violations, "missing field: resolution_method")
	assert.Contains(t, violations, "settlement_confidence out of range: 1.500")
	assert.Contains(t, violations, "invalid evidence type: rumor")
}

func TestRegistry_EnsureAndLoad(t *testing.T) {
	root := t.TempDir()
	global := filepath.Join(root, "contracts", "claim_outcome_schema.json")
	r := NewRegistry(global, zap.NewNop())
	l := project.Layout{Root: filepath.Join(root, "p1")}

	require.NoError(t, r.EnsureGlobal())
	assert.FileExists(t, global)

	s, err := r.LoadForProject(l)
	require.NoError(t, err)
	assert.Equal(t, Version, s.SchemaVersion)

	require.NoError(t, r.EnsureProject(l, true))
	assert.FileExists(t, l.Schema())
}

func TestRegistry_ProjectOverride(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(filepath.Join(root, "global.json"), zap.NewNop())
	l := project.Layout{Root: root}

	require.NoError(t, os.MkdirAll(filepath.Dir(l.Schema()), 0755))
	require.NoError(t, os.WriteFile(l.Schema(), []byte(`{"validation_rules":{"settlement_confidence_stable_min":0.9}}`), 0644))

	s, err := r.LoadForProject(l)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, s.ValidationRules.SettlementConfidenceStableMin, 1e-9)
	assert.True(t, s.ValidationRules.PanelOrManualRequiresAuditTrace, "unspecified rules keep defaults")
	assert.Len(t, s.OutcomeTypeOptions, 6)

	ok, reason := CanSettleStable(s, outcome(), nil)
	assert.False(t, ok)
	assert.Equal(t, "settlement_confidence_below_min", reason)
}

func TestRegistry_MalformedFallsBack(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry("", zap.NewNop())
	l := project.Layout{Root: root}

	require.NoError(t, os.MkdirAll(filepath.Dir(l.Schema()), 0755))
	require.NoError(t, os.WriteFile(l.Schema(), []byte(`{broken`), 0644))

	s, err := r.LoadForProject(l)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}
