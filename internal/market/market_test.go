package market

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

func claim(id string, status model.FalsificationStatus, conf float64) model.Claim {
	return model.Claim{
		ClaimID:              id,
		ClaimVersion:         1,
		State:                model.StateDefended,
		OutcomeType:          model.OutcomeBinary,
		ResolutionAuthority:  model.AuthorityInternalAuditor,
		ResolutionMethod:     model.MethodAuditPanel,
		SettlementConfidence: conf,
		FalsificationStatus:  status,
	}
}

func TestSettle_ContradictionDowngradesStable(t *testing.T) {
	c := claim("cl_1", model.PassStable, 0.9)
	c.Contradicts = []model.Contradiction{{ClaimRef: "cl_2@1", Strength: 0.8}}

	st := NewScorer(nil, nil).Settle(&c)
	assert.Equal(t, "cl_1@1", st.ClaimRef)
	assert.Equal(t, model.PassTentative, st.Decision)
	assert.True(t, st.ContradictionReviewRequired)
	assert.Equal(t, "contradiction_review_required", st.Reason)
}

func TestSettle_OracleIntegrity(t *testing.T) {
	tests := []struct {
		name     string
		status   model.FalsificationStatus
		conf     float64
		decision model.FalsificationStatus
		pass     bool
	}{
		{"stable high", model.PassStable, 0.85, model.PassStable, true},
		{"stable mid", model.PassStable, 0.6, model.PassStable, false},
		{"tentative mid", model.PassTentative, 0.6, model.PassTentative, true},
		{"low confidence", model.PassTentative, 0.4, model.PassTentative, false},
		{"ungated falls back to fail", "", 0.7, model.Fail, true},
	}

	s := NewScorer(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := claim("cl_1", tt.status, tt.conf)
			st := s.Settle(&c)
			assert.Equal(t, tt.decision, st.Decision)
			assert.Equal(t, tt.pass, st.OracleIntegrityPass)
		})
	}
}

func TestSettle_SchemaViolationReason(t *testing.T) {
	c := claim("cl_1", model.PassTentative, 0.7)
	c.OutcomeType = ""
	st := NewScorer(nil, nil).Settle(&c)
	assert.Equal(t, "schema_violation:missing field: outcome_type", st.Reason)
}

func TestRun_AppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlements.jsonl")
	s := NewScorer(nil, nil)

	res, err := s.Run(path, []model.Claim{claim("cl_1", model.PassTentative, 0.6)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	changed := claim("cl_1", model.PassStable, 0.9)
	res, err = s.Run(path, []model.Claim{changed, claim("cl_2", model.Fail, 0.3)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Existing)

	all, err := Load(path)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.PassTentative, all[0].Decision, "existing refs are never rewritten")
	assert.Equal(t, "cl_2@1", all[1].ClaimRef)
}

func TestIntegrityRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlements.jsonl")
	require.NoError(t, store.AppendJSONL(path,
		model.Settlement{ClaimRef: "cl_1@1", Decision: model.PassStable, OracleIntegrityPass: true},
		model.Settlement{ClaimRef: "cl_2@1", Decision: model.PassStable, OracleIntegrityPass: false},
		model.Settlement{ClaimRef: "cl_3@1", Decision: model.PassTentative, OracleIntegrityPass: false},
	))

	all, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, IntegrityRate(all))
	assert.Equal(t, 1.0, IntegrityRate(nil))
}
