package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aem/internal/governor"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/reopen"
	"github.com/ppiankov/aem/internal/synthesis"
)

func TestValidateReport(t *testing.T) {
	root := t.TempDir()
	l := newProject(t, root, "p1")

	p, err := New(testConfig(root, model.ModeEnforce))
	require.NoError(t, err)
	_, err = p.Settle(context.Background(), "p1")
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		status, err := p.ValidateReport(context.Background(), "p1",
			"Remote work raised output by 13% in 2015 [claim_ref: cl_1@1].")
		require.NoError(t, err)
		assert.True(t, status.Valid)
		assert.Equal(t, []string{"cl_1@1"}, status.RefsCited)
		_, err = os.Stat(l.Report())
		assert.NoError(t, err)
	})

	t.Run("unknown ref", func(t *testing.T) {
		status, err := p.ValidateReport(context.Background(), "p1",
			"Output fell by 40% in 2020 [claim_ref: cl_9@1].")
		var cerr *synthesis.ContractError
		require.True(t, errors.As(err, &cerr))
		assert.False(t, status.Valid)
		assert.Equal(t, []string{"cl_9@1"}, status.UnknownRefs)
	})

	t.Run("missing project", func(t *testing.T) {
		_, err := p.ValidateReport(context.Background(), "nope", "text")
		assert.True(t, errors.Is(err, ErrProjectNotFound))
	})
}

func TestRoute(t *testing.T) {
	root := t.TempDir()
	newProject(t, root, "p1")

	p, err := New(testConfig(root, model.ModeObserve))
	require.NoError(t, err)
	_, err = p.Settle(context.Background(), "p1")
	require.NoError(t, err)

	d, err := p.Route(context.Background(), "p1", governor.TaskExtraction, 100)
	require.NoError(t, err)
	assert.Equal(t, governor.LaneCheap, d.Lane)
	assert.Equal(t, "routine_task", d.Reason)
	assert.True(t, d.BudgetOK)

	d, err = p.Route(context.Background(), "p1", governor.TaskSynthesis, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, d.Model)
}

func TestReopen(t *testing.T) {
	root := t.TempDir()
	l := newProject(t, root, "p1")

	retired := model.Claim{
		ClaimID:       "cl_r",
		ClaimVersion:  1,
		Text:          "A retired claim.",
		State:         model.StateRetired,
		RetireReason:  model.RetireIllPosed,
		ReopenAllowed: true,
	}
	stable := model.Claim{
		ClaimID:      "cl_s",
		ClaimVersion: 1,
		Text:         "A stable claim.",
		State:        model.StateStable,
		Contradicts:  []model.Contradiction{{ClaimRef: "cl_r@1", Strength: 0.7}},
	}
	require.NoError(t, ledger.NewStore(l.Ledger()).Save([]model.Claim{retired, stable}))

	p, err := New(testConfig(root, model.ModeObserve))
	require.NoError(t, err)

	c, err := p.Reopen(context.Background(), "p1", "cl_r@1", "new evidence")
	require.NoError(t, err)
	assert.Equal(t, 2, c.ClaimVersion)
	assert.Equal(t, model.StateContested, c.State)

	_, err = p.Reopen(context.Background(), "p1", "cl_s@1", "why")
	assert.Error(t, err)

	outcomes, err := p.CheckReopen(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, reopen.TriggerContradictionDelta, outcomes[0].Trigger.Kind)
	assert.True(t, outcomes[0].Contested)
}
