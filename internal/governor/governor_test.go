package governor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aem/internal/budget"
	"github.com/ppiankov/aem/internal/model"
)

func testConfig() model.GovernorConfig {
	return model.GovernorConfig{
		MinIGPerToken: 0.001,
		CheapModel:    "small",
		MidModel:      "medium",
		StrongModel:   "large",
	}
}

func TestExpectedIG(t *testing.T) {
	assert.InDelta(t, 0.28, ExpectedIG([]float64{0.8, 0.6}, []float64{0.5}, 0.2), 1e-9)
	assert.InDelta(t, 0.0, ExpectedIG([]float64{0.8}, []float64{0.5}, 3.5), 1e-9)
	assert.Equal(t, 0.0, ExpectedIG(nil, []float64{0.5}, 0))
}

func TestRoute(t *testing.T) {
	g := New(testConfig(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		task   Task
		lane   Lane
		model  string
		reason string
	}{
		{"extraction is cheap", Task{Kind: TaskExtraction}, LaneCheap, "small", "routine_task"},
		{"classification is cheap", Task{Kind: " Classification "}, LaneCheap, "small", "routine_task"},
		{"high ig synthesis", Task{Kind: TaskSynthesis, Fragilities: []float64{0.8, 0.6}, Relevances: []float64{0.5}, EvidenceDensity: 0.2, ExpectedTokens: 100}, LaneStrong, "large", "ig_per_token_above_min"},
		{"low ig synthesis", Task{Kind: TaskSynthesis, Fragilities: []float64{0.8, 0.6}, Relevances: []float64{0.5}, EvidenceDensity: 0.2, ExpectedTokens: 1000}, LaneMid, "medium", "ig_per_token_below_min"},
		{"no signals", Task{Kind: TaskFalsification, ExpectedTokens: 10}, LaneMid, "medium", "ig_per_token_below_min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := g.Route(ctx, tt.task)
			require.NoError(t, err)
			assert.Equal(t, tt.lane, d.Lane)
			assert.Equal(t, tt.model, d.Model)
			assert.Equal(t, tt.reason, d.Reason)
			assert.True(t, d.BudgetOK)
		})
	}
}

func TestRoute_BudgetExceeded(t *testing.T) {
	ctx := context.Background()
	oracle := budget.NewFileOracle(filepath.Join(t.TempDir(), "usage.json"), 10)
	_, err := oracle.TrackUsage(ctx, "p1", "large", 15, 5)
	require.NoError(t, err)

	g := New(testConfig(), oracle, nil)
	d, err := g.Route(ctx, Task{
		Kind:           TaskSynthesis,
		ProjectID:      "p1",
		Fragilities:    []float64{1},
		Relevances:     []float64{1},
		ExpectedTokens: 1,
	})
	require.NoError(t, err)
	assert.False(t, d.BudgetOK)
	assert.Equal(t, LaneCheap, d.Lane)
	assert.Equal(t, "small", d.Model)
	assert.Equal(t, "budget_exceeded", d.Reason)
}

func TestModel_Fallback(t *testing.T) {
	g := New(model.GovernorConfig{CheapModel: "only"}, nil, nil)
	assert.Equal(t, "only", g.Model(LaneStrong))
	assert.Equal(t, "only", g.Model(LaneMid))

	g = New(model.GovernorConfig{CheapModel: "a", MidModel: "b"}, nil, nil)
	assert.Equal(t, "b", g.Model(LaneStrong))
}
