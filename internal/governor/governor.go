// Package governor routes pipeline tasks to compute lanes.
package governor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/budget"
	"github.com/ppiankov/aem/internal/model"
)

// Lane is a compute tier
type Lane string

const (
	LaneCheap  Lane = "cheap"
	LaneMid    Lane = "mid"
	LaneStrong Lane = "strong"
)

// DefaultMinIGPerToken is the expected-IG-per-token needed for the strong lane
const DefaultMinIGPerToken = 0.001

// Task kinds
const (
	TaskExtraction     = "extraction"
	TaskDedupe         = "dedupe"
	TaskScoring        = "scoring"
	TaskClassification = "classification"
	TaskSynthesis      = "synthesis"
	TaskFalsification  = "falsification"
	TaskContradiction  = "contradiction"
)

var cheapTasks = map[string]bool{
	TaskExtraction:     true,
	TaskDedupe:         true,
	TaskScoring:        true,
	TaskClassification: true,
}

// Task describes one unit of model work
type Task struct {
	Kind            string
	ProjectID       string
	Fragilities     []float64
	Relevances      []float64
	EvidenceDensity float64
	ExpectedTokens  int
}

// Decision is a lane recommendation
type Decision struct {
	Task       string  `json:"task"`
	Lane       Lane    `json:"lane"`
	Model      string  `json:"model"`
	ExpectedIG float64 `json:"expected_ig"`
	IGPerToken float64 `json:"ig_per_token"`
	BudgetOK   bool    `json:"budget_ok"`
	Reason     string  `json:"reason"`
}

// Governor picks lanes and the model bound to each
type Governor struct {
	cfg    model.GovernorConfig
	oracle budget.Oracle
	logger *zap.Logger
}

// New creates a governor. A nil oracle never refuses.
func New(cfg model.GovernorConfig, oracle budget.Oracle, logger *zap.Logger) *Governor {
	if cfg.MinIGPerToken <= 0 {
		cfg.MinIGPerToken = DefaultMinIGPerToken
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{cfg: cfg, oracle: oracle, logger: logger}
}

// ExpectedIG is mean(fragility) x mean(relevance) x (1 - density)
func ExpectedIG(fragilities, relevances []float64, density float64) float64 {
	frag, err := stats.Mean(fragilities)
	if err != nil {
		return 0
	}
	rel, err := stats.Mean(relevances)
	if err != nil {
		return 0
	}
	return frag * rel * (1 - clamp01(density))
}

// Route recommends a lane for the task. A budget refusal downgrades any lane
// to cheap; oracle errors are returned.
func (g *Governor) Route(ctx context.Context, t Task) (Decision, error) {
	kind := strings.ToLower(strings.TrimSpace(t.Kind))
	d := Decision{Task: kind, BudgetOK: true}

	switch {
	case cheapTasks[kind]:
		d.Lane = LaneCheap
		d.Reason = "routine_task"
	default:
		d.ExpectedIG = round6(ExpectedIG(t.Fragilities, t.Relevances, t.EvidenceDensity))
		tokens := t.ExpectedTokens
		if tokens < 1 {
			tokens = 1
		}
		d.IGPerToken = d.ExpectedIG / float64(tokens)
		if d.IGPerToken >= g.cfg.MinIGPerToken {
			d.Lane = LaneStrong
			d.Reason = "ig_per_token_above_min"
		} else {
			d.Lane = LaneMid
			d.Reason = "ig_per_token_below_min"
		}
	}

	if err := budget.Guard(ctx, g.oracle, t.ProjectID); err != nil {
		if !errors.Is(err, budget.ErrBudgetExceeded) {
			return Decision{}, fmt.Errorf("route %s: %w", kind, err)
		}
		d.BudgetOK = false
		d.Lane = LaneCheap
		d.Reason = "budget_exceeded"
	}

	d.Model = g.Model(d.Lane)
	g.logger.Debug("routed task",
		zap.String("task", kind),
		zap.String("lane", string(d.Lane)),
		zap.String("model", d.Model),
		zap.Float64("ig_per_token", d.IGPerToken))
	return d, nil
}

// Model returns the model configured for a lane, falling back towards cheaper lanes
func (g *Governor) Model(l Lane) string {
	switch l {
	case LaneStrong:
		if g.cfg.StrongModel != "" {
			return g.cfg.StrongModel
		}
		fallthrough
	case LaneMid:
		if g.cfg.MidModel != "" {
			return g.cfg.MidModel
		}
		fallthrough
	default:
		return g.cfg.CheapModel
	}
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

func round6(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}
