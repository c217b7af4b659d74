package llm

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/budget"
)

// BudgetedClient consults a budget oracle before each call and reports usage after it.
// It also counts tokens spent through it for episode accounting.
type BudgetedClient struct {
	next   Client
	oracle budget.Oracle
	logger *zap.Logger
	tokens atomic.Int64
	calls  atomic.Int64
}

// NewBudgetedClient wraps next. A nil oracle never blocks.
func NewBudgetedClient(next Client, oracle budget.Oracle, logger *zap.Logger) *BudgetedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetedClient{next: next, oracle: oracle, logger: logger}
}

// Name returns the wrapped provider name
func (c *BudgetedClient) Name() string {
	return c.next.Name()
}

// Complete fails with budget.ErrBudgetExceeded when the project is over budget
func (c *BudgetedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := budget.Guard(ctx, c.oracle, req.ProjectID); err != nil {
		return nil, err
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	c.calls.Add(1)
	c.tokens.Add(int64(resp.TotalTokens()))

	if c.oracle != nil && resp.TotalTokens() > 0 {
		if _, err := c.oracle.TrackUsage(ctx, req.ProjectID, resp.Model, resp.InputTokens, resp.OutputTokens); err != nil {
			c.logger.Warn("budget tracking failed",
				zap.String("project", req.ProjectID),
				zap.Error(err))
		}
	}
	return resp, nil
}

// TokensSpent returns input plus output tokens across all uncached calls
func (c *BudgetedClient) TokensSpent() int {
	if c == nil {
		return 0
	}
	return int(c.tokens.Load())
}

// Calls returns the number of successful completions
func (c *BudgetedClient) Calls() int {
	if c == nil {
		return 0
	}
	return int(c.calls.Load())
}
