// Package budget is the client side of the budget oracle consulted before external calls.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/aem/internal/store"
)

// ErrBudgetExceeded is returned when the oracle refuses further work
var ErrBudgetExceeded = errors.New("budget exceeded")

// Status is the oracle's answer to a budget check
type Status struct {
	OK           bool    `json:"ok"`
	CurrentSpend float64 `json:"current_spend"`
	BudgetLimit  float64 `json:"budget_limit"`
}

// Oracle decides whether a project may spend more compute
type Oracle interface {
	Check(ctx context.Context, projectID string) (Status, error)
	TrackUsage(ctx context.Context, projectID, model string, inputTokens, outputTokens int) (float64, error)
}

// Guard returns a wrapped ErrBudgetExceeded when the oracle refuses the project
func Guard(ctx context.Context, o Oracle, projectID string) error {
	if o == nil {
		return nil
	}
	st, err := o.Check(ctx, projectID)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !st.OK {
		return fmt.Errorf("%w: spend %.0f of %.0f", ErrBudgetExceeded, st.CurrentSpend, st.BudgetLimit)
	}
	return nil
}

// Unlimited never refuses and only counts spend in memory
type Unlimited struct {
	mu    sync.Mutex
	spend map[string]float64
}

// NewUnlimited creates an oracle without a limit
func NewUnlimited() *Unlimited {
	return &Unlimited{spend: make(map[string]float64)}
}

func (u *Unlimited) Check(ctx context.Context, projectID string) (Status, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return Status{OK: true, CurrentSpend: u.spend[projectID]}, nil
}

func (u *Unlimited) TrackUsage(ctx context.Context, projectID, model string, inputTokens, outputTokens int) (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.spend[projectID] += float64(inputTokens + outputTokens)
	return u.spend[projectID], nil
}

// Usage is the persisted budget/usage.json document
type Usage struct {
	ProjectID  string             `json:"project_id"`
	TotalSpend float64            `json:"total_spend"`
	ByModel    map[string]float64 `json:"by_model"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// FileOracle enforces a token limit and persists spend next to the project.
// A limit of zero or less means unlimited.
type FileOracle struct {
	path  string
	limit float64
	mu    sync.Mutex
}

// NewFileOracle creates an oracle persisting usage at path
func NewFileOracle(path string, limit float64) *FileOracle {
	return &FileOracle{path: path, limit: limit}
}

func (f *FileOracle) load(projectID string) (Usage, error) {
	u := Usage{ProjectID: projectID, ByModel: map[string]float64{}}
	if _, err := store.ReadJSON(f.path, &u); err != nil {
		return u, err
	}
	if u.ByModel == nil {
		u.ByModel = map[string]float64{}
	}
	return u, nil
}

// Check reports whether spend is still under the limit
func (f *FileOracle) Check(ctx context.Context, projectID string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := f.load(projectID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		OK:           f.limit <= 0 || u.TotalSpend < f.limit,
		CurrentSpend: u.TotalSpend,
		BudgetLimit:  f.limit,
	}, nil
}

// TrackUsage adds a call's tokens to the persisted spend and returns the new total
func (f *FileOracle) TrackUsage(ctx context.Context, projectID, model string, inputTokens, outputTokens int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := f.load(projectID)
	if err != nil {
		return 0, err
	}
	tokens := float64(inputTokens + outputTokens)
	u.ProjectID = projectID
	u.TotalSpend += tokens
	u.ByModel[model] += tokens
	u.UpdatedAt = time.Now().UTC()

	if err := store.WriteJSON(f.path, u); err != nil {
		return 0, err
	}
	return u.TotalSpend, nil
}
