package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/aem/internal/audit"
	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/governor"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/question"
	"github.com/ppiankov/aem/internal/reopen"
	"github.com/ppiankov/aem/internal/synthesis"
	"github.com/ppiankov/aem/internal/triage"
)

// ValidateReport checks a report against the project's ledger without
// running the settlement stages
func (p *Pipeline) ValidateReport(_ context.Context, projectID, report string) (synthesis.Status, error) {
	r, err := p.begin(projectID)
	if err != nil {
		return synthesis.Status{}, err
	}
	r.audit.Record(audit.EventRunStart, StageSynthesis, "validate-report", nil)
	status, err := synthesis.NewEnforcer(r.layout, r.mode, r.audit, r.logger).Apply(report)
	r.audit.Record(audit.EventRunFinish, StageSynthesis, fmt.Sprintf("valid=%t", status.Valid), err)
	return status, err
}

// Reopen moves a retired claim back to contested as a new version
func (p *Pipeline) Reopen(_ context.Context, projectID, ref, reason string) (*model.Claim, error) {
	r, err := p.begin(projectID)
	if err != nil {
		return nil, err
	}
	r.audit.Record(audit.EventRunStart, StageReopenCheck, "reopen "+ref, nil)
	c, err := reopen.New(r.machine, r.audit, r.logger).ReopenRetired(ref, reason)
	r.audit.Record(audit.EventRunFinish, StageReopenCheck, "", err)
	return c, err
}

// CheckReopen evaluates reopen triggers over the ledger and applies them
func (p *Pipeline) CheckReopen(_ context.Context, projectID string) ([]reopen.Outcome, error) {
	r, err := p.begin(projectID)
	if err != nil {
		return nil, err
	}
	claims, err := r.machine.Store().Load()
	if err != nil {
		return nil, err
	}
	triggers := reopen.Check(claims)
	if len(triggers) == 0 {
		return []reopen.Outcome{}, nil
	}
	r.audit.Record(audit.EventRunStart, StageReopenCheck, fmt.Sprintf("triggers=%d", len(triggers)), nil)
	outcomes, err := reopen.New(r.machine, r.audit, r.logger).Apply(triggers)
	r.audit.Record(audit.EventRunFinish, StageReopenCheck, "", err)
	return outcomes, err
}

// Route recommends a compute lane for task from the persisted question
// graph and evidence index. Nothing is written except the audit trail.
func (p *Pipeline) Route(ctx context.Context, projectID, task string, expectedTokens int) (governor.Decision, error) {
	r, err := p.begin(projectID)
	if err != nil {
		return governor.Decision{}, err
	}

	claims, err := r.machine.Store().Load()
	if err != nil {
		return governor.Decision{}, err
	}
	graph, err := question.Load(r.layout.Questions())
	if err != nil {
		return governor.Decision{}, err
	}
	var linked []string
	if graph != nil {
		for _, q := range graph.Questions {
			linked = append(linked, q.LinkedClaims...)
		}
	}
	idx, err := evidence.Load(r.layout.EvidenceIndex())
	if err != nil {
		return governor.Decision{}, err
	}
	r.index = idx
	r.selection = triage.NewScorer(linked).Select(ledger.Latest(claims), p.config.Triage.TopK)

	return p.route(ctx, r, task, expectedTokens)
}
