package reopen

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/audit"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/lifecycle"
	"github.com/ppiankov/aem/internal/model"
)

// TriggerKind names why a claim is re-contested
type TriggerKind string

const (
	TriggerContradictionDelta TriggerKind = "contradiction_delta"
	TriggerDecayThreshold     TriggerKind = "decay_threshold"

	// reserved, never emitted by Check
	TriggerShockEvent    TriggerKind = "shock_event"
	TriggerOntologyDrift TriggerKind = "ontology_drift"
)

// DecayCycles is the tentative cycle count that triggers a reopen
const DecayCycles = 3

// ErrNotAllowed is returned when a retired claim forbids reopening
var ErrNotAllowed = errors.New("reopen not allowed")

// Trigger is one detected reopen condition
type Trigger struct {
	ClaimRef string      `json:"claim_ref"`
	Kind     TriggerKind `json:"trigger"`
	Detail   string      `json:"detail,omitempty"`
}

// Check scans the latest claims for reopen triggers
func Check(claims []model.Claim) []Trigger {
	var out []Trigger
	for _, c := range ledger.Latest(claims) {
		if c.State == model.StateStable && len(c.Contradicts) > 0 {
			refs := make([]string, len(c.Contradicts))
			for i, ct := range c.Contradicts {
				refs[i] = ct.ClaimRef
			}
			out = append(out, Trigger{
				ClaimRef: c.Ref(),
				Kind:     TriggerContradictionDelta,
				Detail:   "contradicted by " + strings.Join(refs, ", "),
			})
			continue
		}
		if c.TentativeCyclesUsed >= DecayCycles && !c.State.Terminal() {
			out = append(out, Trigger{
				ClaimRef: c.Ref(),
				Kind:     TriggerDecayThreshold,
				Detail:   fmt.Sprintf("%d tentative cycles", c.TentativeCyclesUsed),
			})
		}
	}
	return out
}

// Protocol applies reopen decisions through the state machine
type Protocol struct {
	machine *lifecycle.Machine
	audit   *audit.Log
	logger  *zap.Logger
}

// New creates a reopen protocol
func New(m *lifecycle.Machine, log *audit.Log, logger *zap.Logger) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protocol{machine: m, audit: log, logger: logger}
}

// Outcome reports what Apply did with each trigger
type Outcome struct {
	Trigger   Trigger `json:"trigger"`
	Contested bool    `json:"contested"`
	Reason    string  `json:"reason,omitempty"`
}

// Apply moves every triggered claim to contested. Guard rejections are
// reported per trigger and never fail the call.
func (p *Protocol) Apply(triggers []Trigger) ([]Outcome, error) {
	out := make([]Outcome, 0, len(triggers))
	err := p.machine.Edit(func(tx *lifecycle.Tx) error {
		for _, t := range triggers {
			o := Outcome{Trigger: t}
			c, ok := tx.Get(t.ClaimRef)
			switch {
			case !ok:
				o.Reason = "claim not found"
			case c.State == model.StateContested:
				o.Reason = "already contested"
			default:
				if _, err := tx.Transition(t.ClaimRef, model.StateContested, nil); err != nil {
					var gv *lifecycle.GuardViolation
					if !errors.As(err, &gv) {
						return err
					}
					o.Reason = gv.Reason
				} else {
					o.Contested = true
					p.audit.Record(audit.EventReopen, "reopen", fmt.Sprintf("%s %s", t.ClaimRef, t.Kind), nil)
				}
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("reopen applied", zap.Int("triggers", len(triggers)))
	return out, nil
}

// ReopenRetired creates version n+1 of a retired claim in state contested.
// The new version supersedes ref and keeps its TTL.
func (p *Protocol) ReopenRetired(ref, reason string) (*model.Claim, error) {
	var created model.Claim
	err := p.machine.Edit(func(tx *lifecycle.Tx) error {
		c, ok := tx.Get(ref)
		if !ok {
			return fmt.Errorf("reopen %s: %w", ref, ledger.ErrNotFound)
		}
		if c.State != model.StateRetired {
			return fmt.Errorf("reopen %s: state is %s, not retired", ref, c.State)
		}
		if !c.ReopenAllowed {
			return fmt.Errorf("reopen %s: %w", ref, ErrNotAllowed)
		}
		for _, other := range tx.Latest() {
			if other.ClaimID == c.ClaimID && other.ClaimVersion != c.ClaimVersion {
				return fmt.Errorf("reopen %s: superseded by %s", ref, other.Ref())
			}
		}

		next := c.Clone()
		next.ClaimVersion = c.ClaimVersion + 1
		next.State = model.StateContested
		next.RetireReason = ""
		next.Supersedes = ref
		next.FalsificationStatus = ""
		next.FailureBoundary = model.FailureBoundary{}
		next.LastUpdated = time.Time{}
		if err := tx.Append(next); err != nil {
			return err
		}
		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.audit.Record(audit.EventReopen, "reopen", fmt.Sprintf("%s -> %s: %s", ref, created.Ref(), reason), nil)
	p.logger.Info("retired claim reopened",
		zap.String("from", ref),
		zap.String("to", created.Ref()),
		zap.String("reason", reason))
	return &created, nil
}
