package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/audit"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/model"
)

// Machine is the only writer of the claim ledger
type Machine struct {
	store  *ledger.Store
	audit  *audit.Log
	logger *zap.Logger
	now    func() time.Time
}

// NewMachine creates a state machine over a ledger store
func NewMachine(store *ledger.Store, log *audit.Log, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:  store,
		audit:  log,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying ledger for read-only callers
func (m *Machine) Store() *ledger.Store {
	return m.store
}

// Edit loads the ledger, runs fn against it and saves once if fn changed
// anything. When fn returns an error nothing is written.
func (m *Machine) Edit(fn func(tx *Tx) error) error {
	claims, err := m.store.Load()
	if err != nil {
		return err
	}

	tx := &Tx{m: m, claims: claims, now: m.now()}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	return m.store.Save(tx.claims)
}

// ApplyTransition moves one claim to next after merging update. A rejected
// guard returns *GuardViolation and leaves the ledger untouched.
func (m *Machine) ApplyTransition(ref string, next model.ClaimState, update func(*model.Claim)) (*model.Claim, error) {
	var out *model.Claim
	err := m.Edit(func(tx *Tx) error {
		c, err := tx.Transition(ref, next, update)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Annotate updates one claim without changing its state
func (m *Machine) Annotate(ref string, update func(*model.Claim)) (*model.Claim, error) {
	var out *model.Claim
	err := m.Edit(func(tx *Tx) error {
		c, err := tx.Annotate(ref, update)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tx is an in-memory view of the ledger inside one Edit call
type Tx struct {
	m      *Machine
	claims []model.Claim
	now    time.Time
	dirty  bool
}

// Claims returns a copy of every claim version
func (tx *Tx) Claims() []model.Claim {
	out := make([]model.Claim, len(tx.claims))
	for i := range tx.claims {
		out[i] = tx.claims[i].Clone()
	}
	return out
}

// Latest returns the highest version of every claim id
func (tx *Tx) Latest() []model.Claim {
	return ledger.Latest(tx.claims)
}

// Get returns a copy of the claim with the given ref
func (tx *Tx) Get(ref string) (*model.Claim, bool) {
	idx := ledger.Find(tx.claims, ref)
	if idx < 0 {
		return nil, false
	}
	c := tx.claims[idx].Clone()
	return &c, true
}

// Transition applies update to a copy of the claim, checks the guard and
// commits the copy on success
func (tx *Tx) Transition(ref string, next model.ClaimState, update func(*model.Claim)) (*model.Claim, error) {
	idx := ledger.Find(tx.claims, ref)
	if idx < 0 {
		return nil, fmt.Errorf("transition %s: %w", ref, ledger.ErrNotFound)
	}

	current := tx.claims[idx]
	candidate := current.Clone()
	if update != nil {
		update(&candidate)
	}
	candidate.ClaimID, candidate.ClaimVersion = current.ClaimID, current.ClaimVersion

	if ok, reason := CanTransition(current.State, next, &candidate); !ok {
		return nil, tx.reject(ref, current.State, next, reason)
	}
	if candidate.TentativeTTL > current.TentativeTTL {
		return nil, tx.reject(ref, current.State, next, ReasonTTLIncrease)
	}

	candidate.State = next
	if next != model.StateRetired {
		candidate.RetireReason = ""
	}
	candidate.LastUpdated = tx.now
	tx.claims[idx] = candidate
	tx.dirty = true

	tx.m.audit.Record(audit.EventTransition, "", fmt.Sprintf("%s %s->%s", ref, current.State, next), nil)
	tx.m.logger.Debug("claim transition",
		zap.String("claim_ref", ref),
		zap.String("from", string(current.State)),
		zap.String("to", string(next)))

	out := candidate.Clone()
	return &out, nil
}

// Annotate applies update without a state change. State, identity and the
// retire fields are not writable through this path, and a stable claim cannot
// gain a live contradiction without leaving stable.
func (tx *Tx) Annotate(ref string, update func(*model.Claim)) (*model.Claim, error) {
	idx := ledger.Find(tx.claims, ref)
	if idx < 0 {
		return nil, fmt.Errorf("annotate %s: %w", ref, ledger.ErrNotFound)
	}

	current := tx.claims[idx]
	if current.State == model.StateRetired {
		return nil, tx.reject(ref, current.State, "", ReasonRetiredImmutable)
	}

	candidate := current.Clone()
	if update != nil {
		update(&candidate)
	}
	candidate.ClaimID, candidate.ClaimVersion = current.ClaimID, current.ClaimVersion
	candidate.State = current.State
	candidate.RetireReason = current.RetireReason

	if candidate.TentativeTTL > current.TentativeTTL {
		return nil, tx.reject(ref, current.State, "", ReasonTTLIncrease)
	}
	if candidate.State == model.StateStable && candidate.HasUnresolvedContradiction() && !current.HasUnresolvedContradiction() {
		return nil, tx.reject(ref, current.State, "", ReasonUnresolvedContradiction)
	}

	candidate.LastUpdated = tx.now
	tx.claims[idx] = candidate
	tx.dirty = true

	out := candidate.Clone()
	return &out, nil
}

// Append adds a new claim version. The ref must be new and, for an existing
// claim id, the version must exceed every stored version and keep the TTL
// non-increasing.
func (tx *Tx) Append(c model.Claim) error {
	if !c.State.Valid() {
		return tx.reject(c.Ref(), "", c.State, ReasonInvalidState)
	}
	if c.State == model.StateRetired && (!c.RetireReason.Valid() || c.ReopenConditions == nil) {
		return tx.reject(c.Ref(), "", c.State, ReasonRetireReasonRequired)
	}
	if c.ClaimVersion < 1 {
		return fmt.Errorf("append %s: claim_version must be >= 1", c.Ref())
	}

	for _, existing := range tx.claims {
		if existing.ClaimID != c.ClaimID {
			continue
		}
		if existing.ClaimVersion >= c.ClaimVersion {
			return fmt.Errorf("append %s: version %d already superseded by %d", c.Ref(), c.ClaimVersion, existing.ClaimVersion)
		}
		if c.TentativeTTL > existing.TentativeTTL {
			return tx.reject(c.Ref(), existing.State, c.State, ReasonTTLIncrease)
		}
	}

	if c.LastUpdated.IsZero() {
		c.LastUpdated = tx.now
	}
	tx.claims = append(tx.claims, c.Clone())
	tx.dirty = true
	return nil
}

func (tx *Tx) reject(ref string, from, to model.ClaimState, reason string) error {
	gv := &GuardViolation{ClaimRef: ref, From: from, To: to, Reason: reason}
	tx.m.audit.Record(audit.EventGuardRejected, "", gv.Error(), nil)
	tx.m.logger.Info("guard rejected transition",
		zap.String("claim_ref", ref),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason))
	return gv
}

// IsGuardViolation reports whether err carries a *GuardViolation
func IsGuardViolation(err error) bool {
	var gv *GuardViolation
	return errors.As(err, &gv)
}
