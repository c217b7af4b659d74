package gate

import (
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/lifecycle"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/schema"
)

const (
	// DeadlockMaxCycles is the tentative cycle count that forces FAIL
	DeadlockMaxCycles = 5

	// UnresolvedResidualMax is the residual above which an attack stays open
	UnresolvedResidualMax = 0.3

	// StableFloor is the confidence below which PASS_STABLE is never granted
	StableFloor = 0.5

	reasonBelowFloor = "settlement_confidence_below_stable_floor"
)

// Decision is the tagged outcome of gating one claim
type Decision struct {
	Status   model.FalsificationStatus `json:"status"`
	Boundary model.FailureBoundary     `json:"failure_boundary"`
}

// Gate decides PASS_STABLE, PASS_TENTATIVE or FAIL per claim with a bounded
// number of tentative cycles
type Gate struct {
	schema      *schema.Schema
	idx         *evidence.Index
	maxCycles   int
	residualMax float64
	stableFloor float64
	logger      *zap.Logger
}

// New creates a gate. Zero config values use the package defaults.
func New(s *schema.Schema, idx *evidence.Index, cfg model.GateConfig, logger *zap.Logger) *Gate {
	if s == nil {
		s = schema.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{
		schema:      s,
		idx:         idx,
		maxCycles:   cfg.DeadlockMaxCycles,
		residualMax: cfg.UnresolvedResidualMax,
		stableFloor: cfg.StableFloor,
		logger:      logger,
	}
	if g.maxCycles <= 0 {
		g.maxCycles = DeadlockMaxCycles
	}
	if g.residualMax <= 0 {
		g.residualMax = UnresolvedResidualMax
	}
	if g.stableFloor <= 0 {
		g.stableFloor = StableFloor
	}
	return g
}

// Decide classifies one claim from its attacks. It does not touch TTL.
func (g *Gate) Decide(c *model.Claim, attacks []model.Attack) Decision {
	if c.TentativeCyclesUsed >= g.maxCycles {
		return Decision{
			Status:   model.Fail,
			Boundary: model.FailureBoundary{Reason: model.ReasonDeadlockExit, ThresholdExceeded: true},
		}
	}

	var selected []model.Attack
	for _, a := range attacks {
		if a.SelectedForGate {
			selected = append(selected, a)
		}
	}

	if len(selected) == 0 {
		if c.IsVerified || c.State == model.StateStable {
			return g.floor(c, Decision{Status: model.PassStable})
		}
		return Decision{
			Status:   model.PassTentative,
			Boundary: model.FailureBoundary{Reason: model.ReasonNoAttackCoverage},
		}
	}

	var open []string
	for _, a := range selected {
		if a.UnresolvedResidual > g.residualMax {
			open = append(open, string(a.AttackClass))
		}
	}
	if len(open) > 0 {
		return Decision{
			Status: model.PassTentative,
			Boundary: model.FailureBoundary{
				Reason:            model.ReasonUnresolvedAttacks,
				EvidenceRefs:      open,
				ThresholdExceeded: true,
			},
		}
	}

	var used []string
	if g.idx != nil {
		used = g.idx.EvidenceTypes(c)
	}
	if ok, reason := schema.CanSettleStable(g.schema, c.Outcome(), used); !ok {
		return Decision{
			Status:   model.PassTentative,
			Boundary: model.FailureBoundary{Reason: reason},
		}
	}
	return g.floor(c, Decision{Status: model.PassStable})
}

// floor enforces the stable confidence floor on every PASS_STABLE path
func (g *Gate) floor(c *model.Claim, d Decision) Decision {
	if d.Status == model.PassStable && c.SettlementConfidence < g.stableFloor {
		return Decision{
			Status:   model.PassTentative,
			Boundary: model.FailureBoundary{Reason: reasonBelowFloor},
		}
	}
	return d
}

// Settle applies a decision's TTL bookkeeping to a claim copy.
// PASS_TENTATIVE spends one cycle and one TTL unit; an exhausted TTL becomes FAIL.
func Settle(c *model.Claim, d Decision) Decision {
	if d.Status != model.PassTentative {
		return d
	}
	c.TentativeCyclesUsed++
	if c.TentativeTTL > 0 {
		c.TentativeTTL--
	}
	if c.TentativeTTL <= 0 {
		return Decision{
			Status: model.Fail,
			Boundary: model.FailureBoundary{
				Reason:            model.ReasonTentativeTTLExpired,
				EvidenceRefs:      d.Boundary.EvidenceRefs,
				ThresholdExceeded: true,
			},
		}
	}
	return d
}

// Result summarizes one gate run
type Result struct {
	Gated      int                               `json:"gated"`
	ByStatus   map[model.FalsificationStatus]int `json:"by_status"`
	Deadlocks  int                               `json:"deadlocks"`
	TTLExpired int                               `json:"ttl_expired"`
	Advanced   int                               `json:"advanced"`
	Refs       []string                          `json:"refs"`
}

// Run gates every non-terminal latest claim against the attacks of the current
// run and writes the outcome back through the state machine
func (g *Gate) Run(m *lifecycle.Machine, attacksByRef map[string][]model.Attack) (Result, error) {
	res := Result{ByStatus: make(map[model.FalsificationStatus]int)}

	err := m.Edit(func(tx *lifecycle.Tx) error {
		for _, c := range tx.Latest() {
			if c.State.Terminal() {
				continue
			}
			ref := c.Ref()

			decision := Settle(&c, g.Decide(&c, attacksByRef[ref]))
			c.FalsificationStatus = decision.Status
			c.FailureBoundary = decision.Boundary
			write := func(target *model.Claim) { *target = c.Clone() }

			res.Gated++
			res.ByStatus[decision.Status]++
			res.Refs = append(res.Refs, ref)
			switch decision.Boundary.Reason {
			case model.ReasonDeadlockExit:
				res.Deadlocks++
			case model.ReasonTentativeTTLExpired:
				res.TTLExpired++
			}

			advanced, err := g.apply(tx, c.State, ref, decision.Status, write)
			if err != nil {
				return err
			}
			res.Advanced += advanced
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	g.logger.Info("gate finished",
		zap.Int("gated", res.Gated),
		zap.Int("stable", res.ByStatus[model.PassStable]),
		zap.Int("tentative", res.ByStatus[model.PassTentative]),
		zap.Int("fail", res.ByStatus[model.Fail]),
		zap.Int("deadlocks", res.Deadlocks))
	return res, nil
}

// apply writes the decision and advances the lifecycle where the outcome allows.
// Guard rejections of the advance are logged and the decision is still recorded.
func (g *Gate) apply(tx *lifecycle.Tx, state model.ClaimState, ref string, status model.FalsificationStatus, write func(*model.Claim)) (int, error) {
	var path []model.ClaimState
	switch {
	case state == model.StateAttacked && status == model.Fail:
		path = []model.ClaimState{model.StateFalsified}
	case state == model.StateAttacked && status == model.PassStable:
		path = []model.ClaimState{model.StateDefended, model.StateStable}
	case state == model.StateAttacked && status == model.PassTentative:
		path = []model.ClaimState{model.StateDefended}
	case state == model.StateDefended && status == model.PassStable:
		path = []model.ClaimState{model.StateStable}
	}

	if _, err := tx.Annotate(ref, write); err != nil {
		if !lifecycle.IsGuardViolation(err) {
			return 0, err
		}
		g.logger.Warn("gate outcome rejected", zap.String("claim_ref", ref), zap.Error(err))
		return 0, nil
	}

	advanced := 0
	for _, next := range path {
		if _, err := tx.Transition(ref, next, nil); err != nil {
			if !lifecycle.IsGuardViolation(err) {
				return advanced, err
			}
			g.logger.Debug("gate advance rejected", zap.String("claim_ref", ref), zap.Error(err))
			break
		}
		advanced++
	}
	return advanced, nil
}
