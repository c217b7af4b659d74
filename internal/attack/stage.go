package attack

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/lifecycle"
	"github.com/ppiankov/aem/internal/model"
)

// Result summarizes one attack run
type Result struct {
	Claims   int `json:"claims"`
	Attacks  int `json:"attacks"`
	Selected int `json:"selected"`
	Advanced int `json:"advanced"`

	// Emitted is the journal written by this run
	Emitted []model.Attack `json:"-"`
}

// Stage generates, defends and journals attacks for triaged claims and moves
// them into the attacked state
type Stage struct {
	generator *Generator
	defender  Defender
	journal   *Journal
	logger    *zap.Logger
}

// NewStage wires the stage. A nil defender leaves the initial residual in place.
func NewStage(generator *Generator, defender Defender, journal *Journal, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{generator: generator, defender: defender, journal: journal, logger: logger}
}

// Run attacks every claim in refs. The journal is appended only after the
// ledger edit succeeds.
func (s *Stage) Run(ctx context.Context, m *lifecycle.Machine, runID string, refs []string) (Result, error) {
	var (
		res     Result
		emitted []model.Attack
	)

	err := m.Edit(func(tx *lifecycle.Tx) error {
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, ok := tx.Get(ref)
			if !ok || c.State.Terminal() {
				continue
			}

			if c.State == model.StateProposed && len(c.SupportingSourceIDs) > 0 {
				if s.advance(tx, ref, model.StateEvidenced) {
					res.Advanced++
					c.State = model.StateEvidenced
				}
			}

			attacks := s.generator.Generate(runID, c)
			if s.defender != nil {
				defended, err := s.defender.Defend(ctx, c, attacks)
				if err != nil {
					return fmt.Errorf("defend %s: %w", ref, err)
				}
				attacks = defended
			}
			if len(attacks) == 0 {
				continue
			}

			res.Claims++
			res.Attacks += len(attacks)
			for _, a := range attacks {
				if a.SelectedForGate {
					res.Selected++
				}
			}
			emitted = append(emitted, attacks...)

			switch c.State {
			case model.StateEvidenced, model.StateContested, model.StateDefended:
				if s.advance(tx, ref, model.StateAttacked) {
					res.Advanced++
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	if err := s.journal.Append(emitted); err != nil {
		return res, err
	}
	res.Emitted = emitted

	s.logger.Info("attacks generated",
		zap.Int("claims", res.Claims),
		zap.Int("attacks", res.Attacks),
		zap.Int("selected", res.Selected))
	return res, nil
}

func (s *Stage) advance(tx *lifecycle.Tx, ref string, next model.ClaimState) bool {
	if _, err := tx.Transition(ref, next, nil); err != nil {
		s.logger.Debug("lifecycle advance skipped",
			zap.String("claim_ref", ref),
			zap.String("to", string(next)),
			zap.Error(err))
		return false
	}
	return true
}
