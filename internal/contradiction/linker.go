package contradiction

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/budget"
	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/lifecycle"
	"github.com/ppiankov/aem/internal/model"
)

// DefaultStrength is used when a detector reports no strength
const DefaultStrength = 0.7

// Result summarizes one linking pass
type Result struct {
	Pairs           int  `json:"pairs"`
	Links           int  `json:"links"`
	Contested       int  `json:"contested"`
	Skipped         int  `json:"skipped"`
	BudgetExhausted bool `json:"budget_exhausted"`
}

// Linker maps source-level contradictions onto claim refs
type Linker struct {
	detector Detector
	strength float64
	logger   *zap.Logger
}

// NewLinker creates a linker; strength <= 0 uses DefaultStrength
func NewLinker(detector Detector, strength float64, logger *zap.Logger) *Linker {
	if strength <= 0 || strength > 1 {
		strength = DefaultStrength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{detector: detector, strength: strength, logger: logger}
}

// Link detects pairs and records every cross-claim edge on the first claim of
// each pair. A stable claim receiving a live edge moves to contested. Edges
// already present are not duplicated.
func (l *Linker) Link(ctx context.Context, m *lifecycle.Machine, idx *evidence.Index, in Input) (Result, error) {
	var res Result

	pairs, err := l.detector.Detect(ctx, in)
	if err != nil {
		if !errors.Is(err, budget.ErrBudgetExceeded) {
			return res, err
		}
		res.BudgetExhausted = true
		l.logger.Warn("contradiction detection stopped by budget", zap.Error(err))
	}
	res.Pairs = len(pairs)
	if len(pairs) == 0 {
		return res, nil
	}

	err = m.Edit(func(tx *lifecycle.Tx) error {
		citing := citingByCanonical(tx.Latest(), idx)

		for _, p := range pairs {
			strength := p.Strength
			if strength <= 0 || strength > 1 {
				strength = l.strength
			}

			left := citing[canonical(idx, p.SourceA)]
			right := citing[canonical(idx, p.SourceB)]
			for _, a := range left {
				for _, b := range right {
					if a == b {
						continue
					}
					linked, contested, err := l.linkOne(tx, a, b, strength)
					if err != nil {
						if lifecycle.IsGuardViolation(err) {
							res.Skipped++
							continue
						}
						return err
					}
					if linked {
						res.Links++
					}
					if contested {
						res.Contested++
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	l.logger.Info("contradictions linked",
		zap.Int("pairs", res.Pairs),
		zap.Int("links", res.Links),
		zap.Int("contested", res.Contested))
	return res, nil
}

func (l *Linker) linkOne(tx *lifecycle.Tx, from, to string, strength float64) (bool, bool, error) {
	current, ok := tx.Get(from)
	if !ok {
		return false, false, nil
	}
	for _, ct := range current.Contradicts {
		if ct.ClaimRef == to {
			return false, false, nil
		}
	}
	if current.State == model.StateRetired {
		return false, false, nil
	}

	addEdge := func(c *model.Claim) {
		c.Contradicts = append(c.Contradicts, model.Contradiction{ClaimRef: to, Strength: strength})
	}

	if current.State == model.StateStable {
		if _, err := tx.Transition(from, model.StateContested, addEdge); err != nil {
			return false, false, err
		}
		return true, true, nil
	}
	if _, err := tx.Annotate(from, addEdge); err != nil {
		return false, false, err
	}
	return true, false, nil
}

// citingByCanonical maps canonical source keys to the refs of latest claims citing them
func citingByCanonical(latest []model.Claim, idx *evidence.Index) map[string][]string {
	out := make(map[string][]string)
	for i := range latest {
		ref := latest[i].Ref()
		for _, src := range latest[i].SupportingSourceIDs {
			key := canonical(idx, src)
			out[key] = appendUnique(out[key], ref)
		}
	}
	return out
}

// canonical resolves a source id or URL to its evidence entry URL when indexed
func canonical(idx *evidence.Index, source string) string {
	if idx != nil {
		if e, ok := idx.Lookup(source); ok {
			return e.SourceURL
		}
	}
	return source
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
