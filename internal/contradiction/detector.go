package contradiction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/budget"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

// Pair is one source-level contradiction reported by a detector
type Pair struct {
	SourceA     string  `json:"source_a"`
	SourceB     string  `json:"source_b"`
	Description string  `json:"description,omitempty"`
	Strength    float64 `json:"strength,omitempty"`
}

// Input is what a detector may look at
type Input struct {
	ProjectID string
	Project   *model.Project
	Findings  []model.Finding
}

// Detector finds contradicting source pairs in a project
type Detector interface {
	Name() string
	Detect(ctx context.Context, in Input) ([]Pair, error)
}

// Document is the contradictions/contradictions.json artifact
type Document struct {
	Contradictions []Pair `json:"contradictions"`
}

// FileDetector replays pairs written by the upstream detector
type FileDetector struct {
	path string
}

// NewFileDetector reads pairs from path; a missing file yields no pairs
func NewFileDetector(path string) *FileDetector {
	return &FileDetector{path: path}
}

// Name returns "file"
func (d *FileDetector) Name() string {
	return "file"
}

// Detect reads the artifact
func (d *FileDetector) Detect(ctx context.Context, in Input) ([]Pair, error) {
	var doc Document
	if _, err := store.ReadJSON(d.path, &doc); err != nil {
		return nil, err
	}
	return clean(doc.Contradictions), nil
}

// ChainDetector unions the pairs of several detectors.
// A failing detector is logged and skipped; a budget refusal stops the chain.
type ChainDetector struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewChainDetector runs detectors in order, ignoring nil entries
func NewChainDetector(logger *zap.Logger, detectors ...Detector) *ChainDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ChainDetector{logger: logger}
	for _, d := range detectors {
		if d != nil {
			c.detectors = append(c.detectors, d)
		}
	}
	return c
}

// Name lists the chained detector names
func (c *ChainDetector) Name() string {
	names := make([]string, len(c.detectors))
	for i, d := range c.detectors {
		names[i] = d.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Detect returns the deduplicated union. On budget refusal the pairs found
// so far are returned together with the error.
func (c *ChainDetector) Detect(ctx context.Context, in Input) ([]Pair, error) {
	var all []Pair
	for _, d := range c.detectors {
		pairs, err := d.Detect(ctx, in)
		if err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				return clean(all), fmt.Errorf("%s detector: %w", d.Name(), err)
			}
			if store.IsStorageError(err) {
				return nil, err
			}
			c.logger.Warn("contradiction detector failed",
				zap.String("detector", d.Name()),
				zap.Error(err))
			continue
		}
		c.logger.Debug("contradiction detector finished",
			zap.String("detector", d.Name()),
			zap.Int("pairs", len(pairs)))
		all = append(all, pairs...)
	}
	return clean(all), nil
}

// clean drops self-pairs and empty sides and keeps the first of each
// unordered duplicate
func clean(pairs []Pair) []Pair {
	seen := make(map[string]bool)
	var out []Pair
	for _, p := range pairs {
		p.SourceA = strings.TrimSpace(p.SourceA)
		p.SourceB = strings.TrimSpace(p.SourceB)
		if p.SourceA == "" || p.SourceB == "" || p.SourceA == p.SourceB {
			continue
		}
		a, b := p.SourceA, p.SourceB
		if b < a {
			a, b = b, a
		}
		key := a + "\x00" + b
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
