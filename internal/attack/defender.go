package attack

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/evidence"
	"github.com/ppiankov/aem/internal/llm"
	"github.com/ppiankov/aem/internal/model"
)

// Defender sets defense strength and residual on a claim's attacks
type Defender interface {
	Defend(ctx context.Context, c *model.Claim, attacks []model.Attack) ([]model.Attack, error)
}

// Residual is the part of an attack the defense leaves standing
func Residual(strength, defense float64) float64 {
	return round3(clamp01(strength * (1 - clamp01(defense))))
}

// EvidenceDefender derives defense from the evidence features of a claim's sources
type EvidenceDefender struct {
	idx *evidence.Index
}

// NewEvidenceDefender creates a defender over idx
func NewEvidenceDefender(idx *evidence.Index) *EvidenceDefender {
	return &EvidenceDefender{idx: idx}
}

// Defend combines per-source support as a noisy-or of feature times independence,
// so several independent sources defend better than one cluster.
func (d *EvidenceDefender) Defend(ctx context.Context, c *model.Claim, attacks []model.Attack) ([]model.Attack, error) {
	var entries []model.EvidenceEntry
	if d.idx != nil {
		entries = d.idx.ForClaim(c)
	}

	out := make([]model.Attack, len(attacks))
	for i, a := range attacks {
		undefended := 1.0
		for _, e := range entries {
			undefended *= 1 - clamp01(feature(a.AttackClass, c, e)*e.IndependenceScore)
		}
		a.DefenseStrength = round3(1 - undefended)
		a.UnresolvedResidual = Residual(a.AttackStrength, a.DefenseStrength)
		out[i] = a
	}
	return out, nil
}

// feature picks the evidence feature that answers an attack class
func feature(class model.AttackClass, c *model.Claim, e model.EvidenceEntry) float64 {
	switch class {
	case model.AttackAssumption, model.AttackMeasurement:
		return e.MethodRigorScore
	case model.AttackMechanism, model.AttackOntologyDefinition:
		return e.DirectnessScore
	case model.AttackExternalValidity:
		// an unscoped claim on unscoped evidence asserts nothing beyond the source
		if c.Scope == (model.ClaimScope{}) && e.EvidenceScope == (model.ClaimScope{}) {
			return 1
		}
		return e.ScopeOverlapScore
	case model.AttackIncentiveConfound:
		if e.ConflictOfInterestFlag {
			return 0
		}
		return 1
	case model.AttackTemporalDrift:
		return e.ReliabilityScore
	}
	return 0
}

const judgeSystemPrompt = `You judge how well the cited evidence defends a research claim against specific attacks.
For each attack return defense_strength in [0,1]: 0 means the attack stands, 1 means the evidence fully answers it.
Answer with JSON only: {"defenses":[{"attack_class":"...","defense_strength":0.0}]}`

// LLMDefender asks a judge model for defense strengths and falls back on any failure
type LLMDefender struct {
	client    llm.Client
	model     string
	projectID string
	fallback  Defender
	logger    *zap.Logger
}

// NewLLMDefender creates a judge-backed defender
func NewLLMDefender(client llm.Client, model, projectID string, fallback Defender, logger *zap.Logger) *LLMDefender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMDefender{client: client, model: model, projectID: projectID, fallback: fallback, logger: logger}
}

type judgeReply struct {
	Defenses []struct {
		AttackClass     model.AttackClass `json:"attack_class"`
		DefenseStrength *float64          `json:"defense_strength"`
	} `json:"defenses"`
}

// Defend asks the judge; classes it does not answer keep the fallback defense
func (d *LLMDefender) Defend(ctx context.Context, c *model.Claim, attacks []model.Attack) ([]model.Attack, error) {
	base, err := d.fallback.Defend(ctx, c, attacks)
	if err != nil {
		return nil, err
	}
	if len(attacks) == 0 {
		return base, nil
	}

	resp, err := d.client.Complete(ctx, llm.Request{
		Model:     d.model,
		System:    judgeSystemPrompt,
		User:      judgePrompt(c, attacks),
		MaxTokens: 400,
		ProjectID: d.projectID,
	})
	if err != nil {
		d.logger.Warn("defense judge failed, using evidence defense",
			zap.String("claim_ref", c.Ref()),
			zap.Error(err))
		return base, nil
	}

	var reply judgeReply
	if err := llm.DecodeJSON(resp.Text, &reply); err != nil {
		d.logger.Warn("defense judge reply unreadable", zap.String("claim_ref", c.Ref()), zap.Error(err))
		return base, nil
	}

	judged := make(map[model.AttackClass]float64)
	for _, def := range reply.Defenses {
		if def.DefenseStrength != nil {
			judged[def.AttackClass] = clamp01(*def.DefenseStrength)
		}
	}
	for i := range base {
		if v, ok := judged[base[i].AttackClass]; ok {
			base[i].DefenseStrength = round3(v)
			base[i].UnresolvedResidual = Residual(base[i].AttackStrength, v)
		}
	}
	return base, nil
}

func judgePrompt(c *model.Claim, attacks []model.Attack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim %s: %s\n", c.Ref(), c.Text)
	fmt.Fprintf(&b, "Cited sources: %s\n\nAttacks:\n", strings.Join(c.SupportingSourceIDs, ", "))
	for _, a := range attacks {
		fmt.Fprintf(&b, "- %s (weight %.2f): %s\n", a.AttackClass, a.AttackWeight, a.FalsificationTest)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
