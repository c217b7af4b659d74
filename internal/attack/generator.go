package attack

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ppiankov/aem/internal/model"
)

const (
	// DefaultMaxPerClaim caps attacks emitted for one claim
	DefaultMaxPerClaim = 3

	// DefaultMinGateWeight is the weight from which an attack consumes gate budget
	DefaultMinGateWeight = 0.2

	// InitialResidual is the unresolved residual of an undefended attack
	InitialResidual = 0.5
)

// Generator emits weighted attacks across the fixed taxonomy
type Generator struct {
	order         []model.AttackClass
	weights       map[model.AttackClass]float64
	maxPerClaim   int
	minGateWeight float64
	newID         func() string
}

// NewGenerator creates a generator. Missing class weights fall back to the defaults.
func NewGenerator(cfg model.AttackConfig) *Generator {
	weights := model.DefaultAttackWeights()
	for class, w := range cfg.Weights {
		if _, known := weights[class]; known && w >= 0 && w <= 1 {
			weights[class] = w
		}
	}

	maxPerClaim := cfg.MaxPerClaim
	if maxPerClaim <= 0 {
		maxPerClaim = DefaultMaxPerClaim
	}
	if maxPerClaim > len(model.AttackClasses) {
		maxPerClaim = len(model.AttackClasses)
	}
	minGate := cfg.MinGateWeight
	if minGate <= 0 {
		minGate = DefaultMinGateWeight
	}

	order := append([]model.AttackClass(nil), model.AttackClasses...)
	sort.SliceStable(order, func(i, j int) bool {
		return weights[order[i]] > weights[order[j]]
	})

	return &Generator{
		order:         order,
		weights:       weights,
		maxPerClaim:   maxPerClaim,
		minGateWeight: minGate,
		newID:         uuid.NewString,
	}
}

// Classes returns the classes emitted per claim, heaviest first
func (g *Generator) Classes() []model.AttackClass {
	return append([]model.AttackClass(nil), g.order[:g.maxPerClaim]...)
}

// Generate emits the attacks for one claim version
func (g *Generator) Generate(runID string, c *model.Claim) []model.Attack {
	attacks := make([]model.Attack, 0, g.maxPerClaim)
	for _, class := range g.Classes() {
		w := g.weights[class]
		attacks = append(attacks, model.Attack{
			AttackID:           g.newID(),
			RunID:              runID,
			ClaimRef:           c.Ref(),
			AttackClass:        class,
			AttackWeight:       w,
			SelectedForGate:    w >= g.minGateWeight,
			AttackStrength:     w,
			UnresolvedResidual: InitialResidual,
			FalsificationTest:  falsificationTest(class, c.Text),
			MinimalReproSteps:  reproSteps(class, c),
		})
	}
	return attacks
}

var testTemplates = map[model.AttackClass]string{
	model.AttackAssumption:         "Name the unstated premise behind %q and find a documented case where it does not hold.",
	model.AttackMeasurement:        "Re-derive the measured quantity in %q from an independent dataset or instrument and compare.",
	model.AttackMechanism:          "Check whether the causal path asserted by %q survives when the proposed mediator is controlled for.",
	model.AttackExternalValidity:   "Check whether %q holds outside the population and geography it was observed in.",
	model.AttackIncentiveConfound:  "Check whether the sources supporting %q share a funding or incentive interest that predicts the result.",
	model.AttackTemporalDrift:      "Check whether %q still holds for the most recent period with available data.",
	model.AttackOntologyDefinition: "Substitute an accepted alternative definition of the key terms in %q and re-evaluate.",
}

func falsificationTest(class model.AttackClass, text string) string {
	return fmt.Sprintf(testTemplates[class], truncate(text, 120))
}

func reproSteps(class model.AttackClass, c *model.Claim) []string {
	sources := "no cited sources"
	if len(c.SupportingSourceIDs) > 0 {
		sources = strings.Join(c.SupportingSourceIDs, ", ")
	}
	return []string{
		"Collect the cited evidence for " + c.Ref() + ": " + sources,
		"Apply the " + strings.ReplaceAll(string(class), "_", " ") + " test to that evidence",
		"Record whether the claim survives and the unresolved residual",
	}
}

// truncate keeps at most n runes of s
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "..."
}
