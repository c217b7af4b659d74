// Package question builds the question graph that links research questions to claims.
package question

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

// RootID is the question id of the project's root question
const RootID = "q_root"

// LinkedClaim is the minimal claim view the graph needs
type LinkedClaim struct {
	ClaimID              string
	Text                 string
	State                model.ClaimState
	SettlementConfidence float64
	Scope                model.ClaimScope
}

// FromLedger projects ledger claims (latest versions) into linked claims
func FromLedger(claims []model.Claim) []LinkedClaim {
	out := make([]LinkedClaim, 0, len(claims))
	for _, c := range claims {
		out = append(out, LinkedClaim{
			ClaimID:              c.ClaimID,
			Text:                 c.Text,
			State:                c.State,
			SettlementConfidence: c.SettlementConfidence,
			Scope:                c.Scope,
		})
	}
	return out
}

// FromVerify projects upstream verify rows into linked claims
func FromVerify(rows []model.VerifyClaim) []LinkedClaim {
	out := make([]LinkedClaim, 0, len(rows))
	for i, r := range rows {
		id := r.ClaimID
		if id == "" {
			id = fmt.Sprintf("cl_%d", i+1)
		}
		conf := r.VerificationTier.Confidence()
		if r.Confidence != nil {
			conf = *r.Confidence
		}
		out = append(out, LinkedClaim{ClaimID: id, Text: r.Text, SettlementConfidence: conf})
	}
	return out
}

// Builder derives and persists the question graph
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a question graph builder
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Build derives the graph for a project from its claims and findings count.
// Legacy "answered" ids found in previous are carried forward.
func (b *Builder) Build(p *model.Project, claims []LinkedClaim, findingsCount int, previous *model.QuestionGraph) model.QuestionGraph {
	gap := GapScore(findingsCount)

	questions := []model.Question{b.node(RootID, p.Question, 1.0, gap, claims, nil)}
	for i, text := range p.SubQuestions {
		if strings.TrimSpace(text) == "" {
			continue
		}
		id := fmt.Sprintf("q_%d", i+1)
		questions = append(questions, b.node(id, text, 0.7, gap, claims, contentWords(text)))
	}

	graph := model.QuestionGraph{
		Questions: questions,
		Open:      []string{},
		Answered:  []string{},
	}

	answered := make(map[string]bool)
	if previous != nil {
		for _, id := range previous.Answered {
			if !answered[id] {
				answered[id] = true
				graph.Answered = append(graph.Answered, id)
			}
		}
	}
	for _, q := range questions {
		switch q.State {
		case model.QuestionOpen:
			graph.Open = append(graph.Open, q.QuestionID)
		case model.QuestionResolved:
			if !answered[q.QuestionID] {
				answered[q.QuestionID] = true
				graph.Answered = append(graph.Answered, q.QuestionID)
			}
		}
	}

	b.logger.Debug("question graph built",
		zap.Int("questions", len(questions)),
		zap.Int("claims", len(claims)),
		zap.Float64("evidence_gap_score", gap))
	return graph
}

func (b *Builder) node(id, text string, relevance, gap float64, claims []LinkedClaim, words map[string]bool) model.Question {
	var linked []LinkedClaim
	for _, c := range claims {
		if words == nil || sharedWords(words, contentWords(c.Text)) >= 2 {
			linked = append(linked, c)
		}
	}

	ids := make([]string, 0, len(linked))
	for _, c := range linked {
		ids = append(ids, c.ClaimID)
	}

	return model.Question{
		QuestionID:        id,
		Text:              text,
		State:             DeriveState(len(ids), gap),
		DecisionRelevance: relevance,
		Uncertainty:       uncertainty(linked),
		EvidenceGapScore:  gap,
		LinkedClaims:      ids,
	}
}

// GapScore buckets the findings count into an evidence gap score
func GapScore(findingsCount int) float64 {
	switch {
	case findingsCount >= 10:
		return 0.2
	case findingsCount >= 5:
		return 0.4
	default:
		return 0.5
	}
}

// DeriveState maps linkage and gap to a question state
func DeriveState(linked int, gap float64) model.QuestionState {
	switch {
	case linked > 0 && gap <= 0.2:
		return model.QuestionNarrowed
	case linked > 0:
		return model.QuestionPartiallyResolved
	default:
		return model.QuestionOpen
	}
}

// uncertainty splits residual doubt over the linked claims by axis
func uncertainty(linked []LinkedClaim) model.Uncertainty {
	if len(linked) == 0 {
		return model.Uncertainty{Measurement: 1, Mechanism: 1, ExternalValidity: 1, Temporal: 1}
	}

	var conf, notStable, noScope, noTimeframe float64
	for _, c := range linked {
		conf += c.SettlementConfidence
		if c.State != model.StateStable {
			notStable++
		}
		if c.Scope == (model.ClaimScope{}) {
			noScope++
		}
		if c.Scope.Timeframe == "" {
			noTimeframe++
		}
	}
	n := float64(len(linked))
	return model.Uncertainty{
		Measurement:      1 - conf/n,
		Mechanism:        notStable / n,
		ExternalValidity: noScope / n,
		Temporal:         noTimeframe / n,
	}
}

// contentWords returns lower-cased words of at least four letters
func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 4 {
			words[w] = true
		}
	}
	return words
}

func sharedWords(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

// Load reads questions/questions.json. A missing file returns (nil, nil).
func Load(path string) (*model.QuestionGraph, error) {
	var g model.QuestionGraph
	found, err := store.ReadJSON(path, &g)
	if err != nil || !found {
		return nil, err
	}
	return &g, nil
}

// Save writes the graph atomically
func Save(path string, g model.QuestionGraph) error {
	return store.WriteJSON(path, g)
}
