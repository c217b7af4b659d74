package contradiction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/llm"
)

const (
	maxSources       = 20
	maxSummaryChars  = 400
	detectorMaxToken = 800
)

const detectorSystemPrompt = `You compare research sources and report direct factual contradictions between them.
Only report pairs where the sources make incompatible claims about the same quantity, event or relationship.
Answer with JSON only: {"contradictions":[{"source_a":"...","source_b":"...","description":"...","strength":0.0}]}
Use the source identifiers exactly as given. strength is in [0,1]. Return an empty list when nothing conflicts.`

// LLMDetector asks a judge model to compare per-source finding summaries
type LLMDetector struct {
	client llm.Client
	model  string
	logger *zap.Logger
}

// NewLLMDetector creates a detector using client; model may be empty
func NewLLMDetector(client llm.Client, model string, logger *zap.Logger) *LLMDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMDetector{client: client, model: model, logger: logger}
}

// Name returns "llm"
func (d *LLMDetector) Name() string {
	return "llm"
}

// Detect sends one comparison request. Fewer than two sources make no call.
func (d *LLMDetector) Detect(ctx context.Context, in Input) ([]Pair, error) {
	summaries := summarize(in)
	if len(summaries) < 2 {
		return nil, nil
	}

	var prompt strings.Builder
	if in.Project != nil && in.Project.Question != "" {
		fmt.Fprintf(&prompt, "Research question: %s\n\n", in.Project.Question)
	}
	prompt.WriteString("Sources:\n")
	for _, s := range summaries {
		fmt.Fprintf(&prompt, "- id: %s\n  findings: %s\n", s.source, s.text)
	}

	resp, err := d.client.Complete(ctx, llm.Request{
		Model:     d.model,
		System:    detectorSystemPrompt,
		User:      prompt.String(),
		MaxTokens: detectorMaxToken,
		ProjectID: in.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("contradiction judge: %w", err)
	}

	var doc Document
	if err := llm.DecodeJSON(resp.Text, &doc); err != nil {
		return nil, fmt.Errorf("contradiction judge: %w", err)
	}

	known := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		known[s.source] = true
	}
	var pairs []Pair
	for _, p := range doc.Contradictions {
		if !known[p.SourceA] || !known[p.SourceB] {
			d.logger.Debug("judge named unknown source", zap.String("a", p.SourceA), zap.String("b", p.SourceB))
			continue
		}
		pairs = append(pairs, p)
	}
	return clean(pairs), nil
}

type sourceSummary struct {
	source string
	text   string
}

// summarize groups findings by source URL, in URL order, capped in count and length
func summarize(in Input) []sourceSummary {
	bySource := make(map[string][]string)
	for _, f := range in.Findings {
		if f.SourceURL == "" || strings.TrimSpace(f.Text) == "" {
			continue
		}
		bySource[f.SourceURL] = append(bySource[f.SourceURL], strings.TrimSpace(f.Text))
	}

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}

	out := make([]sourceSummary, 0, len(sources))
	for _, s := range sources {
		text := strings.Join(bySource[s], " | ")
		if len(text) > maxSummaryChars {
			text = text[:maxSummaryChars] + "..."
		}
		out = append(out, sourceSummary{source: s, text: text})
	}
	return out
}
