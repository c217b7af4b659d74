// Package project resolves and reads a research project workspace.
package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves every artifact path of a project root
type Layout struct {
	Root string
}

// Resolve maps a project id to its root. An existing directory path is used
// as-is; anything else is treated as a name under projectsRoot.
func Resolve(projectsRoot, projectID string) Layout {
	if info, err := os.Stat(projectID); err == nil && info.IsDir() {
		return Layout{Root: filepath.Clean(projectID)}
	}
	return Layout{Root: filepath.Join(projectsRoot, projectID)}
}

// ID returns the project id (the base name of the root)
func (l Layout) ID() string {
	return filepath.Base(l.Root)
}

func (l Layout) path(parts ...string) string {
	return filepath.Join(append([]string{l.Root}, parts...)...)
}

func (l Layout) ProjectFile() string {
	return l.path("project.json")
}

func (l Layout) VerifyLedger() string {
	return l.path("verify", "claim_ledger.json")
}

func (l Layout) SourceReliability() string {
	return l.path("verify", "source_reliability.json")
}

func (l Layout) Ledger() string {
	return l.path("claims", "ledger.jsonl")
}

func (l Layout) Schema() string {
	return l.path("contracts", "claim_outcome_schema.json")
}

func (l Layout) Questions() string {
	return l.path("questions", "questions.json")
}

func (l Layout) EvidenceIndex() string {
	return l.path("evidence", "evidence_index.jsonl")
}

func (l Layout) Attacks() string {
	return l.path("attacks", "attacks.jsonl")
}

func (l Layout) Settlements() string {
	return l.path("market", "settlements.jsonl")
}

func (l Layout) Portfolio() string {
	return l.path("portfolio", "portfolio_state.json")
}

func (l Layout) EpisodeMetrics() string {
	return l.path("policy", "episode_metrics.jsonl")
}

func (l Layout) FindingsDir() string {
	return l.path("findings")
}

func (l Layout) SourcesDir() string {
	return l.path("sources")
}

func (l Layout) Contradictions() string {
	return l.path("contradictions", "contradictions.json")
}

func (l Layout) SynthesisStatus() string {
	return l.path("synthesis_contract_status.json")
}

func (l Layout) Report() string {
	return l.path("reports", "report.md")
}

func (l Layout) AuditLog() string {
	return l.path("audit_log.jsonl")
}

func (l Layout) BudgetUsage() string {
	return l.path("budget", "usage.json")
}

func (l Layout) SourceContent(id string) string {
	return l.path("sources", id+"_content.json")
}

// String renders the layout for log lines
func (l Layout) String() string {
	return fmt.Sprintf("project(%s)", l.Root)
}
