package attack

import (
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

// Journal is the append-only attacks/attacks.jsonl file
type Journal struct {
	path string
}

// NewJournal opens the journal at path
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append writes attacks at the end of the journal
func (j *Journal) Append(attacks []model.Attack) error {
	if len(attacks) == 0 {
		return nil
	}
	return store.AppendJSONL(j.path, attacks...)
}

// All returns every readable attack; a partial trailing line is skipped
func (j *Journal) All() ([]model.Attack, error) {
	return store.ReadJSONL[model.Attack](j.path)
}

// ForRun returns the attacks of one run grouped by claim ref
func (j *Journal) ForRun(runID string) (map[string][]model.Attack, error) {
	all, err := j.All()
	if err != nil {
		return nil, err
	}
	return GroupByRef(all, runID), nil
}

// GroupByRef groups attacks by claim ref; an empty runID keeps every run
func GroupByRef(attacks []model.Attack, runID string) map[string][]model.Attack {
	out := make(map[string][]model.Attack)
	for _, a := range attacks {
		if runID != "" && a.RunID != runID {
			continue
		}
		out[a.ClaimRef] = append(out[a.ClaimRef], a)
	}
	return out
}
