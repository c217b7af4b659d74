package evidence

import "github.com/ppiankov/aem/internal/model"

// Index is an ordered set of evidence entries addressable by URL or source id
type Index struct {
	entries []model.EvidenceEntry
	byKey   map[string]int
}

func newIndex() *Index {
	return &Index{byKey: make(map[string]int)}
}

func (idx *Index) add(e model.EvidenceEntry, aliases []string) {
	if _, ok := idx.byKey[e.SourceURL]; ok {
		return
	}
	idx.byKey[e.SourceURL] = len(idx.entries)
	for _, a := range aliases {
		if _, ok := idx.byKey[a]; !ok {
			idx.byKey[a] = len(idx.entries)
		}
	}
	idx.entries = append(idx.entries, e)
}

// Entries returns the entries in index order
func (idx *Index) Entries() []model.EvidenceEntry {
	return append([]model.EvidenceEntry(nil), idx.entries...)
}

// Len returns the number of entries
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Lookup finds the entry for a source URL or source id
func (idx *Index) Lookup(source string) (model.EvidenceEntry, bool) {
	i, ok := idx.byKey[source]
	if !ok {
		return model.EvidenceEntry{}, false
	}
	return idx.entries[i], true
}

// ForClaim returns the entries backing a claim's supporting sources, deduplicated
func (idx *Index) ForClaim(c *model.Claim) []model.EvidenceEntry {
	seen := make(map[string]bool)
	var out []model.EvidenceEntry
	for _, src := range c.SupportingSourceIDs {
		e, ok := idx.Lookup(src)
		if !ok || seen[e.EvidenceID] {
			continue
		}
		seen[e.EvidenceID] = true
		out = append(out, e)
	}
	return out
}

// EvidenceTypes returns the distinct source types backing a claim, in source order
func (idx *Index) EvidenceTypes(c *model.Claim) []string {
	seen := make(map[string]bool)
	var types []string
	for _, e := range idx.ForClaim(c) {
		if e.SourceType == "" || seen[e.SourceType] {
			continue
		}
		seen[e.SourceType] = true
		types = append(types, e.SourceType)
	}
	return types
}
