// Package evidence builds the per-source feature index used by triage, defense and the gate.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

// Feature defaults
const (
	DefaultReliability    = 0.5
	primaryIndependence   = 0.7
	secondaryIndependence = 0.5
	independenceDecay     = 0.1
	independenceFloor     = 0.2
	primaryDirectness     = 0.7
	secondaryDirectness   = 0.4
	empiricalRigor        = 0.7
	primaryRigor          = 0.6
	defaultRigor          = 0.4
	clusterIDLength       = 10
)

// Input is everything the index is derived from
type Input struct {
	Findings    []model.Finding
	Sources     []model.SourceRecord
	Claims      []model.Claim
	Reliability map[string]float64
}

// Builder derives evidence entries
type Builder struct {
	classifier *AuthorityClassifier
	logger     *zap.Logger
}

// NewBuilder creates an evidence index builder
func NewBuilder(classifier *AuthorityClassifier, logger *zap.Logger) *Builder {
	if classifier == nil {
		classifier = NewAuthorityClassifier(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{classifier: classifier, logger: logger}
}

// draft accumulates what is known about one source before features are computed
type draft struct {
	url        string
	sourceType string
	scope      model.ClaimScope
	record     *model.SourceRecord
	aliases    []string
}

// Build returns one entry per unique source, in first-seen order: findings,
// then source records, then any ledger supporting id not yet indexed.
func (b *Builder) Build(in Input) *Index {
	var drafts []*draft
	byKey := make(map[string]*draft)

	add := func(rawURL string) *draft {
		key := strings.TrimSpace(rawURL)
		if key == "" {
			return nil
		}
		if d, ok := byKey[key]; ok {
			return d
		}
		d := &draft{url: key}
		drafts = append(drafts, d)
		byKey[key] = d
		return d
	}

	for _, f := range in.Findings {
		d := add(f.SourceURL)
		if d == nil {
			continue
		}
		if d.sourceType == "" {
			d.sourceType = strings.ToLower(f.SourceType)
		}
		if d.scope == (model.ClaimScope{}) {
			d.scope = f.Scope
		}
	}

	for i := range in.Sources {
		src := &in.Sources[i]
		d := add(src.URL)
		if d == nil {
			continue
		}
		d.record = src
		if src.SourceID != "" && src.SourceID != d.url {
			d.aliases = append(d.aliases, src.SourceID)
			byKey[src.SourceID] = d
		}
		if d.sourceType == "" {
			d.sourceType = strings.ToLower(src.SourceType)
		}
		if d.scope == (model.ClaimScope{}) {
			d.scope = src.Scope
		}
	}

	for _, c := range in.Claims {
		for _, id := range c.SupportingSourceIDs {
			if _, ok := byKey[id]; ok {
				continue
			}
			add(id)
		}
	}

	clusters := make(map[string]int)
	for _, d := range drafts {
		clusters[ClusterID(d.url)]++
	}

	citing := citingClaims(in.Claims)

	idx := newIndex()
	for _, d := range drafts {
		entry := b.entry(d, clusters, citing, in.Reliability)
		idx.add(entry, d.aliases)
	}

	b.logger.Debug("evidence index built",
		zap.Int("entries", len(idx.entries)),
		zap.Int("clusters", len(clusters)))
	return idx
}

func (b *Builder) entry(d *draft, clusters map[string]int, citing map[string][]model.Claim, reliability map[string]float64) model.EvidenceEntry {
	sourceType := d.sourceType
	if sourceType == "" {
		sourceType = b.classifier.SourceType(d.url)
	}
	primary := sourceType == model.SourceTypePrimary

	cluster := ClusterID(d.url)
	base := secondaryIndependence
	if primary {
		base = primaryIndependence
	}
	independence := math.Max(independenceFloor, base-independenceDecay*float64(clusters[cluster]-1))

	directness := secondaryDirectness
	if primary {
		directness = primaryDirectness
	}

	rigor := defaultRigor
	switch {
	case sourceType == model.SourceTypeDataset || sourceType == model.SourceTypeBenchmark || sourceType == model.SourceTypePaper:
		rigor = empiricalRigor
	case primary:
		rigor = primaryRigor
	}

	rel := DefaultReliability
	coi := false
	if d.record != nil {
		if d.record.ReliabilityScore != nil {
			rel = *d.record.ReliabilityScore
		}
		if d.record.DirectnessScore != nil {
			directness = *d.record.DirectnessScore
		}
		if d.record.MethodRigorScore != nil {
			rigor = *d.record.MethodRigorScore
		}
		coi = d.record.ConflictOfInterest
	}
	if v, ok := reliability[d.url]; ok {
		rel = v
	}
	for _, alias := range d.aliases {
		if v, ok := reliability[alias]; ok {
			rel = v
		}
	}

	var claims []model.Claim
	claims = append(claims, citing[d.url]...)
	for _, alias := range d.aliases {
		claims = append(claims, citing[alias]...)
	}

	return model.EvidenceEntry{
		EvidenceID:             EvidenceID(d.url),
		SourceURL:              d.url,
		SourceType:             sourceType,
		SourceClusterID:        cluster,
		IndependenceScore:      round3(independence),
		PrimarySourceFlag:      primary,
		EvidenceScope:          d.scope,
		ScopeOverlapScore:      round3(maxScopeOverlap(d.scope, claims)),
		DirectnessScore:        clamp01(directness),
		MethodRigorScore:       clamp01(rigor),
		ConflictOfInterestFlag: coi,
		ReliabilityScore:       clamp01(rel),
	}
}

// ClusterID is the deterministic 10-hex digest of a source's registrable domain
func ClusterID(rawURL string) string {
	sum := sha256.Sum256([]byte(RegistrableDomain(rawURL)))
	return hex.EncodeToString(sum[:])[:clusterIDLength]
}

// EvidenceID derives a stable id from the source URL
func EvidenceID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "ev_" + hex.EncodeToString(sum[:])[:12]
}

// ScopeOverlap counts scope keys where both sides are set and one contains the
// other (case-insensitive), over the keys where either side is set.
func ScopeOverlap(a, b model.ClaimScope) float64 {
	af, bf := a.Fields(), b.Fields()
	matches, considered := 0, 0
	for i := range af {
		x := strings.ToLower(strings.TrimSpace(af[i]))
		y := strings.ToLower(strings.TrimSpace(bf[i]))
		if x == "" && y == "" {
			continue
		}
		considered++
		if x != "" && y != "" && (x == y || strings.Contains(x, y) || strings.Contains(y, x)) {
			matches++
		}
	}
	if considered == 0 {
		return 0
	}
	return float64(matches) / float64(considered)
}

func maxScopeOverlap(scope model.ClaimScope, claims []model.Claim) float64 {
	best := 0.0
	for _, c := range claims {
		if v := ScopeOverlap(scope, c.Scope); v > best {
			best = v
		}
	}
	return best
}

func citingClaims(claims []model.Claim) map[string][]model.Claim {
	out := make(map[string][]model.Claim)
	for _, c := range claims {
		for _, src := range c.SupportingSourceIDs {
			out[src] = append(out[src], c)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Save replaces the index file with one entry per line
func Save(path string, idx *Index) error {
	return store.WriteJSONL(path, idx.entries)
}

// Load reads a persisted index. Aliases of source ids are not persisted.
func Load(path string) (*Index, error) {
	entries, err := store.ReadJSONLStrict[model.EvidenceEntry](path)
	if err != nil {
		return nil, err
	}
	idx := newIndex()
	for _, e := range entries {
		idx.add(e, nil)
	}
	return idx, nil
}
