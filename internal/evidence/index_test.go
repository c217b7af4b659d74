package evidence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/aem/internal/model"
)

func f64(v float64) *float64 { return &v }

func TestBuild_IndependenceDecaysWithinCluster(t *testing.T) {
	in := Input{Findings: []model.Finding{
		{Text: "a", SourceURL: "https://same-domain.com/a"},
		{Text: "b", SourceURL: "https://same-domain.com/b"},
		{Text: "c", SourceURL: "https://www.same-domain.com/c"},
	}}

	idx := NewBuilder(nil, nil).Build(in)
	entries := idx.Entries()
	require.Len(t, entries, 3)

	cluster := entries[0].SourceClusterID
	assert.Len(t, cluster, 10)
	for _, e := range entries {
		assert.Equal(t, cluster, e.SourceClusterID)
		assert.LessOrEqual(t, e.IndependenceScore, 0.7)
		assert.InDelta(t, 0.3, e.IndependenceScore, 1e-9)
		assert.False(t, e.PrimarySourceFlag)
	}
}

func TestBuild_IndependenceFloor(t *testing.T) {
	var findings []model.Finding
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		findings = append(findings, model.Finding{SourceURL: "https://who.int/" + p, SourceType: "primary"})
	}
	idx := NewBuilder(nil, nil).Build(Input{Findings: findings})
	for _, e := range idx.Entries() {
		assert.InDelta(t, 0.2, e.IndependenceScore, 1e-9)
	}
}

func TestBuild_FeaturesAndOverrides(t *testing.T) {
	in := Input{
		Findings: []model.Finding{
			{SourceURL: "https://data.example.org/cpi", SourceType: "dataset", Scope: model.ClaimScope{Geography: "US", Timeframe: "2020-2023"}},
			{SourceURL: "https://pubmed.ncbi.nlm.nih.gov/1"},
		},
		Sources: []model.SourceRecord{
			{SourceID: "src_blog", URL: "https://vendor.example.net/post", ReliabilityScore: f64(0.3), ConflictOfInterest: true},
		},
		Claims: []model.Claim{
			{ClaimID: "cl_1", ClaimVersion: 1, SupportingSourceIDs: []string{"https://data.example.org/cpi", "src_blog", "raw-id-42"},
				Scope: model.ClaimScope{Geography: "united states, US", Timeframe: "2021"}},
		},
		Reliability: map[string]float64{"https://pubmed.ncbi.nlm.nih.gov/1": 0.95},
	}

	idx := NewBuilder(nil, nil).Build(in)
	require.Equal(t, 4, idx.Len())

	dataset, ok := idx.Lookup("https://data.example.org/cpi")
	require.True(t, ok)
	assert.Equal(t, "dataset", dataset.SourceType)
	assert.InDelta(t, 0.7, dataset.MethodRigorScore, 1e-9)
	assert.InDelta(t, 0.4, dataset.DirectnessScore, 1e-9)
	assert.InDelta(t, 0.5, dataset.IndependenceScore, 1e-9)
	assert.InDelta(t, 0.5, dataset.ScopeOverlapScore, 1e-9, "geography matches by substring, timeframe differs")

	pubmed, ok := idx.Lookup("https://pubmed.ncbi.nlm.nih.gov/1")
	require.True(t, ok)
	assert.Equal(t, "primary", pubmed.SourceType, "classifier fills undeclared type")
	assert.True(t, pubmed.PrimarySourceFlag)
	assert.InDelta(t, 0.7, pubmed.IndependenceScore, 1e-9)
	assert.InDelta(t, 0.6, pubmed.MethodRigorScore, 1e-9)
	assert.InDelta(t, 0.95, pubmed.ReliabilityScore, 1e-9)

	blog, ok := idx.Lookup("src_blog")
	require.True(t, ok, "source ids resolve to their record's entry")
	assert.Equal(t, "https://vendor.example.net/post", blog.SourceURL)
	assert.True(t, blog.ConflictOfInterestFlag)
	assert.InDelta(t, 0.3, blog.ReliabilityScore, 1e-9)

	raw, ok := idx.Lookup("raw-id-42")
	require.True(t, ok, "ledger-only sources are indexed")
	assert.InDelta(t, DefaultReliability, raw.ReliabilityScore, 1e-9)

	claim := in.Claims[0]
	assert.Len(t, idx.ForClaim(&claim), 3)
	assert.Equal(t, []string{"dataset", "secondary"}, idx.EvidenceTypes(&claim))
}

func TestScopeOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b model.ClaimScope
		want float64
	}{
		{"both empty", model.ClaimScope{}, model.ClaimScope{}, 0},
		{"exact", model.ClaimScope{Domain: "Health"}, model.ClaimScope{Domain: "health"}, 1},
		{"substring", model.ClaimScope{Population: "adults"}, model.ClaimScope{Population: "adults over 65"}, 1},
		{"one side only", model.ClaimScope{Population: "adults"}, model.ClaimScope{Domain: "health"}, 0},
		{"half", model.ClaimScope{Geography: "EU", Timeframe: "2019"}, model.ClaimScope{Geography: "eu", Timeframe: "2022"}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScopeOverlap(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence", "evidence_index.jsonl")
	idx := NewBuilder(nil, nil).Build(Input{Findings: []model.Finding{{SourceURL: "https://a.org/1"}}})
	require.NoError(t, Save(path, idx))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Entries(), loaded.Entries())
}

func TestClusterIDDeterministic(t *testing.T) {
	assert.Equal(t, ClusterID("https://a.example.com/x"), ClusterID("http://b.example.com/y"))
	assert.NotEqual(t, ClusterID("https://example.com"), ClusterID("https://example.org"))
}
