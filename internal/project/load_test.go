package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	l := Resolve("/srv/projects", dir)
	assert.Equal(t, filepath.Clean(dir), l.Root, "existing directory is used directly")

	l = Resolve("/srv/projects", "p-42")
	assert.Equal(t, filepath.Join("/srv/projects", "p-42"), l.Root)
	assert.Equal(t, "p-42", l.ID())
	assert.Equal(t, filepath.Join("/srv/projects", "p-42", "claims", "ledger.jsonl"), l.Ledger())
}

func TestLoadProject(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	p, err := LoadProject(l)
	require.NoError(t, err)
	assert.Equal(t, l.ID(), p.ProjectID, "missing project.json falls back to root name")

	writeFile(t, l.ProjectFile(), `{"project_id":"p1","question":"Does X cause Y?","config":{"question_type":"structural","budget_limit":5000}}`)
	p, err = LoadProject(l)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ProjectID)
	assert.Equal(t, "structural", p.Config.QuestionType)
	assert.Equal(t, 5000.0, p.Config.BudgetLimit)
}

func TestLoadVerifyLedger_Wrapped(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	writeFile(t, l.VerifyLedger(), `{"claims":[
		{"claim_id":"cl_1","text":"A","supporting_source_ids":["https://a.org/1","https://a.org/1"],"is_verified":true,"verification_tier":"VERIFIED","confidence":0.85},
		{"id":"cl_2","claim":"B","sources":"https://b.org","verified":false,"status":"partial"}
	]}`)

	claims, err := LoadVerifyLedger(l)
	require.NoError(t, err)
	require.Len(t, claims, 2)

	assert.Equal(t, "cl_1", claims[0].ClaimID)
	assert.Equal(t, []string{"https://a.org/1"}, claims[0].SupportingSourceIDs)
	assert.True(t, claims[0].IsVerified)
	assert.Equal(t, model.TierVerified, claims[0].VerificationTier)
	require.NotNil(t, claims[0].Confidence)
	assert.InDelta(t, 0.85, *claims[0].Confidence, 1e-9)

	assert.Equal(t, "cl_2", claims[1].ClaimID)
	assert.Equal(t, "B", claims[1].Text)
	assert.Equal(t, []string{"https://b.org"}, claims[1].SupportingSourceIDs)
	assert.Equal(t, model.TierTentative, claims[1].VerificationTier)
	assert.Nil(t, claims[1].Confidence)
}

func TestLoadVerifyLedger_BareArrayAndMissing(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	claims, err := LoadVerifyLedger(l)
	require.NoError(t, err)
	assert.Empty(t, claims)

	writeFile(t, l.VerifyLedger(), `[{"text":"no id","source_urls":["u1"]}]`)
	claims, err = LoadVerifyLedger(l)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "", claims[0].ClaimID)
	assert.Equal(t, model.TierUnverified, claims[0].VerificationTier)
}

func TestLoadVerifyLedger_Malformed(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	writeFile(t, l.VerifyLedger(), `{"claims": [`)

	_, err := LoadVerifyLedger(l)
	require.Error(t, err)
}

func TestLoadFindingsAndSources(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	writeFile(t, filepath.Join(l.FindingsDir(), "f_002.json"), `{"text":"second","source_url":"https://b.org"}`)
	writeFile(t, filepath.Join(l.FindingsDir(), "f_001.json"), `{"finding_id":"x","text":"first","source_url":"https://a.org"}`)
	writeFile(t, filepath.Join(l.FindingsDir(), "broken.json"), `{`)
	writeFile(t, filepath.Join(l.SourcesDir(), "s1.json"), `{"url":"https://a.org","source_type":"primary"}`)
	writeFile(t, l.SourceContent("s1"), `{"url":"https://a.org","content":"body"}`)

	findings, err := LoadFindings(l, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "x", findings[0].FindingID)
	assert.Equal(t, "f_002", findings[1].FindingID)

	sources, err := LoadSources(l, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "s1", sources[0].SourceID)
	assert.Equal(t, "primary", sources[0].SourceType)

	content, err := LoadSourceContent(l, "s1")
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "body", content.Content)

	content, err = LoadSourceContent(l, "missing")
	require.NoError(t, err)
	assert.Nil(t, content)
}

func TestLoadReliability(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	scores, err := LoadReliability(l)
	require.NoError(t, err)
	assert.Empty(t, scores)

	writeFile(t, l.SourceReliability(), `{"https://a.org":0.9}`)
	scores, err = LoadReliability(l)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, scores["https://a.org"], 1e-9)
}
