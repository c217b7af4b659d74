package synthesis

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/audit"
	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/project"
)

func ledgerClaim(id string, version int, text string) model.Claim {
	return model.Claim{
		ClaimID:          id,
		ClaimVersion:     version,
		Text:             text,
		State:            model.StateDefended,
		ReopenConditions: []string{},
	}
}

func TestParseRefs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single", "x [claim_ref: cl_1@1].", []string{"cl_1@1"}},
		{"semicolon and comma lists", "x [claim_ref: a@1; b@2, c@3]", []string{"a@1", "b@2", "c@3"}},
		{"dedupe across brackets", "[claim_ref: a@1] y [claim_ref:a@1;b@1]", []string{"a@1", "b@1"}},
		{"none", "plain text", nil},
		{"empty bracket", "[claim_ref: ]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRefs(tt.text))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	text := "The effect was significant [claim_ref: cl_1@1]. Another finding shows 50% increase [claim_ref: cl_99@1]."
	got := splitSentences(text)
	require.Len(t, got, 2)
	assert.Equal(t, "The effect was significant [claim_ref: cl_1@1].", got[0])

	got = splitSentences("First point stands. [claim_ref: a@1] Second point follows.\n\nHeading without stop\nNext")
	require.Len(t, got, 3)
	assert.Equal(t, "First point stands. [claim_ref: a@1]", got[0])
	assert.Equal(t, "Second point follows.", got[1])
}

func TestIsClaimSentence(t *testing.T) {
	assert.True(t, IsClaimSentence("Researchers in the survey found that adoption rose sharply across all regions studied."))
	assert.True(t, IsClaimSentence("Median household income grew by 12% over the decade in the sampled counties overall."))
	assert.True(t, IsClaimSentence("The regulation took effect in 2019 and applied to every licensed operator nationwide."))
	assert.False(t, IsClaimSentence("Another finding shows 50% increase."))
	assert.False(t, IsClaimSentence("This section introduces the structure of the report and the way it is organised for readers."))
}

func TestValidate_UnknownRef(t *testing.T) {
	claims := []model.Claim{ledgerClaim("cl_1", 1, "The effect was significant")}
	report := "The effect was significant [claim_ref: cl_1@1]. Another finding shows 50% increase [claim_ref: cl_99@1]."

	st := Validate(report, claims)
	assert.False(t, st.Valid)
	assert.Equal(t, []string{"cl_99@1"}, st.UnknownRefs)
	assert.Empty(t, st.UnreferencedClaimSentences)
	assert.True(t, st.TentativeLabelsOK)
}

func TestValidate_EmptyLedger(t *testing.T) {
	report := "Researchers found that 40% of the respondents changed their behaviour within a single year."
	st := Validate(report, nil)
	assert.True(t, st.Valid)
	assert.Empty(t, st.UnreferencedClaimSentences)

	st = Validate("A short overview.", nil)
	assert.True(t, st.Valid)
}

func TestValidate_EmptyLedgerIgnoresCitedRefs(t *testing.T) {
	st := Validate("Background reading is listed here [claim_ref: cl_1@1].", nil)
	assert.True(t, st.Valid)
	assert.Empty(t, st.UnknownRefs)
	assert.Equal(t, []string{"cl_1@1"}, st.RefsCited)
	assert.Zero(t, st.LedgerSize)

	st = Validate("Researchers found that 40% of the respondents changed their behaviour within a single year [claim_ref: cl_2@3].", []model.Claim{})
	assert.True(t, st.Valid)
}

func TestValidate_UnreferencedSentence(t *testing.T) {
	claims := []model.Claim{ledgerClaim("cl_1", 1, "x")}
	sentence := "Researchers found that 40% of the respondents changed their behaviour within a single year."

	st := Validate(sentence, claims)
	assert.False(t, st.Valid)
	assert.Equal(t, []string{sentence}, st.UnreferencedClaimSentences)

	st = Validate(sentence+" [claim_ref: cl_1@1]", claims)
	assert.True(t, st.Valid)

	st = Validate(sentence+" [claim_ref: cl_2@1]", claims)
	assert.False(t, st.Valid)
	assert.Len(t, st.UnreferencedClaimSentences, 1)
	assert.Equal(t, []string{"cl_2@1"}, st.UnknownRefs)
}

func TestValidate_TentativeLabel(t *testing.T) {
	c := ledgerClaim("cl_1", 1, "Coffee improves memory")
	c.FalsificationStatus = model.PassTentative
	claims := []model.Claim{c}

	st := Validate("Coffee improves memory [claim_ref: cl_1@1].", claims)
	assert.False(t, st.TentativeLabelsOK)
	assert.False(t, st.Valid)
	assert.Equal(t, []string{"cl_1@1"}, st.TentativeClaimsMentioned)

	st = Validate("Tentative: coffee improves memory [claim_ref: cl_1@1].", claims)
	assert.True(t, st.TentativeLabelsOK)
	assert.True(t, st.Valid)
}

func TestValidate_EmptyReportAlwaysValid(t *testing.T) {
	assert.True(t, Validate("", nil).Valid)
	assert.True(t, Validate("", []model.Claim{ledgerClaim("a", 1, "x")}).Valid)
}

func TestVisibleText(t *testing.T) {
	doc := `<html><head><title>t</title><script>var x = "[claim_ref: z@9]";</script></head>
<body><p>The effect was significant [claim_ref: cl_1@1].</p><p>Done</p></body></html>`
	text, err := VisibleText(doc)
	require.NoError(t, err)
	assert.Contains(t, text, "[claim_ref: cl_1@1]")
	assert.NotContains(t, text, "z@9")

	plain := "# Title\n\nNo markup here."
	text, err = VisibleText(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, text)
}

func newEnforcer(t *testing.T, mode model.EnforcementMode, claims ...model.Claim) (*Enforcer, project.Layout) {
	t.Helper()
	layout := project.Layout{Root: t.TempDir()}
	if len(claims) > 0 {
		require.NoError(t, ledger.NewStore(layout.Ledger()).Save(claims))
	}
	log := audit.NewLog(layout.AuditLog(), "run-test", zap.NewNop())
	return NewEnforcer(layout, mode, log, zap.NewNop()), layout
}

func TestEnforcer_ObserveWritesReport(t *testing.T) {
	e, layout := newEnforcer(t, model.ModeObserve, ledgerClaim("cl_1", 1, "x"))

	st, err := e.Apply("Bad ref [claim_ref: cl_9@1].")
	require.NoError(t, err)
	assert.False(t, st.Valid)
	assert.Equal(t, model.ModeObserve, st.Mode)

	data, err := os.ReadFile(layout.Report())
	require.NoError(t, err)
	assert.Equal(t, "Bad ref [claim_ref: cl_9@1].\n", string(data))
	assert.FileExists(t, layout.SynthesisStatus())

	entries, err := audit.Read(layout.AuditLog())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventSynthesisChecked, entries[0].Event)
}

func TestEnforcer_EnforcePreservesReport(t *testing.T) {
	e, layout := newEnforcer(t, model.ModeEnforce, ledgerClaim("cl_1", 1, "x"))
	require.NoError(t, os.MkdirAll(filepath.Dir(layout.Report()), 0755))
	require.NoError(t, os.WriteFile(layout.Report(), []byte("previous\n"), 0644))

	_, err := e.Apply("Bad ref [claim_ref: cl_9@1].")
	var cerr *ContractError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"cl_9@1"}, cerr.Status.UnknownRefs)
	assert.Contains(t, err.Error(), "unknown claim_ref: cl_9@1")

	data, err := os.ReadFile(layout.Report())
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
	assert.FileExists(t, layout.SynthesisStatus())

	st, err := e.Apply("Good ref [claim_ref: cl_1@1].")
	require.NoError(t, err)
	assert.True(t, st.Valid)
	data, err = os.ReadFile(layout.Report())
	require.NoError(t, err)
	assert.Equal(t, "Good ref [claim_ref: cl_1@1].\n", string(data))
}

func TestEnforcer_UnknownModeIsObserve(t *testing.T) {
	e, _ := newEnforcer(t, model.EnforcementMode("loud"))
	assert.Equal(t, model.ModeObserve, e.mode)
}
