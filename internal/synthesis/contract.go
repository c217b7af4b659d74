// Package synthesis binds report prose to the claim ledger.
package synthesis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/aem/internal/ledger"
	"github.com/ppiankov/aem/internal/model"
)

// MinClaimTokens is the shortest sentence treated as claim-bearing
const MinClaimTokens = 10

var (
	refBlock   = regexp.MustCompile(`\[\s*claim_ref\s*:\s*([^\]]*)\]`)
	percentRe  = regexp.MustCompile(`\d+(?:\.\d+)?\s?%|\bper ?cent\b`)
	yearRe     = regexp.MustCompile(`\b(?:1[89]|20)\d{2}\b`)
	numberRe   = regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`)
	factPhrase = []string{
		"found that", "finds that", "data indicate", "data indicates", "data show",
		"data shows", "according to", "reported that", "estimated", "measured",
		"increased", "decreased", "evidence suggests", "study shows", "studies show",
	}
	tentativeMarkers = []string{"tentative", "provisional", "preliminary"}
)

// Status is the persisted synthesis_contract_status.json document
type Status struct {
	Valid                      bool                  `json:"valid"`
	Mode                       model.EnforcementMode `json:"mode,omitempty"`
	UnknownRefs                []string              `json:"unknown_refs"`
	UnreferencedClaimSentences []string              `json:"unreferenced_claim_sentences"`
	TentativeLabelsOK          bool                  `json:"tentative_labels_ok"`
	TentativeClaimsMentioned   []string              `json:"tentative_claims_mentioned,omitempty"`
	RefsCited                  []string              `json:"refs_cited"`
	LedgerSize                 int                   `json:"ledger_size"`
	CheckedAt                  time.Time             `json:"checked_at"`
}

// Violations renders every failed check as one line
func (s Status) Violations() []string {
	var out []string
	for _, ref := range s.UnknownRefs {
		out = append(out, "unknown claim_ref: "+ref)
	}
	for _, sent := range s.UnreferencedClaimSentences {
		out = append(out, "unreferenced claim sentence: "+sent)
	}
	if !s.TentativeLabelsOK {
		out = append(out, "tentative claims cited without a tentative label: "+strings.Join(s.TentativeClaimsMentioned, ", "))
	}
	return out
}

// ContractError is returned in enforce and strict modes when a report
// violates the contract
type ContractError struct {
	Status Status
}

func (e *ContractError) Error() string {
	v := e.Status.Violations()
	if len(v) == 0 {
		return "synthesis contract violated"
	}
	return fmt.Sprintf("synthesis contract violated: %s (%d violations)", v[0], len(v))
}

// ParseRefs returns every claim ref cited in text, in order of first appearance
func ParseRefs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range refBlock.FindAllStringSubmatch(text, -1) {
		for _, ref := range splitRefList(m[1]) {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}

func splitRefList(list string) []string {
	parts := strings.FieldsFunc(list, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsClaimSentence applies the claim-shape heuristic to a sentence with its
// citations removed
func IsClaimSentence(sentence string) bool {
	bare := refBlock.ReplaceAllString(sentence, " ")
	if len(strings.Fields(bare)) < MinClaimTokens {
		return false
	}
	lower := strings.ToLower(bare)
	if percentRe.MatchString(lower) || yearRe.MatchString(lower) {
		return true
	}
	for _, p := range factPhrase {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return len(numberRe.FindAllString(lower, -1)) >= 2
}

// Validate checks a report against the ledger. The report must already be
// visible text.
func Validate(report string, claims []model.Claim) Status {
	known := ledger.Refs(claims)
	st := Status{
		Valid:                      true,
		UnknownRefs:                []string{},
		UnreferencedClaimSentences: []string{},
		TentativeLabelsOK:          true,
		RefsCited:                  ParseRefs(report),
		LedgerSize:                 len(claims),
	}
	// nothing to check a report against before the first settlement
	if len(claims) == 0 {
		return st
	}

	for _, ref := range st.RefsCited {
		if !known[ref] {
			st.UnknownRefs = append(st.UnknownRefs, ref)
		}
	}

	for _, sentence := range splitSentences(report) {
		if !IsClaimSentence(sentence) {
			continue
		}
		if !hasKnownRef(sentence, known) {
			st.UnreferencedClaimSentences = append(st.UnreferencedClaimSentences, sentence)
		}
	}

	st.TentativeClaimsMentioned = tentativeMentions(report, claims, st.RefsCited)
	if len(st.TentativeClaimsMentioned) > 0 && !hasTentativeMarker(report) {
		st.TentativeLabelsOK = false
	}

	st.Valid = len(st.UnknownRefs) == 0 && len(st.UnreferencedClaimSentences) == 0 && st.TentativeLabelsOK
	return st
}

func hasKnownRef(sentence string, known map[string]bool) bool {
	for _, ref := range ParseRefs(sentence) {
		if known[ref] {
			return true
		}
	}
	return false
}

// tentativeMentions lists the latest tentative claims whose text appears in the
// report or whose ref is cited
func tentativeMentions(report string, claims []model.Claim, cited []string) []string {
	citedSet := make(map[string]bool, len(cited))
	for _, ref := range cited {
		citedSet[ref] = true
	}
	norm := normalize(report)

	var out []string
	for _, c := range ledger.Latest(claims) {
		if c.FalsificationStatus != model.PassTentative {
			continue
		}
		text := normalize(c.Text)
		if citedSet[c.Ref()] || (text != "" && strings.Contains(norm, text)) {
			out = append(out, c.Ref())
		}
	}
	return out
}

func hasTentativeMarker(report string) bool {
	lower := strings.ToLower(report)
	for _, m := range tentativeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
