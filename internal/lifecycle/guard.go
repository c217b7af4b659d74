// Package lifecycle guards every mutation of the claim ledger.
package lifecycle

import (
	"fmt"

	"github.com/ppiankov/aem/internal/model"
)

// Guard rejection reasons
const (
	ReasonInvalidState            = "invalid_state"
	ReasonRetireReasonRequired    = "retire_reason_required"
	ReasonReopenConditionsList    = "reopen_conditions_must_be_list"
	ReasonNotPermitted            = "transition_not_permitted"
	ReasonUnresolvedContradiction = "unresolved_contradiction"
	ReasonTTLIncrease             = "tentative_ttl_increase"
	ReasonRetiredImmutable        = "retired_claim_immutable"
)

// transitions is the closed adjacency of the claim lifecycle
var transitions = map[model.ClaimState][]model.ClaimState{
	model.StateProposed:  {model.StateEvidenced},
	model.StateEvidenced: {model.StateAttacked},
	model.StateAttacked:  {model.StateDefended, model.StateFalsified},
	model.StateDefended:  {model.StateStable, model.StateAttacked},
	model.StateStable:    {model.StateDecaying, model.StateContested},
	model.StateDecaying:  {model.StateContested, model.StateStable},
	model.StateContested: {model.StateEvidenced, model.StateAttacked, model.StateRetired},
	model.StateFalsified: {model.StateRetired},
	model.StateRetired:   {},
}

// Next returns the states reachable from s
func Next(s model.ClaimState) []model.ClaimState {
	return append([]model.ClaimState(nil), transitions[s]...)
}

// GuardViolation is returned when a transition is rejected.
// The ledger is never modified when it is returned.
type GuardViolation struct {
	ClaimRef string
	From     model.ClaimState
	To       model.ClaimState
	Reason   string
}

func (e *GuardViolation) Error() string {
	if e.To == "" {
		return fmt.Sprintf("guard violation on %s: %s", e.ClaimRef, e.Reason)
	}
	return fmt.Sprintf("guard violation on %s: %s -> %s: %s", e.ClaimRef, e.From, e.To, e.Reason)
}

// CanTransition checks a move of claim from current to next. The claim is the
// post-update candidate, so retire fields and contradictions are checked as
// they would be persisted.
func CanTransition(current, next model.ClaimState, claim *model.Claim) (bool, string) {
	if !current.Valid() || !next.Valid() {
		return false, ReasonInvalidState
	}

	if next == model.StateRetired {
		if claim == nil || !claim.RetireReason.Valid() {
			return false, ReasonRetireReasonRequired
		}
		if claim.ReopenConditions == nil {
			return false, ReasonReopenConditionsList
		}
	}

	permitted := false
	for _, s := range transitions[current] {
		if s == next {
			permitted = true
			break
		}
	}
	if !permitted {
		return false, ReasonNotPermitted
	}

	if next == model.StateStable && claim != nil && claim.HasUnresolvedContradiction() {
		return false, ReasonUnresolvedContradiction
	}

	return true, "ok"
}
