// Package ledger persists the versioned claim journal.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

// Store reads and rewrites claims/ledger.jsonl
type Store struct {
	path string
}

// NewStore creates a ledger store rooted at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the ledger file path
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the ledger file has been written
func (s *Store) Exists() bool {
	return store.Exists(s.path)
}

// Load returns every claim version in persisted order
func (s *Store) Load() ([]model.Claim, error) {
	claims, err := store.ReadJSONLStrict[model.Claim](s.path)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Save rewrites the whole ledger atomically. Claim ids keep their first-seen
// position and versions of one id are written in ascending order.
func (s *Store) Save(claims []model.Claim) error {
	ordered := Order(claims)
	for i := range ordered {
		ordered[i].Normalize()
	}
	return store.WriteJSONL(s.path, ordered)
}

// FindByRef loads the ledger and returns the claim with the given ref
func (s *Store) FindByRef(ref string) (*model.Claim, error) {
	claims, err := s.Load()
	if err != nil {
		return nil, err
	}
	idx := Find(claims, ref)
	if idx < 0 {
		return nil, fmt.Errorf("claim %s: %w", ref, ErrNotFound)
	}
	c := claims[idx].Clone()
	return &c, nil
}

// ErrNotFound is returned when a claim ref does not resolve
var ErrNotFound = errors.New("claim not found")

// Find returns the index of ref in claims, or -1
func Find(claims []model.Claim, ref string) int {
	for i := range claims {
		if claims[i].Ref() == ref {
			return i
		}
	}
	return -1
}

// Order returns a copy sorted by first appearance of claim_id, then version.
// When a ref appears more than once the last occurrence wins.
func Order(claims []model.Claim) []model.Claim {
	firstSeen := make(map[string]int)
	byRef := make(map[string]int)
	out := make([]model.Claim, 0, len(claims))

	for _, c := range claims {
		if _, ok := firstSeen[c.ClaimID]; !ok {
			firstSeen[c.ClaimID] = len(firstSeen)
		}
		if idx, dup := byRef[c.Ref()]; dup {
			out[idx] = c.Clone()
			continue
		}
		byRef[c.Ref()] = len(out)
		out = append(out, c.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := firstSeen[out[i].ClaimID], firstSeen[out[j].ClaimID]
		if pi != pj {
			return pi < pj
		}
		return out[i].ClaimVersion < out[j].ClaimVersion
	})
	return out
}

// Latest returns the highest version of every claim id in first-seen order
func Latest(claims []model.Claim) []model.Claim {
	ordered := Order(claims)
	out := make([]model.Claim, 0, len(ordered))
	for i, c := range ordered {
		if i+1 < len(ordered) && ordered[i+1].ClaimID == c.ClaimID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Refs indexes every claim ref present in claims
func Refs(claims []model.Claim) map[string]bool {
	refs := make(map[string]bool, len(claims))
	for i := range claims {
		refs[claims[i].Ref()] = true
	}
	return refs
}

// CitingSource maps each supporting source id to the refs of the claims citing it
func CitingSource(claims []model.Claim) map[string][]string {
	out := make(map[string][]string)
	for _, c := range claims {
		for _, src := range c.SupportingSourceIDs {
			out[src] = append(out[src], c.Ref())
		}
	}
	return out
}
