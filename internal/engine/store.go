// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"sync/atomic"

	"grimm.is/wirewall/internal/errors"
)

// Store owns the canonical rule table. All mutations must come from a
// single goroutine (the controller serializes them); readers take the
// published snapshot through Snapshot and never touch the canonical list.
//
// Every mutation recompiles the snapshot and publishes it with one atomic
// swap. Rebuilds are O(table size), which is fine at the 10240-rule cap
// and keeps the read side completely lock free.
type Store struct {
	workers  int
	maxRules int

	rules   []*Rule
	byLabel map[string]*Rule
	nextID  uint64
	nextSeq uint64

	snap atomic.Pointer[Snapshot]
}

// NewStore creates an empty store sized for the given worker count.
func NewStore(workers, maxRules int) *Store {
	if maxRules <= 0 || maxRules > MaxRules {
		maxRules = MaxRules
	}
	s := &Store{
		workers:  workers,
		maxRules: maxRules,
		byLabel:  map[string]*Rule{},
	}
	s.snap.Store(compileSnapshot(nil))
	return s
}

// Workers returns the worker count the store was sized for.
func (s *Store) Workers() int {
	return s.workers
}

// Len returns the number of rules in the canonical table.
func (s *Store) Len() int {
	return len(s.rules)
}

// Snapshot returns the current published snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Lookup finds a canonical rule by label.
func (s *Store) Lookup(label string) (*Rule, bool) {
	r, ok := s.byLabel[label]
	return r, ok
}

// Rules returns the canonical rules in admission order.
func (s *Store) Rules() []*Rule {
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Insert admits a rule, assigns its id and admission sequence, allocates
// its runtime state, and republishes. The rule's match criteria must
// already be validated; Insert enforces only capacity and label uniqueness.
func (s *Store) Insert(r *Rule, nowNanos int64) error {
	if len(s.rules) >= s.maxRules {
		return errors.Errorf(errors.KindValidation, "rule table full (%d rules)", s.maxRules)
	}
	if _, ok := s.byLabel[r.Label]; ok {
		return errors.Errorf(errors.KindConflict, "rule %q already exists", r.Label)
	}

	s.nextID++
	s.nextSeq++
	r.ID = s.nextID
	r.seq = s.nextSeq
	r.SetDeadline(nowNanos)
	r.State = NewRuleState(s.workers, float64(r.RateLimit))

	s.rules = append(s.rules, r)
	s.byLabel[r.Label] = r
	s.publish()
	return nil
}

// Remove deletes a rule by label and republishes. Returns the removed rule
// so the caller can report its final statistics.
func (s *Store) Remove(label string) (*Rule, bool) {
	r, ok := s.byLabel[label]
	if !ok {
		return nil, false
	}
	delete(s.byLabel, label)
	for i, cur := range s.rules {
		if cur == r {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			break
		}
	}
	s.publish()
	return r, true
}

// SweepExpired removes every rule whose TTL has elapsed at nowNanos and
// returns them. Republishes at most once.
func (s *Store) SweepExpired(nowNanos int64) []*Rule {
	var expired []*Rule
	kept := s.rules[:0]
	for _, r := range s.rules {
		if r.ExpiredAt(nowNanos) {
			expired = append(expired, r)
			delete(s.byLabel, r.Label)
			continue
		}
		kept = append(kept, r)
	}
	if len(expired) == 0 {
		return nil
	}
	for i := len(kept); i < len(s.rules); i++ {
		s.rules[i] = nil
	}
	s.rules = kept
	s.publish()
	return expired
}

func (s *Store) publish() {
	s.snap.Store(compileSnapshot(s.rules))
}
