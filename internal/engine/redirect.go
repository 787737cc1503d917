// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"sync"
	"sync/atomic"

	"grimm.is/wirewall/internal/errors"
)

// RedirectTarget maps a logical target id to a resolved egress interface.
// Targets are created on interface attach and destroyed on detach; rules
// referencing a destroyed target stay in the table and fail open at match
// time.
type RedirectTarget struct {
	ID      uint32 `json:"id"`
	IfIndex int32  `json:"ifindex"`
	Name    string `json:"name"`
}

type redirectView struct {
	byID   map[uint32]RedirectTarget
	byName map[string]RedirectTarget
}

// RedirectTable is the target registry. Mutations go through the control
// plane writer; the classifier resolves against an immutable view swapped
// atomically, so lookups never lock or observe a partial update.
type RedirectTable struct {
	mu   sync.Mutex
	view atomic.Pointer[redirectView]
}

// NewRedirectTable creates an empty table.
func NewRedirectTable() *RedirectTable {
	t := &RedirectTable{}
	t.view.Store(&redirectView{
		byID:   map[uint32]RedirectTarget{},
		byName: map[string]RedirectTarget{},
	})
	return t
}

// Add registers a target. Fails when the table is full or the id is taken.
func (t *RedirectTable) Add(target RedirectTarget) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.view.Load()
	if len(cur.byID) >= MaxRedirectTargets {
		return errors.Errorf(errors.KindValidation, "redirect table full (%d targets)", MaxRedirectTargets)
	}
	if _, ok := cur.byID[target.ID]; ok {
		return errors.Errorf(errors.KindConflict, "redirect target %d already registered", target.ID)
	}

	t.view.Store(cur.with(target))
	return nil
}

// Remove deletes a target by id. Rules referencing it are untouched.
func (t *RedirectTable) Remove(id uint32) (RedirectTarget, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.view.Load()
	target, ok := cur.byID[id]
	if !ok {
		return RedirectTarget{}, false
	}
	t.view.Store(cur.without(id))
	return target, true
}

// Resolve looks up a target by id. Fast-path safe: one atomic load and one
// map read, no allocation.
func (t *RedirectTable) Resolve(id uint32) (RedirectTarget, bool) {
	target, ok := t.view.Load().byID[id]
	return target, ok
}

// ResolveName looks up a target by interface name (control plane use).
func (t *RedirectTable) ResolveName(name string) (RedirectTarget, bool) {
	target, ok := t.view.Load().byName[name]
	return target, ok
}

// List returns all registered targets.
func (t *RedirectTable) List() []RedirectTarget {
	cur := t.view.Load()
	out := make([]RedirectTarget, 0, len(cur.byID))
	for _, target := range cur.byID {
		out = append(out, target)
	}
	return out
}

func (v *redirectView) with(target RedirectTarget) *redirectView {
	next := v.clone()
	next.byID[target.ID] = target
	next.byName[target.Name] = target
	return next
}

func (v *redirectView) without(id uint32) *redirectView {
	next := v.clone()
	if target, ok := next.byID[id]; ok {
		delete(next.byName, target.Name)
		delete(next.byID, id)
	}
	return next
}

func (v *redirectView) clone() *redirectView {
	next := &redirectView{
		byID:   make(map[uint32]RedirectTarget, len(v.byID)),
		byName: make(map[string]RedirectTarget, len(v.byName)),
	}
	for k, t := range v.byID {
		next.byID[k] = t
	}
	for k, t := range v.byName {
		next.byName[k] = t
	}
	return next
}
