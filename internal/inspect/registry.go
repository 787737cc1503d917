// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package inspect is the seam where external inspection modules plug into
// verdict enforcement. Modules see redirect verdicts before the frame is
// injected and may veto the redirect (the frame then passes untouched).
package inspect

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/logging"
)

// Effect is a module's decision about a verdict.
type Effect uint8

const (
	// EffectAccept keeps the classifier's verdict.
	EffectAccept Effect = iota
	// EffectVeto downgrades enforcement to a plain pass.
	EffectVeto
)

// Module is the capability an inspection module exposes.
type Module interface {
	Name() string
	Admit(verdict engine.Verdict) Effect
}

type entry struct {
	id       string
	module   Module
	loadedAt time.Time
	admitted atomic.Uint64
	vetoed   atomic.Uint64
}

// InstanceView describes one loaded module instance.
type InstanceView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LoadedAt time.Time `json:"loaded_at"`
	Admitted uint64    `json:"admitted"`
	Vetoed   uint64    `json:"vetoed"`
}

// Registry holds the loaded modules. Load order is consultation order; the
// first veto wins.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	log     *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{log: logging.WithComponent("inspect")}
}

// Load registers a module and returns its instance id.
func (r *Registry) Load(m Module) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		id:       uuid.NewString(),
		module:   m,
		loadedAt: time.Now(),
	}
	r.entries = append(r.entries, e)
	r.log.Info("module loaded", "name", m.Name(), "id", e.id)
	return e.id
}

// Unload removes a module instance by id.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.log.Info("module unloaded", "name", e.module.Name(), "id", id)
			return nil
		}
	}
	return errors.Errorf(errors.KindNotFound, "module instance %q not found", id)
}

// List returns the loaded instances in load order.
func (r *Registry) List() []InstanceView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]InstanceView, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, InstanceView{
			ID:       e.id,
			Name:     e.module.Name(),
			LoadedAt: e.loadedAt,
			Admitted: e.admitted.Load(),
			Vetoed:   e.vetoed.Load(),
		})
	}
	return out
}

// Observer is the built-in module: it admits every verdict and only
// counts. Useful as a load/unload smoke target and for measuring how much
// traffic an inspection point would see.
type Observer struct {
	name string
}

// NewObserver creates an observer module with the given name.
func NewObserver(name string) *Observer {
	return &Observer{name: name}
}

// Name returns the module name.
func (o *Observer) Name() string { return o.name }

// Admit always accepts.
func (o *Observer) Admit(engine.Verdict) Effect { return EffectAccept }

// Admit consults the loaded modules about a verdict. A veto from any
// module downgrades the verdict to Pass; later modules are not consulted.
// With no modules loaded the verdict is returned unchanged.
func (r *Registry) Admit(verdict engine.Verdict) engine.Verdict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.module.Admit(verdict) == EffectVeto {
			e.vetoed.Add(1)
			return engine.VerdictPass
		}
		e.admitted.Add(1)
	}
	return verdict
}
