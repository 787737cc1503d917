// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package controller implements the single-writer control plane over the
// rule store: admission, deletion, listing, statistics harvesting and the
// expiry sweep. Every mutation serializes through one mutex; the packet
// fast path never takes it.
package controller

import (
	"context"
	"sync"
	"time"

	"grimm.is/wirewall/internal/clock"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/logging"
)

// Default background intervals, overridable via config.
const (
	DefaultHarvestInterval = 5 * time.Second
	DefaultSweepInterval   = 1 * time.Second
)

// Controller is the sole writer of the rule store and redirect table.
type Controller struct {
	mu sync.Mutex

	store     *engine.Store
	redirects *engine.RedirectTable
	cls       *engine.Classifier
	clk       clock.Clock
	log       *logging.Logger

	harvestInterval time.Duration
	sweepInterval   time.Duration

	// harvested is the last harvest's merged view, keyed by label.
	// ListRules serves statistics from here, so readings can trail the
	// fast path by up to one harvest interval.
	harvested map[string]engine.RuleStats

	// pps bookkeeping from consecutive harvests.
	lastTotalPackets uint64
	lastHarvest      time.Time
	currentPPS       float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithIntervals overrides the harvest and sweep cadence.
func WithIntervals(harvest, sweep time.Duration) Option {
	return func(c *Controller) {
		if harvest > 0 {
			c.harvestInterval = harvest
		}
		if sweep > 0 {
			c.sweepInterval = sweep
		}
	}
}

// New creates a controller over the given store and redirect table.
func New(store *engine.Store, redirects *engine.RedirectTable, cls *engine.Classifier, clk clock.Clock, opts ...Option) *Controller {
	c := &Controller{
		store:           store,
		redirects:       redirects,
		cls:             cls,
		clk:             clk,
		log:             logging.WithComponent("controller"),
		harvestInterval: DefaultHarvestInterval,
		sweepInterval:   DefaultSweepInterval,
		harvested:       map[string]engine.RuleStats{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddRule validates spec and admits it into the store. Nothing is mutated
// on a validation failure.
func (c *Controller) AddRule(spec RuleSpec) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := compile(spec, c.redirects)
	if err != nil {
		return 0, err
	}
	r.CreatedAt = c.clk.Now()
	if err := c.store.Insert(r, c.clk.Nanos()); err != nil {
		return 0, err
	}

	c.log.Info("rule added",
		"label", r.Label,
		"action", r.Action.String(),
		"priority", r.Priority,
		"src", r.SrcString())
	return r.ID, nil
}

// DeleteRule removes a rule by label and returns its final merged
// statistics.
func (c *Controller) DeleteRule(label string) (engine.RuleStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.store.Remove(label)
	if !ok {
		return engine.RuleStats{}, errors.Errorf(errors.KindNotFound, "rule %q not found", label)
	}
	delete(c.harvested, label)

	c.log.Info("rule deleted", "label", label)
	return r.State.Merge(), nil
}

// RuleView is the external read model of one admitted rule.
type RuleView struct {
	ID        uint64           `json:"id"`
	Label     string           `json:"label"`
	Priority  uint32           `json:"priority"`
	Action    string           `json:"action"`
	Protocol  string           `json:"protocol"`
	SrcIP     string           `json:"src_ip,omitempty"`
	DstIP     string           `json:"dst_ip,omitempty"`
	SrcPort   [2]uint16        `json:"src_port"`
	DstPort   [2]uint16        `json:"dst_port"`
	PktLen    [2]uint16        `json:"pkt_len"`
	TCPFlags  string           `json:"tcp_flags,omitempty"`
	RateLimit uint32           `json:"rate_limit,omitempty"`
	Expire    uint32           `json:"expire,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Stats     engine.RuleStats `json:"stats,omitzero"`
}

// ListFilter narrows a ListRules call. The zero value lists everything
// without statistics.
type ListFilter struct {
	Label     string
	Action    string
	WithStats bool
}

// ListRules returns a consistent view of the canonical table in admission
// order. Statistics come from the last harvest.
func (c *Controller) ListRules(filter ListFilter) []RuleView {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []RuleView
	for _, r := range c.store.Rules() {
		if filter.Label != "" && r.Label != filter.Label {
			continue
		}
		if filter.Action != "" && r.Action.String() != filter.Action {
			continue
		}
		view := RuleView{
			ID:        r.ID,
			Label:     r.Label,
			Priority:  r.Priority,
			Action:    r.Action.String(),
			Protocol:  r.Proto.String(),
			SrcIP:     r.SrcString(),
			DstIP:     r.DstString(),
			SrcPort:   [2]uint16{r.SrcPortMin, r.SrcPortMax},
			DstPort:   [2]uint16{r.DstPortMin, r.DstPortMax},
			PktLen:    [2]uint16{r.LenMin, r.LenMax},
			TCPFlags:  engine.FormatTCPFlags(r.TCPFlags),
			RateLimit: r.RateLimit,
			Expire:    r.Expire,
			CreatedAt: r.CreatedAt,
		}
		if filter.WithStats {
			view.Stats = c.harvested[r.Label]
		}
		out = append(out, view)
	}
	return out
}

// Summary is the aggregate telemetry view.
type Summary struct {
	Rules           uint64                  `json:"rules"`
	TotalPackets    uint64                  `json:"total_packets"`
	TotalBytes      uint64                  `json:"total_bytes"`
	PacketsPerSec   float64                 `json:"packets_per_sec"`
	Faults          engine.FaultStats       `json:"faults"`
	RedirectTargets []engine.RedirectTarget `json:"redirect_targets,omitempty"`
}

// Stats returns the aggregate counters. Totals are read live; pps comes
// from the last two harvests.
func (c *Controller) Stats() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	packets, bytes := c.cls.Totals()
	return Summary{
		Rules:           uint64(c.store.Len()),
		TotalPackets:    packets,
		TotalBytes:      bytes,
		PacketsPerSec:   c.currentPPS,
		Faults:          c.cls.Faults(),
		RedirectTargets: c.redirects.List(),
	}
}

// Harvest merges every rule's per-worker slots into the cached view and
// recomputes the packet rate.
func (c *Controller) Harvest() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.store.Rules() {
		c.harvested[r.Label] = r.State.Merge()
	}

	packets, _ := c.cls.Totals()
	now := c.clk.Now()
	if !c.lastHarvest.IsZero() {
		if dt := now.Sub(c.lastHarvest).Seconds(); dt > 0 {
			c.currentPPS = float64(packets-c.lastTotalPackets) / dt
		}
	}
	c.lastTotalPackets = packets
	c.lastHarvest = now
}

// ExpirySweep removes every rule whose TTL has elapsed and returns how
// many were dropped.
func (c *Controller) ExpirySweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := c.store.SweepExpired(c.clk.Nanos())
	for _, r := range expired {
		delete(c.harvested, r.Label)
		c.log.Info("rule expired", "label", r.Label, "ttl_seconds", r.Expire)
	}
	return len(expired)
}

// Run drives the periodic harvest and sweep until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	harvest := time.NewTicker(c.harvestInterval)
	defer harvest.Stop()
	sweep := time.NewTicker(c.sweepInterval)
	defer sweep.Stop()

	c.log.Debug("controller loop started",
		"harvest_interval", c.harvestInterval,
		"sweep_interval", c.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-harvest.C:
			c.Harvest()
		case <-sweep.C:
			c.ExpirySweep()
		}
	}
}
