// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"sync/atomic"
	"time"
)

// StatSlot is one worker's share of a rule's counters. Each worker writes
// only its own slot; the harvester reads all slots without coordination, so
// a read may trail in-flight increments by one harvest interval.
// Padded so adjacent slots never share a cache line.
type StatSlot struct {
	Packets     atomic.Uint64
	Bytes       atomic.Uint64
	LastMatched atomic.Int64 // wall clock, unix nanoseconds
	_           [5]uint64
}

// bucketSlot is one worker's token bucket. Only the owning worker touches
// it, so the fields need no atomics.
type bucketSlot struct {
	tokens     float64
	lastRefill int64 // monotonic nanoseconds
	_          [6]uint64
}

// RuleState is the mutable runtime state of one rule, shared between the
// canonical rule and every published snapshot so counters survive republish.
type RuleState struct {
	stats   []StatSlot
	buckets []bucketSlot
}

// NewRuleState allocates state for the given worker count with all buckets
// full at capacity tokens.
func NewRuleState(workers int, capacity float64) *RuleState {
	st := &RuleState{
		stats:   make([]StatSlot, workers),
		buckets: make([]bucketSlot, workers),
	}
	for i := range st.buckets {
		st.buckets[i].tokens = capacity
	}
	return st
}

// Workers returns the number of per-worker slots.
func (s *RuleState) Workers() int {
	return len(s.stats)
}

// Record updates the worker's statistics slot for one matched packet.
func (s *RuleState) Record(worker int, bytes uint64, wallNanos int64) {
	slot := &s.stats[worker]
	slot.Packets.Add(1)
	slot.Bytes.Add(bytes)
	slot.LastMatched.Store(wallNanos)
}

// TakeToken refills the worker's bucket proportionally to the time elapsed
// since its last refill (capped at capacity) and consumes one token if
// available. rate is both the refill rate per second and the capacity.
//
// Buckets are per worker with no cross-worker synchronization, so the
// aggregate admitted rate can exceed the configured limit by up to
// (workers-1) x burst in the worst case.
func (s *RuleState) TakeToken(worker int, rate uint32, nowNanos int64) bool {
	b := &s.buckets[worker]
	capacity := float64(rate)

	elapsed := nowNanos - b.lastRefill
	if elapsed > 0 {
		b.tokens += float64(elapsed) / float64(time.Second) * capacity
		if b.tokens > capacity {
			b.tokens = capacity
		}
	}
	b.lastRefill = nowNanos

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RuleStats is a merged statistics snapshot.
type RuleStats struct {
	Packets     uint64    `json:"packets"`
	Bytes       uint64    `json:"bytes"`
	LastMatched time.Time `json:"last_matched,omitzero"`
}

// Merge sums the per-worker counters and takes the most recent match
// timestamp. Safe to call while workers keep counting; the result may
// undercount packets still in flight.
func (s *RuleState) Merge() RuleStats {
	var out RuleStats
	var last int64
	for i := range s.stats {
		slot := &s.stats[i]
		out.Packets += slot.Packets.Load()
		out.Bytes += slot.Bytes.Load()
		if t := slot.LastMatched.Load(); t > last {
			last = t
		}
	}
	if last > 0 {
		out.LastMatched = time.Unix(0, last)
	}
	return out
}

// FaultSlot carries one worker's fast-path fault counters.
// Padded like StatSlot.
type FaultSlot struct {
	Malformed          atomic.Uint64
	UnresolvedRedirect atomic.Uint64
	_                  [6]uint64
}

// FaultStats is a merged view of the fault counters.
type FaultStats struct {
	Malformed          uint64 `json:"malformed"`
	UnresolvedRedirect uint64 `json:"unresolved_redirect"`
}

// TotalSlot carries one worker's aggregate packet/byte counters.
type TotalSlot struct {
	Packets atomic.Uint64
	Bytes   atomic.Uint64
	_       [6]uint64
}
