// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"grimm.is/wirewall/internal/clock"
)

// Result is the classifier's decision for one frame.
type Result struct {
	Verdict         Verdict
	RuleID          uint64
	RedirectIfIndex int32
	Matched         bool
	RateLimited     bool
}

// Classifier is the per-packet fast path. Classify takes the published
// snapshot, walks the trie, applies rate limiting and redirect resolution,
// and updates the calling worker's counter slots. It holds no locks,
// allocates nothing per packet, and every loop it runs is bounded by the
// table size.
type Classifier struct {
	store     *Store
	redirects *RedirectTable
	clk       clock.Clock

	faults []FaultSlot
	totals []TotalSlot
}

// NewClassifier builds a classifier over the store's snapshot stream.
func NewClassifier(store *Store, redirects *RedirectTable, clk clock.Clock) *Classifier {
	return &Classifier{
		store:     store,
		redirects: redirects,
		clk:       clk,
		faults:    make([]FaultSlot, store.Workers()),
		totals:    make([]TotalSlot, store.Workers()),
	}
}

// Workers returns the number of per-worker slots the classifier was sized
// for. Each concurrent caller must own a distinct worker index.
func (c *Classifier) Workers() int {
	return c.store.Workers()
}

// Classify decides the verdict for one Ethernet frame on behalf of worker.
// Malformed frames and frames referencing an unregistered redirect target
// fail open: the packet passes and the worker's fault counter records it.
func (c *Classifier) Classify(worker int, frame []byte) Result {
	t := &c.totals[worker]
	t.Packets.Add(1)
	t.Bytes.Add(uint64(len(frame)))

	var key MatchKey
	switch ParseFrame(frame, &key) {
	case ParseNotIPv4:
		return Result{Verdict: VerdictPass}
	case ParseMalformed:
		c.faults[worker].Malformed.Add(1)
		return Result{Verdict: VerdictPass}
	}
	return c.decide(worker, &key, uint64(len(frame)))
}

// ClassifyKey runs the match pipeline on an already-extracted key. The
// frame length used for byte accounting is key.Length.
func (c *Classifier) ClassifyKey(worker int, key *MatchKey) Result {
	t := &c.totals[worker]
	t.Packets.Add(1)
	t.Bytes.Add(uint64(key.Length))
	return c.decide(worker, key, uint64(key.Length))
}

func (c *Classifier) decide(worker int, key *MatchKey, bytes uint64) Result {
	snap := c.store.Snapshot()
	mono := c.clk.Nanos()

	idx, ok := snap.lookup(key, mono)
	if !ok {
		return Result{Verdict: VerdictPass}
	}
	r := snap.Rule(idx)

	// A rate-limited match is still a match: the rule's counters advance
	// even though the configured action is suppressed.
	limited := r.RateLimit > 0 && !r.State.TakeToken(worker, r.RateLimit, mono)
	r.State.Record(worker, bytes, c.clk.Now().UnixNano())

	res := Result{RuleID: r.ID, Matched: true, RateLimited: limited}
	if limited {
		res.Verdict = VerdictPass
		return res
	}

	switch r.Action {
	case ActionDrop:
		res.Verdict = VerdictDrop
	case ActionCount:
		res.Verdict = VerdictCount
	case ActionRedirect:
		target, ok := c.redirects.Resolve(r.RedirectTarget)
		if !ok {
			c.faults[worker].UnresolvedRedirect.Add(1)
			res.Verdict = VerdictPass
			break
		}
		res.Verdict = VerdictRedirect
		res.RedirectIfIndex = target.IfIndex
	default:
		res.Verdict = VerdictPass
	}
	return res
}

// Faults merges the per-worker fault counters.
func (c *Classifier) Faults() FaultStats {
	var out FaultStats
	for i := range c.faults {
		out.Malformed += c.faults[i].Malformed.Load()
		out.UnresolvedRedirect += c.faults[i].UnresolvedRedirect.Load()
	}
	return out
}

// Totals merges the per-worker aggregate packet/byte counters.
func (c *Classifier) Totals() (packets, bytes uint64) {
	for i := range c.totals {
		packets += c.totals[i].Packets.Load()
		bytes += c.totals[i].Bytes.Load()
	}
	return packets, bytes
}
