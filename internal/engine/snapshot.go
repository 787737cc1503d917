// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import "sort"

// Snapshot is an immutable, fully linked view of the rule table. The store
// builds a fresh snapshot on every mutation and publishes it with one
// atomic pointer swap, so a reader sees either the old or the new table,
// never an intermediate state.
//
// Rules live in a flat arena addressed by index; trie buckets store arena
// indexes, not pointers.
type Snapshot struct {
	rules   []Rule
	nodes   []snapNode
	buckets []int32
}

// snapNode is one binary-trie node over the source address bits. Node 0 is
// the root (prefix length 0). A node's bucket holds the rules whose source
// prefix ends exactly at this node, ordered by priority then admission.
type snapNode struct {
	child     [2]int32
	bucketOff int32
	bucketLen int32
}

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.rules)
}

// Rule returns the arena entry at idx.
func (s *Snapshot) Rule(idx int32) *Rule {
	return &s.rules[idx]
}

// lookup walks the source-address trie and returns the arena index of the
// winning rule. Candidates are ranked by priority (desc), then prefix
// specificity (desc), then admission order (asc). The walk visits at most
// 33 nodes and each bucket is scanned until its first surviving candidate,
// so the cost is bounded by the table size; nothing allocates.
func (s *Snapshot) lookup(k *MatchKey, nowNanos int64) (int32, bool) {
	best := int32(-1)
	var bestPrio uint32

	node := int32(0)
	for depth := 0; ; depth++ {
		n := &s.nodes[node]
		for i := int32(0); i < n.bucketLen; i++ {
			idx := s.buckets[n.bucketOff+i]
			r := &s.rules[idx]
			if r.ExpiredAt(nowNanos) || !r.matches(k) {
				continue
			}
			// Buckets are ordered best-first, so the first survivor wins
			// the bucket. A deeper bucket displaces the running best on
			// a priority tie (more specific prefix).
			if best < 0 || r.Priority >= bestPrio {
				best = idx
				bestPrio = r.Priority
			}
			break
		}

		if depth == 32 {
			break
		}
		bit := (k.SrcIP >> (31 - uint32(depth))) & 1
		next := n.child[bit]
		if next < 0 {
			break
		}
		node = next
	}

	if best < 0 {
		return 0, false
	}
	return best, true
}

// buildNode is the mutable trie node used during compilation.
type buildNode struct {
	child  [2]int32
	bucket []int32
}

// compileSnapshot builds an immutable snapshot from the canonical rule list.
func compileSnapshot(rules []*Rule) *Snapshot {
	snap := &Snapshot{
		rules: make([]Rule, len(rules)),
	}

	nodes := []buildNode{{child: [2]int32{-1, -1}}}
	for i, r := range rules {
		snap.rules[i] = *r

		node := int32(0)
		for depth := uint8(0); depth < r.SrcLen; depth++ {
			bit := (r.SrcAddr >> (31 - uint32(depth))) & 1
			if nodes[node].child[bit] < 0 {
				nodes[node].child[bit] = int32(len(nodes))
				nodes = append(nodes, buildNode{child: [2]int32{-1, -1}})
			}
			node = nodes[node].child[bit]
		}
		nodes[node].bucket = append(nodes[node].bucket, int32(i))
	}

	snap.nodes = make([]snapNode, len(nodes))
	for i := range nodes {
		b := nodes[i].bucket
		sort.SliceStable(b, func(x, y int) bool {
			rx, ry := &snap.rules[b[x]], &snap.rules[b[y]]
			if rx.Priority != ry.Priority {
				return rx.Priority > ry.Priority
			}
			return rx.seq < ry.seq
		})
		snap.nodes[i] = snapNode{
			child:     nodes[i].child,
			bucketOff: int32(len(snap.buckets)),
			bucketLen: int32(len(b)),
		}
		snap.buckets = append(snap.buckets, b...)
	}
	return snap
}
