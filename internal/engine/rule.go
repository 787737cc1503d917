// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"fmt"
	"time"
)

// Rule is one admitted filter rule. The match criteria are immutable after
// admission; the mutable runtime state (statistics, token buckets) lives
// behind State so it survives snapshot rebuilds.
type Rule struct {
	ID       uint64
	Label    string
	Priority uint32
	Action   Action
	Proto    Protocol

	// Source prefix, the primary LPM dimension. SrcLen == 0 means any.
	SrcAddr uint32
	SrcLen  uint8

	// Optional destination prefix, checked as a secondary filter.
	DstAddr uint32
	DstLen  uint8
	HasDst  bool

	SrcPortMin, SrcPortMax uint16
	DstPortMin, DstPortMax uint16
	LenMin, LenMax         uint16

	// TCPFlags is a subset-match mask: all set bits must be present in the
	// packet. Ignored for non-TCP packets.
	TCPFlags uint8

	// RedirectTarget is the redirect-target id, 0 when Action != redirect.
	RedirectTarget uint32

	// RateLimit in packets/second; 0 = unlimited.
	RateLimit uint32

	// Expire is the rule TTL in seconds, measured from creation; 0 = never.
	// The TTL is fixed rather than sliding so a rate-limited rule that keeps
	// matching still expires.
	Expire uint32

	CreatedAt time.Time

	// expireAt is the monotonic deadline in the classifier's clock domain,
	// 0 for no expiry.
	expireAt int64

	// seq is the admission order, the final matching tie-breaker.
	seq uint64

	State *RuleState
}

// Normalize widens unspecified range filters to match-anything. A range
// whose min and max are both zero was not set by the caller, which makes a
// rule matching exactly port 0 (or packet length 0) inexpressible; port 0
// is reserved and never carries real traffic, so the wildcard reading wins.
func (r *Rule) Normalize() {
	if r.SrcPortMin == 0 && r.SrcPortMax == 0 {
		r.SrcPortMax = 0xffff
	}
	if r.DstPortMin == 0 && r.DstPortMax == 0 {
		r.DstPortMax = 0xffff
	}
	if r.LenMin == 0 && r.LenMax == 0 {
		r.LenMax = 0xffff
	}
	if r.Proto == 0 {
		r.Proto = ProtoAny
	}
}

// SetDeadline derives the monotonic expiry deadline from the creation
// instant nowNanos. Called once at admission by the store owner.
func (r *Rule) SetDeadline(nowNanos int64) {
	if r.Expire > 0 {
		r.expireAt = nowNanos + int64(r.Expire)*int64(time.Second)
	}
}

// ExpiredAt reports whether the rule's TTL has elapsed at nowNanos.
func (r *Rule) ExpiredAt(nowNanos int64) bool {
	return r.expireAt > 0 && nowNanos >= r.expireAt
}

// matches applies the secondary filters (everything except the source
// prefix, which the trie walk already established).
func (r *Rule) matches(k *MatchKey) bool {
	if r.Proto != ProtoAny && r.Proto != k.Proto {
		return false
	}
	if k.SrcPort < r.SrcPortMin || k.SrcPort > r.SrcPortMax {
		return false
	}
	if k.DstPort < r.DstPortMin || k.DstPort > r.DstPortMax {
		return false
	}
	if k.Length < r.LenMin || k.Length > r.LenMax {
		return false
	}
	if k.Proto == ProtoTCP && r.TCPFlags&k.TCPFlags != r.TCPFlags {
		return false
	}
	if r.HasDst && r.DstLen > 0 {
		if (k.DstIP^r.DstAddr)>>(32-uint32(r.DstLen)) != 0 {
			return false
		}
	}
	return true
}

// SrcString renders the source prefix, or "" when unconstrained.
func (r *Rule) SrcString() string {
	if r.SrcLen == 0 {
		return ""
	}
	return prefixString(r.SrcAddr, r.SrcLen)
}

// DstString renders the destination prefix, or "" when unconstrained.
func (r *Rule) DstString() string {
	if !r.HasDst {
		return ""
	}
	return prefixString(r.DstAddr, r.DstLen)
}

func prefixString(addr uint32, plen uint8) string {
	ip := fmt.Sprintf("%d.%d.%d.%d", byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
	if plen == 32 {
		return ip
	}
	return fmt.Sprintf("%s/%d", ip, plen)
}
