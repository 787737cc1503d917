// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine implements the wire-speed packet classification core: an
// LPM-indexed rule store published as immutable snapshots, a non-allocating
// classifier, per-rule token buckets and per-worker statistics.
//
// Ownership is strictly split. A single control-plane writer mutates the
// Store and RedirectTable; classifier workers only load the current snapshot
// and mutate their own per-worker slots.
package engine

import (
	"fmt"
	"strings"
)

// Table capacity limits.
const (
	MaxRules           = 10240
	MaxRedirectTargets = 64
	MaxLabelLen        = 32
)

// Action is the enforcement effect a rule requests.
type Action uint8

const (
	ActionPass     Action = 1
	ActionDrop     Action = 2
	ActionRedirect Action = 3
	ActionCount    Action = 4
)

// ParseAction parses an action name (pass|drop|redirect|count).
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(s) {
	case "pass":
		return ActionPass, true
	case "drop":
		return ActionDrop, true
	case "redirect":
		return ActionRedirect, true
	case "count":
		return ActionCount, true
	}
	return 0, false
}

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionDrop:
		return "drop"
	case ActionRedirect:
		return "redirect"
	case ActionCount:
		return "count"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Protocol is an IP protocol number. ProtoAny matches every protocol.
type Protocol uint8

const (
	ProtoICMP Protocol = 1
	ProtoTCP  Protocol = 6
	ProtoUDP  Protocol = 17
	ProtoAny  Protocol = 255
)

// ParseProtocol parses a protocol name (tcp|udp|icmp|any).
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(s) {
	case "tcp":
		return ProtoTCP, true
	case "udp":
		return ProtoUDP, true
	case "icmp":
		return ProtoICMP, true
	case "any", "":
		return ProtoAny, true
	}
	return 0, false
}

func (p Protocol) String() string {
	switch p {
	case ProtoICMP:
		return "icmp"
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoAny:
		return "any"
	}
	return fmt.Sprintf("proto(%d)", uint8(p))
}

// TCP flag bits, low six bits of the TCP flags byte.
const (
	TCPFlagFIN uint8 = 0x01
	TCPFlagSYN uint8 = 0x02
	TCPFlagRST uint8 = 0x04
	TCPFlagPSH uint8 = 0x08
	TCPFlagACK uint8 = 0x10
	TCPFlagURG uint8 = 0x20
)

var tcpFlagNames = []struct {
	bit  uint8
	name string
}{
	{TCPFlagFIN, "FIN"},
	{TCPFlagSYN, "SYN"},
	{TCPFlagRST, "RST"},
	{TCPFlagPSH, "PSH"},
	{TCPFlagACK, "ACK"},
	{TCPFlagURG, "URG"},
}

// ParseTCPFlags parses a comma-separated flag list ("syn,ack").
// Unknown names are rejected.
func ParseTCPFlags(s string) (uint8, error) {
	var flags uint8
	if s == "" {
		return 0, nil
	}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		found := false
		for _, f := range tcpFlagNames {
			if f.name == name {
				flags |= f.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown tcp flag %q", part)
		}
	}
	return flags, nil
}

// FormatTCPFlags renders a flag bitset as a comma-separated list.
func FormatTCPFlags(flags uint8) string {
	if flags == 0 {
		return ""
	}
	var parts []string
	for _, f := range tcpFlagNames {
		if flags&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ",")
}

// Verdict is the classifier's decision for one packet.
type Verdict uint8

const (
	VerdictPass Verdict = iota
	VerdictDrop
	VerdictRedirect
	VerdictCount
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictDrop:
		return "drop"
	case VerdictRedirect:
		return "redirect"
	case VerdictCount:
		return "count"
	}
	return "unknown"
}
