// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import "encoding/binary"

// MatchKey is the per-packet view the classifier matches against.
// It is derived from validated header bytes and never stored.
type MatchKey struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Proto    Protocol
	TCPFlags uint8
}

// ParseResult describes the outcome of header extraction.
type ParseResult uint8

const (
	// ParseOK: headers validated, key populated.
	ParseOK ParseResult = iota
	// ParseNotIPv4: not an IPv4 frame; passes untouched, not a fault.
	ParseNotIPv4
	// ParseMalformed: declared protocol but insufficient bytes; fail-open.
	ParseMalformed
)

const (
	etherHeaderLen = 14
	etherTypeIPv4  = 0x0800
)

// ParseFrame extracts a MatchKey from an Ethernet frame. Every access is
// bounds checked against len(frame); the function never reads past it and
// runs in constant time.
//
// Callers map ParseNotIPv4 and ParseMalformed to a Pass verdict; only the
// latter counts as a fast-path fault.
func ParseFrame(frame []byte, key *MatchKey) ParseResult {
	if len(frame) < etherHeaderLen {
		return ParseMalformed
	}
	if binary.BigEndian.Uint16(frame[12:14]) != etherTypeIPv4 {
		return ParseNotIPv4
	}

	ip := frame[etherHeaderLen:]
	if len(ip) < 20 {
		return ParseMalformed
	}
	if ip[0]>>4 != 4 {
		return ParseMalformed
	}
	ihl := int(ip[0]&0x0f) * 4
	if ihl < 20 || len(ip) < ihl {
		return ParseMalformed
	}

	key.Proto = Protocol(ip[9])
	key.SrcIP = binary.BigEndian.Uint32(ip[12:16])
	key.DstIP = binary.BigEndian.Uint32(ip[16:20])
	key.SrcPort = 0
	key.DstPort = 0
	key.TCPFlags = 0
	if len(frame) > 0xffff {
		key.Length = 0xffff
	} else {
		key.Length = uint16(len(frame))
	}

	l4 := ip[ihl:]
	switch key.Proto {
	case ProtoTCP:
		if len(l4) < 20 {
			return ParseMalformed
		}
		key.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		key.DstPort = binary.BigEndian.Uint16(l4[2:4])
		key.TCPFlags = l4[13] & 0x3f
	case ProtoUDP:
		if len(l4) < 8 {
			return ParseMalformed
		}
		key.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		key.DstPort = binary.BigEndian.Uint16(l4[2:4])
	case ProtoICMP:
		if len(l4) < 4 {
			return ParseMalformed
		}
	}
	// Other transport protocols carry no port information but still match
	// address/protocol-any rules.
	return ParseOK
}
