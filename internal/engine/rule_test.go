// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWidensUnsetRanges(t *testing.T) {
	r := &Rule{}
	r.Normalize()

	// An all-zero range reads as unset, not "exactly zero".
	assert.Equal(t, uint16(0), r.SrcPortMin)
	assert.Equal(t, uint16(0xffff), r.SrcPortMax)
	assert.Equal(t, uint16(0xffff), r.DstPortMax)
	assert.Equal(t, uint16(0xffff), r.LenMax)
	assert.Equal(t, ProtoAny, r.Proto)

	k := &MatchKey{Proto: ProtoUDP, SrcPort: 0, DstPort: 0, Length: 0}
	assert.True(t, r.matches(k))
}

func TestNormalizeKeepsExplicitRanges(t *testing.T) {
	r := &Rule{Proto: ProtoUDP, DstPortMin: 53, DstPortMax: 53}
	r.Normalize()

	assert.Equal(t, uint16(53), r.DstPortMin)
	assert.Equal(t, uint16(53), r.DstPortMax)
	assert.Equal(t, uint16(0xffff), r.SrcPortMax)
	assert.Equal(t, ProtoUDP, r.Proto)

	assert.True(t, r.matches(&MatchKey{Proto: ProtoUDP, DstPort: 53, Length: 64}))
	assert.False(t, r.matches(&MatchKey{Proto: ProtoUDP, DstPort: 0, Length: 64}))
}
