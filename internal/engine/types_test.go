// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	a, ok := ParseAction("Redirect")
	require.True(t, ok)
	assert.Equal(t, ActionRedirect, a)

	_, ok = ParseAction("reject")
	assert.False(t, ok)
}

func TestParseProtocolDefaultsToAny(t *testing.T) {
	p, ok := ParseProtocol("")
	require.True(t, ok)
	assert.Equal(t, ProtoAny, p)

	_, ok = ParseProtocol("sctp")
	assert.False(t, ok)
}

func TestParseTCPFlags(t *testing.T) {
	flags, err := ParseTCPFlags("syn, ack")
	require.NoError(t, err)
	assert.Equal(t, TCPFlagSYN|TCPFlagACK, flags)
	assert.Equal(t, "SYN,ACK", FormatTCPFlags(flags))

	_, err = ParseTCPFlags("syn,ecn")
	assert.Error(t, err)

	flags, err = ParseTCPFlags("")
	require.NoError(t, err)
	assert.Zero(t, flags)
}
