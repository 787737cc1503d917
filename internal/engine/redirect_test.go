// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
)

func TestRedirectTableAddResolve(t *testing.T) {
	rt := engine.NewRedirectTable()
	require.NoError(t, rt.Add(engine.RedirectTarget{ID: 1, IfIndex: 10, Name: "eth1"}))

	target, ok := rt.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, int32(10), target.IfIndex)

	target, ok = rt.ResolveName("eth1")
	require.True(t, ok)
	assert.Equal(t, uint32(1), target.ID)

	_, ok = rt.Resolve(2)
	assert.False(t, ok)
}

func TestRedirectTableDuplicateID(t *testing.T) {
	rt := engine.NewRedirectTable()
	require.NoError(t, rt.Add(engine.RedirectTarget{ID: 1, IfIndex: 10, Name: "eth1"}))

	err := rt.Add(engine.RedirectTarget{ID: 1, IfIndex: 11, Name: "eth2"})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestRedirectTableFull(t *testing.T) {
	rt := engine.NewRedirectTable()
	for i := 0; i < engine.MaxRedirectTargets; i++ {
		require.NoError(t, rt.Add(engine.RedirectTarget{ID: uint32(i), IfIndex: int32(i)}))
	}

	err := rt.Add(engine.RedirectTarget{ID: 999})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRedirectTableRemove(t *testing.T) {
	rt := engine.NewRedirectTable()
	require.NoError(t, rt.Add(engine.RedirectTarget{ID: 1, IfIndex: 10, Name: "eth1"}))

	target, ok := rt.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "eth1", target.Name)

	_, ok = rt.Resolve(1)
	assert.False(t, ok)
	_, ok = rt.ResolveName("eth1")
	assert.False(t, ok)

	_, ok = rt.Remove(1)
	assert.False(t, ok)

	assert.Empty(t, rt.List())
}
