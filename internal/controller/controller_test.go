// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wirewall/internal/clock"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/testutil"
)

type fixture struct {
	ctrl      *Controller
	cls       *engine.Classifier
	redirects *engine.RedirectTable
	clk       *clock.MockClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := engine.NewStore(2, 0)
	redirects := engine.NewRedirectTable()
	cls := engine.NewClassifier(store, redirects, clk)
	return &fixture{
		ctrl:      New(store, redirects, cls, clk),
		cls:       cls,
		redirects: redirects,
		clk:       clk,
	}
}

func TestAddRuleRoundTrip(t *testing.T) {
	f := newFixture(t)

	spec := RuleSpec{
		Label:      "block-scanner",
		Action:     "drop",
		Priority:   10,
		Protocol:   "tcp",
		SrcIP:      "203.0.113.0/24",
		DstPortMin: 22,
		TCPFlags:   "syn",
		RateLimit:  100,
		Expire:     3600,
	}
	id, err := f.ctrl.AddRule(spec)
	require.NoError(t, err)
	assert.NotZero(t, id)

	rules := f.ctrl.ListRules(ListFilter{})
	require.Len(t, rules, 1)
	v := rules[0]
	assert.Equal(t, id, v.ID)
	assert.Equal(t, "block-scanner", v.Label)
	assert.Equal(t, "drop", v.Action)
	assert.Equal(t, "tcp", v.Protocol)
	assert.Equal(t, "203.0.113.0/24", v.SrcIP)
	assert.Equal(t, [2]uint16{22, 22}, v.DstPort)
	assert.Equal(t, "SYN", v.TCPFlags)
	assert.Equal(t, uint32(100), v.RateLimit)
	assert.Equal(t, uint32(3600), v.Expire)
	assert.Equal(t, f.clk.Now(), v.CreatedAt)
}

func TestAddRuleDuplicateLabel(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.AddRule(RuleSpec{Label: "dup", Action: "pass"})
	require.NoError(t, err)

	_, err = f.ctrl.AddRule(RuleSpec{Label: "dup", Action: "drop"})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestAddRuleValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		spec RuleSpec
	}{
		{"empty label", RuleSpec{Action: "drop"}},
		{"long label", RuleSpec{Label: "0123456789012345678901234567890123", Action: "drop"}},
		{"bad action", RuleSpec{Label: "x", Action: "reject"}},
		{"bad protocol", RuleSpec{Label: "x", Action: "drop", Protocol: "sctp"}},
		{"bad src", RuleSpec{Label: "x", Action: "drop", SrcIP: "300.0.0.1"}},
		{"v6 src", RuleSpec{Label: "x", Action: "drop", SrcIP: "::1/128"}},
		{"inverted ports", RuleSpec{Label: "x", Action: "drop", SrcPortMin: 2048, SrcPortMax: 1024}},
		{"inverted length", RuleSpec{Label: "x", Action: "drop", PktLenMin: 500, PktLenMax: 100}},
		{"flags without tcp", RuleSpec{Label: "x", Action: "drop", Protocol: "udp", TCPFlags: "syn"}},
		{"bad flags", RuleSpec{Label: "x", Action: "drop", Protocol: "tcp", TCPFlags: "syn,ecn"}},
		{"redirect without target", RuleSpec{Label: "x", Action: "redirect"}},
		{"redirect unattached", RuleSpec{Label: "x", Action: "redirect", RedirectIf: "eth9"}},
		{"redirect_if on drop", RuleSpec{Label: "x", Action: "drop", RedirectIf: "eth0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ctrl.AddRule(tc.spec)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "kind = %v", errors.GetKind(err))
		})
	}

	// Nothing was admitted along the way.
	assert.Empty(t, f.ctrl.ListRules(ListFilter{}))
}

func TestAddRuleRedirectResolves(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.redirects.Add(engine.RedirectTarget{ID: 1, IfIndex: 7, Name: "eth1"}))

	_, err := f.ctrl.AddRule(RuleSpec{Label: "mirror", Action: "redirect", RedirectIf: "eth1"})
	require.NoError(t, err)

	frame := testutil.UDPFrame("10.0.0.1", "10.0.0.2", 1, 2, nil)
	res := f.cls.Classify(0, frame)
	assert.Equal(t, engine.VerdictRedirect, res.Verdict)
	assert.Equal(t, int32(7), res.RedirectIfIndex)
}

func TestDeleteRuleReturnsFinalStats(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.AddRule(RuleSpec{Label: "count-all", Action: "count"})
	require.NoError(t, err)

	frame := testutil.UDPFrame("10.0.0.1", "10.0.0.2", 1, 2, nil)
	for i := 0; i < 3; i++ {
		f.cls.Classify(0, frame)
	}

	stats, err := f.ctrl.DeleteRule("count-all")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Packets)
	assert.Equal(t, uint64(3*len(frame)), stats.Bytes)

	_, err = f.ctrl.DeleteRule("count-all")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListRulesStatsLagHarvest(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.AddRule(RuleSpec{Label: "count-all", Action: "count"})
	require.NoError(t, err)

	frame := testutil.UDPFrame("10.0.0.1", "10.0.0.2", 1, 2, nil)
	f.cls.Classify(0, frame)

	// Before a harvest the cached statistics are still zero.
	rules := f.ctrl.ListRules(ListFilter{WithStats: true})
	require.Len(t, rules, 1)
	assert.Zero(t, rules[0].Stats.Packets)

	f.ctrl.Harvest()
	rules = f.ctrl.ListRules(ListFilter{WithStats: true})
	assert.Equal(t, uint64(1), rules[0].Stats.Packets)
}

func TestListRulesFilter(t *testing.T) {
	f := newFixture(t)

	for _, spec := range []RuleSpec{
		{Label: "a", Action: "drop"},
		{Label: "b", Action: "pass"},
		{Label: "c", Action: "drop"},
	} {
		_, err := f.ctrl.AddRule(spec)
		require.NoError(t, err)
	}

	drops := f.ctrl.ListRules(ListFilter{Action: "drop"})
	require.Len(t, drops, 2)
	assert.Equal(t, "a", drops[0].Label)
	assert.Equal(t, "c", drops[1].Label)

	byLabel := f.ctrl.ListRules(ListFilter{Label: "b"})
	require.Len(t, byLabel, 1)
	assert.Equal(t, "pass", byLabel[0].Action)
}

func TestExpirySweep(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.AddRule(RuleSpec{Label: "temp", Action: "drop", Expire: 5})
	require.NoError(t, err)
	_, err = f.ctrl.AddRule(RuleSpec{Label: "perm", Action: "drop"})
	require.NoError(t, err)

	assert.Zero(t, f.ctrl.ExpirySweep())

	f.clk.Advance(6 * time.Second)
	assert.Equal(t, 1, f.ctrl.ExpirySweep())

	rules := f.ctrl.ListRules(ListFilter{})
	require.Len(t, rules, 1)
	assert.Equal(t, "perm", rules[0].Label)
}

func TestStatsSummary(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.redirects.Add(engine.RedirectTarget{ID: 1, IfIndex: 7, Name: "eth1"}))

	_, err := f.ctrl.AddRule(RuleSpec{Label: "count-all", Action: "count"})
	require.NoError(t, err)

	frame := testutil.UDPFrame("10.0.0.1", "10.0.0.2", 1, 2, nil)
	f.ctrl.Harvest()
	for i := 0; i < 10; i++ {
		f.cls.Classify(0, frame)
	}
	f.clk.Advance(2 * time.Second)
	f.ctrl.Harvest()

	sum := f.ctrl.Stats()
	assert.Equal(t, uint64(1), sum.Rules)
	assert.Equal(t, uint64(10), sum.TotalPackets)
	assert.Equal(t, uint64(10*len(frame)), sum.TotalBytes)
	assert.InDelta(t, 5.0, sum.PacketsPerSec, 0.01)
	require.Len(t, sum.RedirectTargets, 1)
}
