// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wirewall/internal/clock"
	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/dataplane"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/inspect"
	"grimm.is/wirewall/internal/testutil"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// idleConn never delivers frames; capture workers just cycle on timeouts.
type idleConn struct {
	done chan struct{}
}

func (c *idleConn) ReadFrom(b []byte) (int, error) {
	select {
	case <-c.done:
		return 0, errors.New(errors.KindUnavailable, "closed")
	case <-time.After(5 * time.Millisecond):
		return 0, timeoutError{}
	}
}

func (c *idleConn) WriteTo(b []byte) (int, error)   { return len(b), nil }
func (c *idleConn) SetReadDeadline(time.Time) error { return nil }

func (c *idleConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

type fakeLink struct {
	ifaces map[string]int32
}

func (l *fakeLink) Resolve(name string) (int32, error) {
	idx, ok := l.ifaces[name]
	if !ok {
		return 0, errors.Errorf(errors.KindNotFound, "no such interface %s", name)
	}
	return idx, nil
}

func (l *fakeLink) Supports(name string, mode dataplane.Mode) error { return nil }

func (l *fakeLink) Open(name string) (dataplane.PacketConn, error) {
	return &idleConn{done: make(chan struct{})}, nil
}

type testDaemon struct {
	client *Client
	ctrl   *controller.Controller
	cls    *engine.Classifier
	clk    *clock.MockClock
}

func startTestServer(t *testing.T) *testDaemon {
	t.Helper()

	clk := clock.NewMockClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := engine.NewStore(4, 0)
	redirects := engine.NewRedirectTable()
	cls := engine.NewClassifier(store, redirects, clk)
	ctrl := controller.New(store, redirects, cls, clk)
	inspector := inspect.NewRegistry()

	link := &fakeLink{ifaces: map[string]int32{"eth0": 1, "eth1": 2}}
	mgr := dataplane.NewManager(link, cls, redirects, 1)
	mgr.SetInspector(inspector)
	t.Cleanup(mgr.Close)

	srv := NewServer(ctrl, mgr, inspector)
	socket := filepath.Join(t.TempDir(), "ctl.sock")
	require.NoError(t, srv.Start(socket))
	t.Cleanup(srv.Stop)

	client, err := Dial(socket)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &testDaemon{client: client, ctrl: ctrl, cls: cls, clk: clk}
}

func TestRuleRoundTripOverSocket(t *testing.T) {
	d := startTestServer(t)
	client := d.client

	id, err := client.AddRule(controller.RuleSpec{
		Label:    "block-telnet",
		Action:   "drop",
		Protocol: "tcp",
		Priority: 3,
		SrcIP:    "192.0.2.0/24",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	rules, err := client.ListRules("", "", false)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "block-telnet", rules[0].Label)
	assert.Equal(t, "192.0.2.0/24", rules[0].SrcIP)

	stats, err := client.DeleteRule("block-telnet")
	require.NoError(t, err)
	assert.Zero(t, stats.Packets)

	_, err = client.DeleteRule("block-telnet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAddRuleErrorsCrossTheSocket(t *testing.T) {
	d := startTestServer(t)
	client := d.client

	_, err := client.AddRule(controller.RuleSpec{Label: "x", Action: "explode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid action")
}

func TestAttachDetachOverSocket(t *testing.T) {
	d := startTestServer(t)
	client := d.client

	require.NoError(t, client.Attach("eth0", "generic", false))

	err := client.Attach("eth0", "generic", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already attached")

	stats, err := client.GetStats()
	require.NoError(t, err)
	require.Len(t, stats.Attachments, 1)
	assert.Equal(t, "eth0", stats.Attachments[0].Interface)

	require.NoError(t, client.Detach("eth0"))

	err = client.Attach("eth0", "turbo", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid attach mode")
}

func TestRedirectRuleRequiresAttachedTarget(t *testing.T) {
	d := startTestServer(t)
	client := d.client

	_, err := client.AddRule(controller.RuleSpec{Label: "mirror", Action: "redirect", RedirectIf: "eth1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not attached")

	require.NoError(t, client.Attach("eth1", "generic", false))
	_, err = client.AddRule(controller.RuleSpec{Label: "mirror", Action: "redirect", RedirectIf: "eth1"})
	require.NoError(t, err)
}

func TestModuleLifecycleOverSocket(t *testing.T) {
	d := startTestServer(t)
	client := d.client

	id, err := client.LoadModule("observer")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mods, err := client.ListModules()
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "observer", mods[0].Name)

	require.NoError(t, client.UnloadModule(id))
	err = client.UnloadModule(id)
	require.Error(t, err)
}

func TestGetStatsRateFollowsHarvestCadence(t *testing.T) {
	d := startTestServer(t)

	d.ctrl.Harvest()
	d.clk.Advance(2 * time.Second)
	frame := testutil.UDPFrame("10.1.1.1", "2.2.2.2", 1, 2, nil)
	for i := 0; i < 10; i++ {
		d.cls.Classify(0, frame)
	}
	d.ctrl.Harvest()

	first, err := d.client.GetStats()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, first.Summary.PacketsPerSec, 0.01)
	assert.Equal(t, uint64(10), first.Summary.TotalPackets)

	// A second stats call moments later still reports the harvested rate;
	// the RPC must not recompute it over the tiny inter-call window.
	d.clk.Advance(time.Millisecond)
	second, err := d.client.GetStats()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, second.Summary.PacketsPerSec, 0.01)
}

func TestGetStatus(t *testing.T) {
	d := startTestServer(t)
	client := d.client

	status, err := client.GetStatus()
	require.NoError(t, err)
	assert.NotZero(t, status.PID)
	assert.Equal(t, 0, status.Rules)
}
