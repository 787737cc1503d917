// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wirewall/internal/clock"
	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/testutil"
)

func gather(t *testing.T, src Source) map[string]*dto.MetricFamily {
	t.Helper()
	reg := NewRegistry(NewCollector(src))
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestCollectorExportsEngineCounters(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := engine.NewStore(1, 0)
	redirects := engine.NewRedirectTable()
	cls := engine.NewClassifier(store, redirects, clk)
	ctrl := controller.New(store, redirects, cls, clk)

	_, err := ctrl.AddRule(controller.RuleSpec{Label: "count-all", Action: "count"})
	require.NoError(t, err)

	frame := testutil.UDPFrame("10.0.0.1", "10.0.0.2", 1, 2, nil)
	for i := 0; i < 7; i++ {
		cls.Classify(0, frame)
	}
	ctrl.Harvest()

	fams := gather(t, ctrl)

	assert.Equal(t, float64(7), fams["wirewall_packets_total"].Metric[0].Counter.GetValue())
	assert.Equal(t, float64(7*len(frame)), fams["wirewall_bytes_total"].Metric[0].Counter.GetValue())
	assert.Equal(t, float64(1), fams["wirewall_rules"].Metric[0].Gauge.GetValue())

	rulePackets := fams["wirewall_rule_packets_total"]
	require.Len(t, rulePackets.Metric, 1)
	assert.Equal(t, "count-all", rulePackets.Metric[0].Label[0].GetValue())
	assert.Equal(t, float64(7), rulePackets.Metric[0].Counter.GetValue())

	faults := fams["wirewall_faults_total"]
	require.Len(t, faults.Metric, 2)
}

func TestCollectorExportsFaults(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	store := engine.NewStore(1, 0)
	redirects := engine.NewRedirectTable()
	cls := engine.NewClassifier(store, redirects, clk)
	ctrl := controller.New(store, redirects, cls, clk)

	full := testutil.TCPFrame("10.0.0.1", "10.0.0.2", 1, 2, engine.TCPFlagSYN, nil)
	cls.Classify(0, testutil.Truncate(full, 30))

	fams := gather(t, ctrl)
	for _, m := range fams["wirewall_faults_total"].Metric {
		if m.Label[0].GetValue() == "malformed" {
			assert.Equal(t, float64(1), m.Counter.GetValue())
		}
	}
}
