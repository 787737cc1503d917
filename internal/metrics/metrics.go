// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the engine's counters as Prometheus metrics.
// The collector reads the live counters at scrape time instead of keeping
// a parallel set of prometheus counters in the hot path.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/logging"
)

// Source is the control-plane view the collector scrapes.
type Source interface {
	Stats() controller.Summary
	ListRules(controller.ListFilter) []controller.RuleView
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source Source

	packetsTotal    *prometheus.Desc
	bytesTotal      *prometheus.Desc
	packetsPerSec   *prometheus.Desc
	rules           *prometheus.Desc
	redirectTargets *prometheus.Desc
	faultsTotal     *prometheus.Desc
	rulePackets     *prometheus.Desc
	ruleBytes       *prometheus.Desc
}

// NewCollector creates a collector scraping source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		packetsTotal: prometheus.NewDesc("wirewall_packets_total",
			"Total packets seen by the classifier.", nil, nil),
		bytesTotal: prometheus.NewDesc("wirewall_bytes_total",
			"Total bytes seen by the classifier.", nil, nil),
		packetsPerSec: prometheus.NewDesc("wirewall_packets_per_second",
			"Packet rate between the last two harvests.", nil, nil),
		rules: prometheus.NewDesc("wirewall_rules",
			"Number of active rules.", nil, nil),
		redirectTargets: prometheus.NewDesc("wirewall_redirect_targets",
			"Number of registered redirect targets.", nil, nil),
		faultsTotal: prometheus.NewDesc("wirewall_faults_total",
			"Fast-path faults by kind.", []string{"kind"}, nil),
		rulePackets: prometheus.NewDesc("wirewall_rule_packets_total",
			"Matched packets per rule, as of the last harvest.", []string{"label"}, nil),
		ruleBytes: prometheus.NewDesc("wirewall_rule_bytes_total",
			"Matched bytes per rule, as of the last harvest.", []string{"label"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsTotal
	ch <- c.bytesTotal
	ch <- c.packetsPerSec
	ch <- c.rules
	ch <- c.redirectTargets
	ch <- c.faultsTotal
	ch <- c.rulePackets
	ch <- c.ruleBytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	sum := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.packetsTotal, prometheus.CounterValue, float64(sum.TotalPackets))
	ch <- prometheus.MustNewConstMetric(c.bytesTotal, prometheus.CounterValue, float64(sum.TotalBytes))
	ch <- prometheus.MustNewConstMetric(c.packetsPerSec, prometheus.GaugeValue, sum.PacketsPerSec)
	ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(sum.Rules))
	ch <- prometheus.MustNewConstMetric(c.redirectTargets, prometheus.GaugeValue, float64(len(sum.RedirectTargets)))
	ch <- prometheus.MustNewConstMetric(c.faultsTotal, prometheus.CounterValue, float64(sum.Faults.Malformed), "malformed")
	ch <- prometheus.MustNewConstMetric(c.faultsTotal, prometheus.CounterValue, float64(sum.Faults.UnresolvedRedirect), "unresolved_redirect")

	for _, r := range c.source.ListRules(controller.ListFilter{WithStats: true}) {
		ch <- prometheus.MustNewConstMetric(c.rulePackets, prometheus.CounterValue, float64(r.Stats.Packets), r.Label)
		ch <- prometheus.MustNewConstMetric(c.ruleBytes, prometheus.CounterValue, float64(r.Stats.Bytes), r.Label)
	}
}

// NewRegistry returns a registry holding only wirewall metrics.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return reg
}

// Serve runs a /metrics listener on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.WithComponent("metrics").Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
