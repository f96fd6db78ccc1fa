// Package metrics records scan and rendering statistics.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Reason labels for rules that contributed no matches.
const (
	ReasonInvalid = "invalid"
	ReasonRuntime = "runtime"
)

// Recorder receives scan observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveScan(d time.Duration, matches int)
	IncRuleFailure(reason string)
	ObserveZones(zones int)
}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noopRecorder{} }

type noopRecorder struct{}

func (noopRecorder) ObserveScan(time.Duration, int) {}
func (noopRecorder) IncRuleFailure(string)          {}
func (noopRecorder) ObserveZones(int)               {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	scanDuration prom.Histogram
	matches      prom.Counter
	scans        prom.Counter
	ruleFailures *prom.CounterVec
	zones        prom.Histogram
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		scanDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "autolinks",
			Name:      "scan_duration_seconds",
			Help:      "Duration of rule scans over a text buffer",
			Buckets:   prom.ExponentialBuckets(0.0001, 4, 8),
		}),
		matches: prom.NewCounter(prom.CounterOpts{
			Namespace: "autolinks",
			Name:      "matches_total",
			Help:      "Accepted matches after overlap resolution",
		}),
		scans: prom.NewCounter(prom.CounterOpts{
			Namespace: "autolinks",
			Name:      "scans_total",
			Help:      "Rule scans performed",
		}),
		ruleFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autolinks",
			Name:      "rule_failures_total",
			Help:      "Rules that were skipped or truncated during a scan",
		}, []string{"reason"}),
		zones: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "autolinks",
			Name:      "skip_zones",
			Help:      "Merged skip zones per scanned text",
			Buckets:   prom.LinearBuckets(0, 5, 10),
		}),
	}
	reg.MustRegister(pr.scanDuration, pr.matches, pr.scans, pr.ruleFailures, pr.zones)
	return pr
}

func (p *PrometheusRecorder) ObserveScan(d time.Duration, matches int) {
	if p == nil {
		return
	}
	p.scans.Inc()
	p.scanDuration.Observe(d.Seconds())
	p.matches.Add(float64(matches))
}

func (p *PrometheusRecorder) IncRuleFailure(reason string) {
	if p == nil {
		return
	}
	p.ruleFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) ObserveZones(zones int) {
	if p == nil {
		return
	}
	p.zones.Observe(float64(zones))
}
