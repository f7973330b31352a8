// Package metrics exposes digest pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what pipeline components report into.
type Recorder interface {
	FeedFetched(ok bool)
	StageItems(stage string, n int)
	ModelCall(stage, outcome string)
	ChannelPush(channelType string, ok bool)
	RunFinished(status string, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) FeedFetched(bool)                  {}
func (Nop) StageItems(string, int)            {}
func (Nop) ModelCall(string, string)          {}
func (Nop) ChannelPush(string, bool)          {}
func (Nop) RunFinished(string, time.Duration) {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	feeds       *prometheus.CounterVec
	stageItems  *prometheus.CounterVec
	modelCalls  *prometheus.CounterVec
	pushes      *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewCollector registers the digest metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailydigest_feed_fetch_total",
			Help: "Feed fetches by result.",
		}, []string{"result"}),
		stageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailydigest_stage_items_total",
			Help: "Items leaving each pipeline stage.",
		}, []string{"stage"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailydigest_model_calls_total",
			Help: "Model calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailydigest_channel_push_total",
			Help: "Channel pushes by type and result.",
		}, []string{"type", "result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailydigest_runs_total",
			Help: "Digest runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dailydigest_run_duration_seconds",
			Help:    "Wall time of one digest run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	reg.MustRegister(c.feeds, c.stageItems, c.modelCalls, c.pushes, c.runs, c.runDuration)
	return c
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (c *Collector) FeedFetched(ok bool) {
	c.feeds.WithLabelValues(result(ok)).Inc()
}

func (c *Collector) StageItems(stage string, n int) {
	c.stageItems.WithLabelValues(stage).Add(float64(n))
}

func (c *Collector) ModelCall(stage, outcome string) {
	c.modelCalls.WithLabelValues(stage, outcome).Inc()
}

func (c *Collector) ChannelPush(channelType string, ok bool) {
	c.pushes.WithLabelValues(channelType, result(ok)).Inc()
}

func (c *Collector) RunFinished(status string, d time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.runDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
