package core

import (
	"context"
	"sync"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// CapturingMetricsRecorder keeps emitted metrics in memory so tests can
// assert on per-operation counters and latency histograms without a metrics
// backend.
type CapturingMetricsRecorder struct {
	mu         sync.Mutex
	counters   []CapturedMetric
	histograms []CapturedMetric
}

type CapturedMetric struct {
	Name  string
	Value float64
	Tags  map[string]string
}

func NewCapturingMetricsRecorder() *CapturingMetricsRecorder {
	return &CapturingMetricsRecorder{}
}

func (r *CapturingMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, CapturedMetric{Name: name, Value: float64(value), Tags: cloneTags(tags)})
}

func (r *CapturingMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = append(r.histograms, CapturedMetric{Name: name, Value: value, Tags: cloneTags(tags)})
}

func (r *CapturingMetricsRecorder) Counters(name string) []CapturedMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterMetrics(r.counters, name)
}

func (r *CapturingMetricsRecorder) Histograms(name string) []CapturedMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filterMetrics(r.histograms, name)
}

func filterMetrics(captured []CapturedMetric, name string) []CapturedMetric {
	out := make([]CapturedMetric, 0, len(captured))
	for _, metric := range captured {
		if name == "" || metric.Name == name {
			out = append(out, metric)
		}
	}
	return out
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
var _ MetricsRecorder = (*CapturingMetricsRecorder)(nil)
