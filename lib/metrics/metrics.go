// Package metrics exposes hostpool's counters, gauges and histograms in the
// Prometheus text format.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

// desc names a metric family.
type desc struct {
	name string
	help string
	kind kind
}

func (d *desc) writeHeader(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "# HELP %s %s\n", d.name, helpEscaper.Replace(d.help))
	fmt.Fprintf(buf, "# TYPE %s %s\n", d.name, d.kind)
}

// metric is implemented by every family the registry can expose.
type metric interface {
	describe() *desc
	writeSamples(buf *bytes.Buffer)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	desc
	v atomic.Uint64
}

// NewCounter creates a counter in the default registry.
func NewCounter(name, help string) *Counter {
	c := &Counter{desc: desc{name: name, help: help, kind: kindCounter}}
	defaultRegistry.mustRegister(c)
	return c
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.v.Add(1) }

// Add adds v to the counter.
func (c *Counter) Add(v uint64) { c.v.Add(v) }

// Value returns the current count.
func (c *Counter) Value() uint64 { return c.v.Load() }

func (c *Counter) describe() *desc { return &c.desc }

func (c *Counter) writeSamples(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%s %d\n", c.name, c.Value())
}

// Gauge is a value that can go up and down.
type Gauge struct {
	desc
	v atomic.Int64
}

// NewGauge creates a gauge in the default registry.
func NewGauge(name, help string) *Gauge {
	g := &Gauge{desc: desc{name: name, help: help, kind: kindGauge}}
	defaultRegistry.mustRegister(g)
	return g
}

// Set sets the gauge to v.
func (g *Gauge) Set(v int64) { g.v.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.v.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.v.Add(-1) }

// Add adds v to the gauge.
func (g *Gauge) Add(v int64) { g.v.Add(v) }

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) describe() *desc { return &g.desc }

func (g *Gauge) writeSamples(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%s %d\n", g.name, g.Value())
}

// GaugeVec is a gauge split by a single label, one series per label value.
// Pools use it to publish per-pool connection counts.
type GaugeVec struct {
	desc
	label string

	mu     sync.Mutex
	values map[string]int64
}

// NewGaugeVec creates a labelled gauge in the default registry.
func NewGaugeVec(name, help, label string) *GaugeVec {
	g := &GaugeVec{
		desc:   desc{name: name, help: help, kind: kindGauge},
		label:  label,
		values: make(map[string]int64),
	}
	defaultRegistry.mustRegister(g)
	return g
}

// Set sets the series for labelValue.
func (g *GaugeVec) Set(labelValue string, v int64) {
	g.mu.Lock()
	g.values[labelValue] = v
	g.mu.Unlock()
}

// Value returns the series for labelValue, zero if it does not exist.
func (g *GaugeVec) Value(labelValue string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values[labelValue]
}

// Replace swaps in a full set of series. Series missing from values are
// dropped, so pools that went away stop being reported.
func (g *GaugeVec) Replace(values map[string]int64) {
	next := make(map[string]int64, len(values))
	for k, v := range values {
		next[k] = v
	}
	g.mu.Lock()
	g.values = next
	g.mu.Unlock()
}

// Len returns the number of series.
func (g *GaugeVec) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.values)
}

func (g *GaugeVec) describe() *desc { return &g.desc }

func (g *GaugeVec) writeSamples(buf *bytes.Buffer) {
	g.mu.Lock()
	keys := make([]string, 0, len(g.values))
	for k := range g.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=\"%s\"} %d\n", g.name, g.label, labelEscaper.Replace(k), g.values[k])
	}
	g.mu.Unlock()
}

// Histogram tracks the distribution of observed values. Buckets must be
// sorted in increasing order.
type Histogram struct {
	desc

	mu     sync.Mutex
	upper  []float64
	counts []uint64 // per bucket, not cumulative
	sum    float64
	count  uint64
}

// NewHistogram creates a histogram in the default registry.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	h := newHistogram(name, help, buckets)
	defaultRegistry.mustRegister(h)
	return h
}

func newHistogram(name, help string, buckets []float64) *Histogram {
	upper := append([]float64(nil), buckets...)
	sort.Float64s(upper)
	return &Histogram{
		desc:   desc{name: name, help: help, kind: kindHistogram},
		upper:  upper,
		counts: make([]uint64, len(upper)),
	}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.upper, v)

	h.mu.Lock()
	if i < len(h.counts) {
		h.counts[i]++
	}
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) describe() *desc { return &h.desc }

func (h *Histogram) writeSamples(buf *bytes.Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cumulative uint64
	for i, le := range h.upper {
		cumulative += h.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%g\"} %d\n", h.name, le, cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(buf, "%s_sum %g\n", h.name, h.sum)
	fmt.Fprintf(buf, "%s_count %d\n", h.name, h.count)
}

// Registry holds metric families by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]metric
	names  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]metric)}
}

var defaultRegistry = NewRegistry()

func (r *Registry) register(m metric) error {
	name := m.describe().name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("metrics: %s already registered", name)
	}
	r.byName[name] = m
	i := sort.SearchStrings(r.names, name)
	r.names = append(r.names, "")
	copy(r.names[i+1:], r.names[i:])
	r.names[i] = name
	return nil
}

// mustRegister panics on duplicate names. Metrics are package-level
// variables, so a duplicate is a programming error.
func (r *Registry) mustRegister(m metric) {
	if err := r.register(m); err != nil {
		panic(err)
	}
}

// WriteTo writes every family in name order in the Prometheus text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	r.mu.RLock()
	for _, name := range r.names {
		m := r.byName[name]
		m.describe().writeHeader(&buf)
		m.writeSamples(&buf)
		buf.WriteByte('\n')
	}
	r.mu.RUnlock()
	return buf.WriteTo(w)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = defaultRegistry.WriteTo(w)
	})
}

// DefaultLatencyBuckets are histogram buckets (in seconds) suited to
// checkout latencies, from sub-millisecond reuse up to queued waits.
var DefaultLatencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15}

// Timer measures an elapsed duration into a histogram.
type Timer struct {
	h     *Histogram
	start time.Time
}

// NewTimer starts a timer that reports into h.
func NewTimer(h *Histogram) *Timer {
	return &Timer{h: h, start: time.Now()}
}

// ObserveDuration records the time since the timer started and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	if t.h != nil {
		t.h.Observe(d.Seconds())
	}
	return d
}

// Process-wide metrics
var (
	// StartTime is when the process started.
	StartTime = NewGauge("hostpool_start_time_seconds", "Unix timestamp when the process started")

	// PoolsActive is the number of live pool actors across all registries.
	PoolsActive = NewGauge("hostpool_pools_active", "Number of running pool actors")

	// PoolsCreated counts pool actors started by registries.
	PoolsCreated = NewCounter("hostpool_pools_created_total", "Total pool actors created")
)

// RecordStartTime records the current time as the start time.
func RecordStartTime() {
	StartTime.Set(time.Now().Unix())
}
