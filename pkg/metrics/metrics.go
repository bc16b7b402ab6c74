// Package metrics is a small Prometheus-compatible registry built on the
// standard library. It supports counters, gauges, and histograms with
// optional labels and serves them in the text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are the default histogram buckets in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Counter is a monotonically increasing counter.
type Counter struct{ val atomic.Int64 }

func (c *Counter) Inc()         { c.val.Add(1) }
func (c *Counter) Add(n int64)  { c.val.Add(n) }
func (c *Counter) Value() int64 { return c.val.Load() }

// Gauge holds a value that can move in both directions.
type Gauge struct{ val atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.val.Store(n) }
func (g *Gauge) Inc()         { g.val.Add(1) }
func (g *Gauge) Dec()         { g.val.Add(-1) }
func (g *Gauge) Value() int64 { return g.val.Load() }

// Histogram tracks a distribution over fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *Histogram {
	b := make([]float64, len(buckets))
	copy(b, buckets)
	sort.Float64s(b)
	return &Histogram{buckets: b, counts: make([]uint64, len(b))}
}

// Observe records a value into its bucket. Buckets are stored
// non-cumulatively and accumulated at render time.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) {
	h.Observe(time.Since(t).Seconds())
}

func (h *Histogram) snapshot() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := make([]uint64, len(h.counts))
	copy(c, h.counts)
	return h.buckets, c, h.sum, h.count
}

// series is one metric line: a full name (labels baked in) plus its value.
type series struct {
	name      string
	counter   *Counter
	gauge     *Gauge
	histogram *Histogram
}

// family groups series sharing a base name, rendered under one HELP/TYPE.
type family struct {
	base   string
	typ    string
	help   string
	series []*series
}

// Registry holds named metrics in registration order.
type Registry struct {
	mu       sync.RWMutex
	families []*family
	byName   map[string]*series
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*series)}
}

// WithLabels bakes label pairs into a metric name:
// WithLabels("foo", "k", "v") yields `foo{k="v"}`.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i != -1 {
		return name[:i]
	}
	return name
}

func (r *Registry) lookup(name, typ, help string) *series {
	if s, ok := r.byName[name]; ok {
		return s
	}
	base := baseName(name)
	var fam *family
	for _, f := range r.families {
		if f.base == base {
			fam = f
			break
		}
	}
	if fam == nil {
		fam = &family{base: base, typ: typ, help: help}
		r.families = append(r.families, fam)
	}
	s := &series{name: name}
	fam.series = append(fam.series, s)
	r.byName[name] = s
	return s
}

// Counter returns (or registers) a counter under name.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(name, "counter", help)
	if s.counter == nil {
		s.counter = &Counter{}
	}
	return s.counter
}

// Gauge returns (or registers) a gauge under name.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(name, "gauge", help)
	if s.gauge == nil {
		s.gauge = &Gauge{}
	}
	return s.gauge
}

// Histogram returns (or registers) a histogram under name. A nil buckets
// slice selects DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(name, "histogram", help)
	if s.histogram == nil {
		s.histogram = newHistogram(buckets)
	}
	return s.histogram
}

// Render emits the text exposition format.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, f := range r.families {
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", f.base, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", f.base, f.typ)
		for _, s := range f.series {
			switch {
			case s.counter != nil:
				fmt.Fprintf(&b, "%s %d\n", s.name, s.counter.Value())
			case s.gauge != nil:
				fmt.Fprintf(&b, "%s %d\n", s.name, s.gauge.Value())
			case s.histogram != nil:
				renderHistogram(&b, f.base, s)
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, base string, s *series) {
	buckets, counts, sum, count := s.histogram.snapshot()
	extra := labelsOf(s.name)
	var cumulative uint64
	for i, bk := range buckets {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", base, bk, extra, cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, extra, count)
	if extra == "" {
		fmt.Fprintf(b, "%s_sum %g\n", base, sum)
		fmt.Fprintf(b, "%s_count %d\n", base, count)
	} else {
		fmt.Fprintf(b, "%s_sum{%s} %g\n", base, extra[1:], sum)
		fmt.Fprintf(b, "%s_count{%s} %d\n", base, extra[1:], count)
	}
}

// labelsOf returns the label body of a name like `foo{k="v"}` as `,k="v"`,
// ready for injection next to the le label.
func labelsOf(name string) string {
	i := strings.IndexByte(name, '{')
	if i == -1 {
		return ""
	}
	inner := name[i+1 : len(name)-1]
	if inner == "" {
		return ""
	}
	return "," + inner
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(r.Render()))
	})
}
