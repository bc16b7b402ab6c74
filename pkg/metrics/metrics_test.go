package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterRender(t *testing.T) {
	reg := New()
	c := reg.Counter("requests_total", "Total requests.")
	c.Inc()
	c.Add(2)

	out := reg.Render()
	for _, want := range []string{
		"# HELP requests_total Total requests.",
		"# TYPE requests_total counter",
		"requests_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestCounterIsShared(t *testing.T) {
	reg := New()
	reg.Counter("hits_total", "").Inc()
	reg.Counter("hits_total", "").Inc()
	if v := reg.Counter("hits_total", "").Value(); v != 2 {
		t.Errorf("value = %d, want 2", v)
	}
}

func TestGaugeMovesBothWays(t *testing.T) {
	reg := New()
	g := reg.Gauge("inflight", "In-flight requests.")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Errorf("value = %d, want 4", g.Value())
	}
	if !strings.Contains(reg.Render(), "inflight 4") {
		t.Error("gauge value not rendered")
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("hits_total", "tier", "exact"); got != `hits_total{tier="exact"}` {
		t.Errorf("WithLabels = %q", got)
	}
	if got := WithLabels("hits_total", "odd"); got != "hits_total" {
		t.Errorf("odd label pair not ignored: %q", got)
	}
	if got := WithLabels("hits_total"); got != "hits_total" {
		t.Errorf("no labels changed the name: %q", got)
	}
}

func TestLabeledSeriesShareOneFamily(t *testing.T) {
	reg := New()
	reg.Counter(WithLabels("hits_total", "tier", "exact"), "Cache hits.").Inc()
	reg.Counter(WithLabels("hits_total", "tier", "semantic"), "Cache hits.").Add(2)

	out := reg.Render()
	if strings.Count(out, "# TYPE hits_total counter") != 1 {
		t.Errorf("expected one TYPE line per family:\n%s", out)
	}
	if !strings.Contains(out, `hits_total{tier="exact"} 1`) {
		t.Errorf("missing exact series:\n%s", out)
	}
	if !strings.Contains(out, `hits_total{tier="semantic"} 2`) {
		t.Errorf("missing semantic series:\n%s", out)
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	reg := New()
	h := reg.Histogram("latency_seconds", "Latency.", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(0.7)
	h.Observe(100)

	out := reg.Render()
	for _, want := range []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 3`,
		`latency_seconds_bucket{le="10"} 3`,
		`latency_seconds_bucket{le="+Inf"} 4`,
		"latency_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHistogramWithLabels(t *testing.T) {
	reg := New()
	h := reg.Histogram(WithLabels("latency_seconds", "op", "retrieve"), "Latency.", []float64{1})
	h.Observe(0.5)

	out := reg.Render()
	if !strings.Contains(out, `latency_seconds_bucket{le="1",op="retrieve"} 1`) {
		t.Errorf("le label not merged with series labels:\n%s", out)
	}
	if !strings.Contains(out, `latency_seconds_sum{op="retrieve"} 0.5`) {
		t.Errorf("labeled sum missing:\n%s", out)
	}
	if !strings.Contains(out, `latency_seconds_count{op="retrieve"} 1`) {
		t.Errorf("labeled count missing:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	reg := New()
	reg.Counter("up_total", "").Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "up_total 1") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
