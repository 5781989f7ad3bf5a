package observability

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Metrics carries the consistency-core counters. All methods are safe on a nil
// receiver so callers can run unmetered (tests, metrics disabled).
type Metrics struct {
	replicaWriteFailure *CounterVec
	replicaWriteSuccess *CounterVec
	readFallback        *CounterVec
	rollbackFailed      *CounterVec
	replicaQueryLatency *HistogramVec
	verifierRuns        *CounterVec
	backfillMigrated    *CounterVec
	cacheHits           *CounterVec
	cacheMisses         *CounterVec
	apiRequests         *CounterVec
	apiLatency          *HistogramVec
	primaryUp           *Gauge
	replicaUp           *Gauge
}

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func New() *Metrics {
	return &Metrics{
		replicaWriteFailure: NewCounterVec("sg_replica_write_failure_total", "Replica writes that failed, by operation.", []string{"operation"}),
		replicaWriteSuccess: NewCounterVec("sg_replica_write_success_total", "Replica writes that succeeded, by operation.", []string{"operation"}),
		readFallback:        NewCounterVec("sg_read_fallback_total", "Reads served by the primary after a replica error, by operation.", []string{"operation"}),
		rollbackFailed:      NewCounterVec("sg_rollback_failed_total", "Strict-mode compensating deletes that failed, by operation.", []string{"operation"}),
		replicaQueryLatency: NewHistogramVec(
			"sg_replica_query_duration_seconds",
			"Replica query latency in seconds, by operation.",
			[]string{"operation"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		verifierRuns:     NewCounterVec("sg_verifier_runs_total", "Consistency verifier runs, by result.", []string{"result"}),
		backfillMigrated: NewCounterVec("sg_backfill_migrated_total", "Rows upserted into the replica by backfill, by entity.", []string{"entity"}),
		cacheHits:        NewCounterVec("sg_cache_hits_total", "Graph cache hits, by query.", []string{"query"}),
		cacheMisses:      NewCounterVec("sg_cache_misses_total", "Graph cache misses, by query.", []string{"query"}),
		apiRequests:      NewCounterVec("sg_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"sg_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		primaryUp: NewGauge("sg_primary_up", "Primary store health (1 healthy, 0 not)."),
		replicaUp: NewGauge("sg_replica_up", "Replica store health (1 healthy, 0 not)."),
	}
}

func (m *Metrics) IncReplicaWriteFailure(operation string) {
	if m == nil {
		return
	}
	m.replicaWriteFailure.Inc(operation)
}

func (m *Metrics) IncReplicaWriteSuccess(operation string) {
	if m == nil {
		return
	}
	m.replicaWriteSuccess.Inc(operation)
}

func (m *Metrics) IncReadFallback(operation string) {
	if m == nil {
		return
	}
	m.readFallback.Inc(operation)
}

func (m *Metrics) IncRollbackFailed(operation string) {
	if m == nil {
		return
	}
	m.rollbackFailed.Inc(operation)
}

func (m *Metrics) ObserveReplicaQuery(operation string, dur time.Duration) {
	if m == nil {
		return
	}
	m.replicaQueryLatency.Observe(dur.Seconds(), operation)
}

func (m *Metrics) IncVerifierRun(passed bool) {
	if m == nil {
		return
	}
	result := "pass"
	if !passed {
		result = "fail"
	}
	m.verifierRuns.Inc(result)
}

func (m *Metrics) AddBackfillMigrated(entity string, n int64) {
	if m == nil {
		return
	}
	m.backfillMigrated.Add(float64(n), entity)
}

func (m *Metrics) IncCacheHit(query string) {
	if m == nil {
		return
	}
	m.cacheHits.Inc(query)
}

func (m *Metrics) IncCacheMiss(query string) {
	if m == nil {
		return
	}
	m.cacheMisses.Inc(query)
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) SetPrimaryUp(up bool) {
	if m == nil {
		return
	}
	m.primaryUp.Set(boolGauge(up))
}

func (m *Metrics) SetReplicaUp(up bool) {
	if m == nil {
		return
	}
	m.replicaUp.Set(boolGauge(up))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ReadFallbackCount supports tests and the admin status endpoint.
func (m *Metrics) ReadFallbackCount(operation string) float64 {
	if m == nil {
		return 0
	}
	return m.readFallback.Value(operation)
}

func (m *Metrics) ReplicaWriteFailureCount(operation string) float64 {
	if m == nil {
		return 0
	}
	return m.replicaWriteFailure.Value(operation)
}

func (m *Metrics) RollbackFailedCount(operation string) float64 {
	if m == nil {
		return 0
	}
	return m.rollbackFailed.Value(operation)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.replicaWriteFailure,
		m.replicaWriteSuccess,
		m.readFallback,
		m.rollbackFailed,
		m.replicaQueryLatency,
		m.verifierRuns,
		m.backfillMigrated,
		m.cacheHits,
		m.cacheMisses,
		m.apiRequests,
		m.apiLatency,
		m.primaryUp,
		m.replicaUp,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// ---- lightweight metric primitives (Prometheus exposition) ----

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	lbl := labelString(c.labelNames, values)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[lbl]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.val
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}
