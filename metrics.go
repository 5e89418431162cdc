package nvmekv

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Op identifies a KV operation kind in the metrics table.
type Op int

const (
	OpStore Op = iota
	OpRetrieve
	OpDelete
	OpExist
	OpList
	OpSelect
	numOps
)

// String returns the op's label as exported to Prometheus.
func (o Op) String() string {
	switch o {
	case OpStore:
		return "store"
	case OpRetrieve:
		return "retrieve"
	case OpDelete:
		return "delete"
	case OpExist:
		return "exist"
	case OpList:
		return "list"
	case OpSelect:
		return "select"
	default:
		return "unknown"
	}
}

// movesBytes reports whether the op's unit counter is a byte count. LIST's
// unit is keys returned; DELETE and EXIST move nothing.
func (o Op) movesBytes() bool {
	return o == OpStore || o == OpRetrieve || o == OpSelect
}

// LatencyBuckets are the histogram bucket upper bounds in nanoseconds,
// 1us to 10s with logarithmic spacing. An op slower than the last bound
// lands in the last bucket.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// bucketIndex locates the histogram bucket for one latency sample.
func bucketIndex(latencyNs uint64) int {
	for i, bound := range LatencyBuckets {
		if latencyNs <= bound {
			return i
		}
	}
	return numLatencyBuckets - 1
}

// opStats is one row of the per-op counter table. Units are bytes moved
// for STORE/RETRIEVE/SELECT and keys returned for LIST; units stay zero
// for DELETE and EXIST.
type opStats struct {
	ops       atomic.Uint64
	errors    atomic.Uint64
	units     atomic.Uint64
	latencyNs atomic.Uint64
	buckets   [numLatencyBuckets]atomic.Uint64
}

// Metrics tracks per-operation statistics for a KV runtime: one counter
// row per op kind, a task queue high-water mark, and lifecycle timestamps.
type Metrics struct {
	stats         [numOps]opStats
	maxQueueDepth atomic.Uint32
	startTime     atomic.Int64
	stopTime      atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.startTime.Store(time.Now().UnixNano())
	return m
}

// Record adds one operation to the table. units is the op's natural unit
// (bytes or keys) and only counts on success; failures count as errors.
func (m *Metrics) Record(op Op, units uint64, latencyNs uint64, success bool) {
	s := &m.stats[op]
	s.ops.Add(1)
	if success {
		s.units.Add(units)
	} else {
		s.errors.Add(1)
	}
	s.latencyNs.Add(latencyNs)
	s.buckets[bucketIndex(latencyNs)].Add(1)
}

// RecordQueueDepth tracks the task queue high-water mark.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	for {
		current := m.maxQueueDepth.Load()
		if depth <= current || m.maxQueueDepth.CompareAndSwap(current, depth) {
			return
		}
	}
}

// Stop marks the runtime as stopped, freezing the uptime clock.
func (m *Metrics) Stop() {
	m.stopTime.Store(time.Now().UnixNano())
}

// Reset clears the table (useful for testing).
func (m *Metrics) Reset() {
	for op := range m.stats {
		s := &m.stats[op]
		s.ops.Store(0)
		s.errors.Store(0)
		s.units.Store(0)
		s.latencyNs.Store(0)
		for i := range s.buckets {
			s.buckets[i].Store(0)
		}
	}
	m.maxQueueDepth.Store(0)
	m.startTime.Store(time.Now().UnixNano())
	m.stopTime.Store(0)
}

// OpSnapshot is one op's row in a snapshot.
type OpSnapshot struct {
	Ops          uint64
	Errors       uint64
	Units        uint64 // bytes or keys, per the op
	AvgLatencyNs uint64
}

// MetricsSnapshot is a point-in-time view of the table.
type MetricsSnapshot struct {
	PerOp         [numOps]OpSnapshot
	MaxQueueDepth uint32
	UptimeNs      uint64

	// Aggregates across all ops
	TotalOps         uint64
	TotalErrors      uint64
	ErrorRate        float64 // percentage of failed operations
	LatencyHistogram [numLatencyBuckets]uint64
}

// Op returns the snapshot row for an op kind.
func (s MetricsSnapshot) Op(op Op) OpSnapshot {
	return s.PerOp[op]
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		MaxQueueDepth: m.maxQueueDepth.Load(),
	}

	for op := Op(0); op < numOps; op++ {
		s := &m.stats[op]
		row := OpSnapshot{
			Ops:    s.ops.Load(),
			Errors: s.errors.Load(),
			Units:  s.units.Load(),
		}
		if row.Ops > 0 {
			row.AvgLatencyNs = s.latencyNs.Load() / row.Ops
		}
		snap.PerOp[op] = row
		snap.TotalOps += row.Ops
		snap.TotalErrors += row.Errors
		for i := range s.buckets {
			snap.LatencyHistogram[i] += s.buckets[i].Load()
		}
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalOps) * 100.0
	}

	start := m.startTime.Load()
	if stop := m.stopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	return snap
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveStore(uint64, uint64, bool)    {}
func (NoOpObserver) ObserveRetrieve(uint64, uint64, bool) {}
func (NoOpObserver) ObserveDelete(uint64, bool)           {}
func (NoOpObserver) ObserveExist(uint64, bool)            {}
func (NoOpObserver) ObserveList(uint64, uint64, bool)     {}
func (NoOpObserver) ObserveSelect(uint64, uint64, bool)   {}
func (NoOpObserver) ObserveQueueDepth(uint32)             {}

// MetricsObserver implements Observer by recording into a Metrics table.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveStore(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.Record(OpStore, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRetrieve(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.Record(OpRetrieve, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveDelete(latencyNs uint64, success bool) {
	o.metrics.Record(OpDelete, 0, latencyNs, success)
}

func (o *MetricsObserver) ObserveExist(latencyNs uint64, success bool) {
	o.metrics.Record(OpExist, 0, latencyNs, success)
}

func (o *MetricsObserver) ObserveList(keys uint64, latencyNs uint64, success bool) {
	o.metrics.Record(OpList, keys, latencyNs, success)
}

func (o *MetricsObserver) ObserveSelect(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.Record(OpSelect, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

// Compile-time interface checks
var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)

// Collector exposes a Metrics as a prometheus.Collector so embedders can
// register the runtime on their existing registry.
type Collector struct {
	metrics *Metrics

	opsDesc     *prometheus.Desc
	errorsDesc  *prometheus.Desc
	bytesDesc   *prometheus.Desc
	keysDesc    *prometheus.Desc
	latencyDesc *prometheus.Desc
	queueDesc   *prometheus.Desc
}

// NewCollector creates a collector over the given metrics.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		metrics: m,
		opsDesc: prometheus.NewDesc(
			"nvmekv_operations_total",
			"Total KV operations by kind",
			[]string{"op"}, nil),
		errorsDesc: prometheus.NewDesc(
			"nvmekv_errors_total",
			"Total failed KV operations by kind",
			[]string{"op"}, nil),
		bytesDesc: prometheus.NewDesc(
			"nvmekv_bytes_total",
			"Total bytes moved by kind",
			[]string{"op"}, nil),
		keysDesc: prometheus.NewDesc(
			"nvmekv_listed_keys_total",
			"Total keys returned by LIST commands",
			nil, nil),
		latencyDesc: prometheus.NewDesc(
			"nvmekv_latency_avg_ns",
			"Average operation latency in nanoseconds by kind",
			[]string{"op"}, nil),
		queueDesc: prometheus.NewDesc(
			"nvmekv_queue_depth_max",
			"Maximum observed task queue depth",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.opsDesc
	ch <- c.errorsDesc
	ch <- c.bytesDesc
	ch <- c.keysDesc
	ch <- c.latencyDesc
	ch <- c.queueDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	for op := Op(0); op < numOps; op++ {
		row := snap.Op(op)
		label := op.String()
		ch <- prometheus.MustNewConstMetric(c.opsDesc, prometheus.CounterValue, float64(row.Ops), label)
		ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(row.Errors), label)
		ch <- prometheus.MustNewConstMetric(c.latencyDesc, prometheus.GaugeValue, float64(row.AvgLatencyNs), label)
		if op.movesBytes() {
			ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue, float64(row.Units), label)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.keysDesc, prometheus.CounterValue, float64(snap.Op(OpList).Units))
	ch <- prometheus.MustNewConstMetric(c.queueDesc, prometheus.GaugeValue, float64(snap.MaxQueueDepth))
}

// Compile-time interface check
var _ prometheus.Collector = (*Collector)(nil)
