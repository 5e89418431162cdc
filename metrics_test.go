package nvmekv

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsPerOpRows(t *testing.T) {
	m := NewMetrics()

	m.Record(OpStore, 100, 1000, true)
	m.Record(OpStore, 50, 2000, false)
	m.Record(OpRetrieve, 200, 500, true)
	m.Record(OpDelete, 0, 100, true)
	m.Record(OpExist, 0, 100, false)
	m.Record(OpList, 7, 300, true)
	m.Record(OpSelect, 64, 5000, true)

	snap := m.Snapshot()
	store := snap.Op(OpStore)
	if store.Ops != 2 || store.Units != 100 || store.Errors != 1 {
		t.Errorf("store row: %+v", store)
	}
	if got := snap.Op(OpRetrieve); got.Ops != 1 || got.Units != 200 {
		t.Errorf("retrieve row: %+v", got)
	}
	if got := snap.Op(OpList).Units; got != 7 {
		t.Errorf("list keys = %d, want 7", got)
	}
	if got := snap.Op(OpExist).Errors; got != 1 {
		t.Errorf("exist errors = %d, want 1", got)
	}
	if snap.TotalOps != 7 {
		t.Errorf("TotalOps = %d, want 7", snap.TotalOps)
	}
	if snap.TotalErrors != 2 {
		t.Errorf("TotalErrors = %d, want 2", snap.TotalErrors)
	}
}

// Failed units never count: only errors do.
func TestMetricsUnitsCountOnSuccessOnly(t *testing.T) {
	m := NewMetrics()
	m.Record(OpSelect, 500, 100, false)

	if got := m.Snapshot().Op(OpSelect); got.Units != 0 || got.Errors != 1 {
		t.Errorf("failed select row: %+v", got)
	}
}

func TestMetricsErrorRate(t *testing.T) {
	m := NewMetrics()
	m.Record(OpStore, 0, 100, false)
	m.Record(OpStore, 10, 100, true)
	m.Record(OpStore, 10, 100, true)
	m.Record(OpStore, 10, 100, true)

	if rate := m.Snapshot().ErrorRate; rate != 25.0 {
		t.Errorf("ErrorRate = %f, want 25.0", rate)
	}
}

func TestMetricsAvgLatencyPerOp(t *testing.T) {
	m := NewMetrics()
	m.Record(OpStore, 1, 1000, true)
	m.Record(OpStore, 1, 3000, true)
	m.Record(OpRetrieve, 1, 400, true)

	snap := m.Snapshot()
	if got := snap.Op(OpStore).AvgLatencyNs; got != 2000 {
		t.Errorf("store avg latency = %d, want 2000", got)
	}
	if got := snap.Op(OpRetrieve).AvgLatencyNs; got != 400 {
		t.Errorf("retrieve avg latency = %d, want 400", got)
	}
	if got := snap.Op(OpDelete).AvgLatencyNs; got != 0 {
		t.Errorf("idle op avg latency = %d, want 0", got)
	}
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		latencyNs uint64
		want      int
	}{
		{0, 0},
		{1_000, 0},
		{1_001, 1},
		{50_000, 2},
		{5_000_000, 4},
		{10_000_000_000, 7},
		{99_000_000_000, 7}, // beyond the last bound
	}
	for _, tt := range tests {
		if got := bucketIndex(tt.latencyNs); got != tt.want {
			t.Errorf("bucketIndex(%d) = %d, want %d", tt.latencyNs, got, tt.want)
		}
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics()
	m.Record(OpStore, 1, 500, true)
	m.Record(OpRetrieve, 1, 50_000, true)
	m.Record(OpSelect, 1, 5_000_000, true)

	hist := m.Snapshot().LatencyHistogram
	if hist[0] != 1 || hist[2] != 1 || hist[4] != 1 {
		t.Errorf("histogram = %v", hist)
	}
	var total uint64
	for _, n := range hist {
		total += n
	}
	if total != 3 {
		t.Errorf("histogram total = %d, want 3", total)
	}
}

func TestMetricsQueueHighWater(t *testing.T) {
	m := NewMetrics()
	m.RecordQueueDepth(2)
	m.RecordQueueDepth(8)
	m.RecordQueueDepth(4)

	if got := m.Snapshot().MaxQueueDepth; got != 8 {
		t.Errorf("MaxQueueDepth = %d, want 8", got)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.Record(OpStore, 10, 100, true)
	m.RecordQueueDepth(5)
	m.Reset()

	snap := m.Snapshot()
	if snap.TotalOps != 0 || snap.Op(OpStore).Units != 0 || snap.MaxQueueDepth != 0 {
		t.Errorf("metrics not reset: %+v", snap)
	}
}

func TestMetricsObserverForwards(t *testing.T) {
	m := NewMetrics()
	var o Observer = NewMetricsObserver(m)

	o.ObserveStore(10, 100, true)
	o.ObserveList(3, 100, true)
	o.ObserveSelect(20, 100, true)
	o.ObserveDelete(100, false)
	o.ObserveQueueDepth(3)

	snap := m.Snapshot()
	if snap.Op(OpStore).Ops != 1 || snap.Op(OpSelect).Ops != 1 {
		t.Errorf("observer did not forward ops: %+v", snap)
	}
	if snap.Op(OpList).Units != 3 {
		t.Errorf("list keys = %d, want 3", snap.Op(OpList).Units)
	}
	if snap.Op(OpDelete).Errors != 1 {
		t.Errorf("delete errors = %d, want 1", snap.Op(OpDelete).Errors)
	}
	if snap.MaxQueueDepth != 3 {
		t.Errorf("MaxQueueDepth = %d, want 3", snap.MaxQueueDepth)
	}
}

func TestPrometheusCollector(t *testing.T) {
	m := NewMetrics()
	m.Record(OpStore, 10, 100, true)
	m.Record(OpList, 4, 100, true)

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(m)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := make(map[string]int)
	for _, fam := range families {
		found[fam.GetName()] = len(fam.GetMetric())
	}
	for _, name := range []string{
		"nvmekv_operations_total",
		"nvmekv_errors_total",
		"nvmekv_bytes_total",
		"nvmekv_listed_keys_total",
		"nvmekv_latency_avg_ns",
		"nvmekv_queue_depth_max",
	} {
		if found[name] == 0 {
			t.Errorf("metric family %s not exported", name)
		}
	}
	// One series per op for the labeled families, byte series only for the
	// ops that move bytes.
	if found["nvmekv_operations_total"] != int(numOps) {
		t.Errorf("operations series = %d, want %d", found["nvmekv_operations_total"], numOps)
	}
	if found["nvmekv_bytes_total"] != 3 {
		t.Errorf("bytes series = %d, want 3", found["nvmekv_bytes_total"])
	}
}
