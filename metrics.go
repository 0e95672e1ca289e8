package usbtmc

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
)

// Observer records operation counts and latencies, called from both user
// goroutines (read/write/abort/clear/STB) and the interrupt dispatcher
// (SRQ). Implementations must be safe for concurrent use.
type Observer = interfaces.Observer

// NoOpObserver discards every observation; it is the default when no
// Observer is supplied at attach.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveAbort(string, bool)         {}
func (NoOpObserver) ObserveClear(bool)                 {}
func (NoOpObserver) ObserveReadSTB(uint64, bool)       {}
func (NoOpObserver) ObserveSRQ()                       {}

// latencyBuckets are log-spaced bucket upper bounds in nanoseconds,
// 10us .. 10s.
var latencyBuckets = [...]uint64{
	10_000, 100_000, 1_000_000, 10_000_000,
	100_000_000, 1_000_000_000, 10_000_000_000,
}

// Metrics is a concrete Observer that accumulates atomic counters per
// operation kind and a coarse latency histogram for reads and writes.
type Metrics struct {
	readOps, readBytes, readErrors    uint64
	writeOps, writeBytes, writeErrors uint64
	abortOps, abortErrors             uint64
	clearOps, clearErrors             uint64
	stbOps, stbErrors                 uint64
	srqCount                          uint64

	readLatencyBuckets [len(latencyBuckets) + 1]uint64
	readLatencyTotal   uint64
	readLatencyCount   uint64

	writeLatencyBuckets [len(latencyBuckets) + 1]uint64
	writeLatencyTotal   uint64
	writeLatencyCount   uint64

	startedAt time.Time
}

// NewMetrics returns a ready-to-use Metrics observer.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func recordLatency(buckets *[len(latencyBuckets) + 1]uint64, total, count *uint64, ns uint64) {
	atomic.AddUint64(total, ns)
	atomic.AddUint64(count, 1)
	for i, upper := range latencyBuckets {
		if ns <= upper {
			atomic.AddUint64(&buckets[i], 1)
			return
		}
	}
	atomic.AddUint64(&buckets[len(latencyBuckets)], 1)
}

func (m *Metrics) ObserveRead(bytes, latencyNs uint64, success bool) {
	atomic.AddUint64(&m.readOps, 1)
	atomic.AddUint64(&m.readBytes, bytes)
	if !success {
		atomic.AddUint64(&m.readErrors, 1)
	}
	recordLatency(&m.readLatencyBuckets, &m.readLatencyTotal, &m.readLatencyCount, latencyNs)
}

func (m *Metrics) ObserveWrite(bytes, latencyNs uint64, success bool) {
	atomic.AddUint64(&m.writeOps, 1)
	atomic.AddUint64(&m.writeBytes, bytes)
	if !success {
		atomic.AddUint64(&m.writeErrors, 1)
	}
	recordLatency(&m.writeLatencyBuckets, &m.writeLatencyTotal, &m.writeLatencyCount, latencyNs)
}

func (m *Metrics) ObserveAbort(kind string, success bool) {
	atomic.AddUint64(&m.abortOps, 1)
	if !success {
		atomic.AddUint64(&m.abortErrors, 1)
	}
}

func (m *Metrics) ObserveClear(success bool) {
	atomic.AddUint64(&m.clearOps, 1)
	if !success {
		atomic.AddUint64(&m.clearErrors, 1)
	}
}

func (m *Metrics) ObserveReadSTB(latencyNs uint64, success bool) {
	atomic.AddUint64(&m.stbOps, 1)
	if !success {
		atomic.AddUint64(&m.stbErrors, 1)
	}
}

func (m *Metrics) ObserveSRQ() {
	atomic.AddUint64(&m.srqCount, 1)
}

// MetricsSnapshot is a point-in-time copy of a Metrics observer's
// counters, safe to read without racing the live observer.
type MetricsSnapshot struct {
	ReadOps, ReadBytes, ReadErrors      uint64
	WriteOps, WriteBytes, WriteErrors   uint64
	AbortOps, AbortErrors               uint64
	ClearOps, ClearErrors               uint64
	STBOps, STBErrors                   uint64
	SRQCount                            uint64
	AvgReadLatencyNs, AvgWriteLatencyNs uint64
	Uptime                              time.Duration
}

// Snapshot computes a point-in-time view of the observer's counters for
// diagnostics or a status endpoint.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		ReadOps:     atomic.LoadUint64(&m.readOps),
		ReadBytes:   atomic.LoadUint64(&m.readBytes),
		ReadErrors:  atomic.LoadUint64(&m.readErrors),
		WriteOps:    atomic.LoadUint64(&m.writeOps),
		WriteBytes:  atomic.LoadUint64(&m.writeBytes),
		WriteErrors: atomic.LoadUint64(&m.writeErrors),
		AbortOps:    atomic.LoadUint64(&m.abortOps),
		AbortErrors: atomic.LoadUint64(&m.abortErrors),
		ClearOps:    atomic.LoadUint64(&m.clearOps),
		ClearErrors: atomic.LoadUint64(&m.clearErrors),
		STBOps:      atomic.LoadUint64(&m.stbOps),
		STBErrors:   atomic.LoadUint64(&m.stbErrors),
		SRQCount:    atomic.LoadUint64(&m.srqCount),
		Uptime:      time.Since(m.startedAt),
	}
	if c := atomic.LoadUint64(&m.readLatencyCount); c > 0 {
		s.AvgReadLatencyNs = atomic.LoadUint64(&m.readLatencyTotal) / c
	}
	if c := atomic.LoadUint64(&m.writeLatencyCount); c > 0 {
		s.AvgWriteLatencyNs = atomic.LoadUint64(&m.writeLatencyTotal) / c
	}
	return s
}

var (
	_ Observer = (*Metrics)(nil)
	_ Observer = NoOpObserver{}
)
