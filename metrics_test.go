package usbtmc

import (
	"testing"
)

func TestMetricsInitialState(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	if snap.ReadOps != 0 || snap.WriteOps != 0 {
		t.Fatalf("expected zero initial ops, got %+v", snap)
	}
}

func TestMetricsRecordsReadsAndWrites(t *testing.T) {
	m := NewMetrics()
	m.ObserveRead(1024, 1_000_000, true)
	m.ObserveWrite(2048, 2_000_000, true)
	m.ObserveRead(512, 500_000, false)

	snap := m.Snapshot()
	if snap.ReadOps != 2 {
		t.Errorf("expected 2 read ops, got %d", snap.ReadOps)
	}
	if snap.ReadErrors != 1 {
		t.Errorf("expected 1 read error, got %d", snap.ReadErrors)
	}
	if snap.ReadBytes != 1536 {
		t.Errorf("expected 1536 cumulative read bytes, got %d", snap.ReadBytes)
	}
	if snap.WriteOps != 1 || snap.WriteBytes != 2048 {
		t.Errorf("expected 1 write op of 2048 bytes, got %+v", snap)
	}
	if snap.AvgReadLatencyNs == 0 {
		t.Error("expected nonzero average read latency")
	}
}

func TestMetricsRecordsAbortsAndClears(t *testing.T) {
	m := NewMetrics()
	m.ObserveAbort("ABORT_BULK_IN", true)
	m.ObserveAbort("ABORT_BULK_OUT", false)
	m.ObserveClear(true)

	snap := m.Snapshot()
	if snap.AbortOps != 2 || snap.AbortErrors != 1 {
		t.Errorf("expected 2 abort ops with 1 error, got %+v", snap)
	}
	if snap.ClearOps != 1 || snap.ClearErrors != 0 {
		t.Errorf("expected 1 clean clear op, got %+v", snap)
	}
}

func TestMetricsRecordsSTBAndSRQ(t *testing.T) {
	m := NewMetrics()
	m.ObserveReadSTB(100_000, true)
	m.ObserveSRQ()
	m.ObserveSRQ()

	snap := m.Snapshot()
	if snap.STBOps != 1 {
		t.Errorf("expected 1 STB op, got %d", snap.STBOps)
	}
	if snap.SRQCount != 2 {
		t.Errorf("expected 2 SRQ events, got %d", snap.SRQCount)
	}
}

func TestNoOpObserverSatisfiesInterface(t *testing.T) {
	var o Observer = NoOpObserver{}
	o.ObserveRead(1, 1, true)
	o.ObserveWrite(1, 1, true)
	o.ObserveAbort("x", true)
	o.ObserveClear(true)
	o.ObserveReadSTB(1, true)
	o.ObserveSRQ()
}
