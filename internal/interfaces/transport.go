// Package interfaces provides internal interface definitions for the
// usbtmc driver. These are separate from the public interfaces to avoid
// circular imports between the root package and internal packages.
package interfaces

import "time"

// Transport abstracts the USB operations the rest of the driver needs:
// bulk-in, bulk-out, the class/standard control transfer, halt-clearing,
// and interrupt-in URB management. Implementations return a plain error;
// the caller is responsible for wrapping it with context.
type Transport interface {
	ControlIn(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (n int, err error)
	ControlOut(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (n int, err error)
	BulkOut(data []byte, timeout time.Duration) (n int, err error)
	BulkIn(buf []byte, timeout time.Duration) (n int, err error)
	ClearHalt(dirIn bool) error
	SubmitInterruptIn(buf []byte) error
	ReapInterruptIn() (n int, err error)
	KillInterruptIn() error
	Close() error
}

// Logger is the interface the protocol packages log through, satisfied by
// internal/logging.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer records operation counts and latencies for metrics. Methods
// must be safe to call from both user-goroutine I/O and the interrupt
// dispatcher.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveAbort(kind string, success bool)
	ObserveClear(success bool)
	ObserveReadSTB(latencyNs uint64, success bool)
	ObserveSRQ()
}
