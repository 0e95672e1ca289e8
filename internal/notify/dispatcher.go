// Package notify implements the interrupt/notification dispatcher: a
// persistent interrupt-in URB, re-armed from its own
// completion, routing STB-valid and SRQ notifications to callbacks
// supplied by the device/handle lifecycle layer. It never touches the
// per-device I/O exclusion lock — only the callbacks it invokes may take
// the short device lock.
package notify

import (
	"context"
	"errors"
	"sync"
	"syscall"

	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
)

// Dispatcher owns the interrupt-in URB lifecycle for one device.
type Dispatcher struct {
	Transport interfaces.Transport
	BufSize   int
	Logger    interfaces.Logger

	// OnSTBNotify fires for a leading byte > 0x81: a status-byte-valid
	// notification carrying the low 7 bits of the tag and the byte value.
	OnSTBNotify func(tag, value byte)
	// OnSRQ fires for a leading byte == 0x81: a service request,
	// broadcast to every open handle by the caller.
	OnSRQ func(value byte)
	// OnUnknown fires for any other leading byte.
	OnUnknown func(lead byte)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the dispatch loop. It returns immediately; errors are
// delivered only through logging: a re-arm submission failure is
// logged, not retried.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop cancels the dispatch loop and kills any in-flight URB.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	_ = d.Transport.KillInterruptIn()
	d.wg.Wait()
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Debugf(format, args...)
	}
}

func (d *Dispatcher) warnf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Warnf(format, args...)
	}
}

func isTeardownError(err error) bool {
	return errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.ESHUTDOWN) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EPROTO) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EOVERFLOW)
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()

	buf := make([]byte, d.BufSize)
	if err := d.Transport.SubmitInterruptIn(buf); err != nil {
		d.warnf("interrupt-in submit failed: %v", err)
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := d.Transport.ReapInterruptIn()
		if err != nil {
			if isTeardownError(err) {
				d.logf("interrupt-in teardown: %v", err)
				return
			}
			d.warnf("interrupt-in reap error, re-arming: %v", err)
			if rearmErr := d.Transport.SubmitInterruptIn(buf); rearmErr != nil {
				d.warnf("interrupt-in re-arm failed: %v", rearmErr)
				return
			}
			continue
		}

		if n > 0 {
			d.dispatch(buf[:n])
		}

		if err := d.Transport.SubmitInterruptIn(buf); err != nil {
			d.warnf("interrupt-in re-arm failed: %v", err)
			return
		}
	}
}

func (d *Dispatcher) dispatch(buf []byte) {
	lead := buf[0]
	switch {
	case lead == uapi.NotifySRQ:
		var value byte
		if len(buf) > 1 {
			value = buf[1]
		}
		if d.OnSRQ != nil {
			d.OnSRQ(value)
		}
	case lead > uapi.NotifySTBThresh:
		var value byte
		if len(buf) > 1 {
			value = buf[1]
		}
		if d.OnSTBNotify != nil {
			d.OnSTBNotify(lead&0x7F, value)
		}
	default:
		d.logf("interrupt-in: unrecognized leading byte 0x%02x", lead)
		if d.OnUnknown != nil {
			d.OnUnknown(lead)
		}
	}
}
