package usbtmc

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/bulk"
	"github.com/ehrlich-b/go-usbtmc/internal/classreq"
	"github.com/ehrlich-b/go-usbtmc/internal/usb488"
)

// Handle is a per-open-file-descriptor record: a reference on its
// Device plus snapshotted defaults and per-handle SRQ state set by the
// interrupt dispatcher.
type Handle struct {
	dev *Device

	termChar        byte
	termCharEnabled bool
	autoAbort       bool

	srqAssertedFlag int32  // atomic bool, set by Device.onSRQ
	srqByteVal      uint32 // atomic byte value

	// srqHandler, when non-nil, fires once per SRQ notification. Guarded
	// by the device's listLock; invoked outside it.
	srqHandler func(stb byte)
}

// SubscribeSRQ registers fn to run on each service request the device
// raises, the async-notification analogue of a SIGIO subscription. The
// callback runs on the interrupt dispatch path and must not block; a nil
// fn unsubscribes.
func (h *Handle) SubscribeSRQ(fn func(stb byte)) {
	h.dev.listLock.Lock()
	h.srqHandler = fn
	h.dev.listLock.Unlock()
}

// Close removes the handle from its device's handle list and drops its
// reference.
func (h *Handle) Close() {
	h.dev.close(h)
}

func (h *Handle) checkAlive(op string) error {
	if h.dev.isZombie() {
		return NewDeviceError(op, "", ErrCodeNotPresent, "device disconnected")
	}
	return nil
}

func (h *Handle) bulkConfig() *bulk.Config {
	return &bulk.Config{
		Transport:       h.dev.transport,
		ClassReq:        h.dev.classCtx(),
		IOBufferSize:    h.dev.ioBufferSize,
		Timeout:         h.dev.GetTimeout(),
		Logger:          h.dev.logger,
		TermChar:        h.termChar,
		TermCharEnabled: h.termCharEnabled,
		EOMVal:          h.dev.GetEOM(),
		AutoAbort:       h.autoAbort,
	}
}

// Read implements the bulk message engine's read path.
func (h *Handle) Read(buf []byte) (int, error) {
	if err := h.checkAlive("read"); err != nil {
		return 0, err
	}
	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()

	if h.dev.isZombie() {
		return 0, NewDeviceError("read", "", ErrCodeNotPresent, "device disconnected")
	}

	start := time.Now()
	n, err := bulk.Read(h.bulkConfig(), h.dev.tags, buf)
	h.dev.observer.ObserveRead(uint64(n), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return n, classifyBulkErr("read", err)
	}
	return n, nil
}

// Write implements the bulk message engine's write path.
func (h *Handle) Write(data []byte) (int, error) {
	if err := h.checkAlive("write"); err != nil {
		return 0, err
	}
	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()

	if h.dev.isZombie() {
		return 0, NewDeviceError("write", "", ErrCodeNotPresent, "device disconnected")
	}

	start := time.Now()
	n, err := bulk.Write(h.bulkConfig(), h.dev.tags, data)
	h.dev.observer.ObserveWrite(uint64(n), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return n, classifyBulkErr("write", err)
	}
	return n, nil
}

// Query writes cmd and reads back up to len(buf) bytes of reply, a thin
// convenience composition of Write and Read.
func (h *Handle) Query(cmd string, buf []byte) (int, error) {
	if _, err := h.Write([]byte(cmd)); err != nil {
		return 0, err
	}
	return h.Read(buf)
}

func classifyBulkErr(op string, err error) error {
	if bulk.IsProtocolError(err) || classreq.IsProtocolError(err) {
		return WrapError(op, NewError(op, ErrCodeProtocol, err.Error()))
	}
	return WrapError(op, err)
}

// ReadSTB implements READ_STB: test-and-clear srqAsserted first;
// otherwise issue READ_STATUS_BYTE and, if an interrupt-in endpoint
// exists, wait on the shared interrupt wait point.
func (h *Handle) ReadSTB() (byte, error) {
	if err := h.checkAlive("READ_STB"); err != nil {
		return 0, err
	}

	if atomic.CompareAndSwapInt32(&h.srqAssertedFlag, 1, 0) {
		return byte(atomic.LoadUint32(&h.srqByteVal)), nil
	}

	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()

	if h.dev.isZombie() {
		return 0, NewDeviceError("READ_STB", "", ErrCodeNotPresent, "device disconnected")
	}

	defer h.dev.tags.AdvanceIntr()

	timeout := h.dev.GetTimeout()
	atomic.StoreInt32(&h.dev.iinDataValid, 0)
	start := time.Now()
	reply, err := usb488.ReadStatusByteControl(h.dev.transport, h.dev.ifnum, h.dev.tags.IinBTag, timeout)
	if err != nil {
		h.dev.observer.ObserveReadSTB(uint64(time.Since(start).Nanoseconds()), false)
		return 0, WrapError("READ_STB", err)
	}

	if !h.dev.hasIntr {
		h.dev.observer.ObserveReadSTB(uint64(time.Since(start).Nanoseconds()), true)
		return reply[2], nil
	}

	if !h.dev.waitSTBValid(timeout) {
		h.dev.observer.ObserveReadSTB(uint64(time.Since(start).Nanoseconds()), false)
		return 0, NewError("READ_STB", ErrCodeTimeout, "timed out waiting for STB notification")
	}
	if h.dev.isZombie() {
		return 0, NewDeviceError("READ_STB", "", ErrCodeNotPresent, "device disconnected")
	}

	h.dev.listLock.Lock()
	gotTag := h.dev.bNotify1 & 0x7F
	stb := h.dev.bNotify2
	h.dev.listLock.Unlock()

	if gotTag != h.dev.tags.IinBTag {
		if h.dev.logger != nil {
			h.dev.logger.Warnf("READ_STB: interrupt tag mismatch, got %d want %d", gotTag, h.dev.tags.IinBTag)
		}
	}
	h.dev.observer.ObserveReadSTB(uint64(time.Since(start).Nanoseconds()), true)
	return stb, nil
}

// RenControl implements USB488_REN_CONTROL.
func (h *Handle) RenControl(enable bool) error {
	return h.simple488Op("REN_CONTROL", func() error {
		return usb488.RenControl(h.dev.transport, h.dev.ifnum, enable, h.dev.GetTimeout())
	})
}

// GoToLocal implements USB488_GOTO_LOCAL.
func (h *Handle) GoToLocal() error {
	return h.simple488Op("GOTO_LOCAL", func() error {
		return usb488.GoToLocal(h.dev.transport, h.dev.ifnum, h.dev.GetTimeout())
	})
}

// LocalLockout implements USB488_LOCAL_LOCKOUT.
func (h *Handle) LocalLockout() error {
	return h.simple488Op("LOCAL_LOCKOUT", func() error {
		return usb488.LocalLockout(h.dev.transport, h.dev.ifnum, h.dev.GetTimeout())
	})
}

func (h *Handle) simple488Op(op string, fn func() error) error {
	if err := h.checkAlive(op); err != nil {
		return err
	}
	if !usb488.HasSimple(h.dev.usb488Caps) {
		return NewError(op, ErrCodeInvalidArgument, "device lacks the SIMPLE capability")
	}
	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()
	if h.dev.isZombie() {
		return NewDeviceError(op, "", ErrCodeNotPresent, "device disconnected")
	}
	if err := fn(); err != nil {
		return WrapError(op, err)
	}
	return nil
}

// Trigger implements USB488_TRIGGER.
func (h *Handle) Trigger() error {
	if err := h.checkAlive("TRIGGER"); err != nil {
		return err
	}
	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()
	if h.dev.isZombie() {
		return NewDeviceError("TRIGGER", "", ErrCodeNotPresent, "device disconnected")
	}
	tag := h.dev.tags.AdvanceBulk()
	h.dev.tags.BTagLastWrite = tag
	if err := usb488.Trigger(h.dev.transport, tag, h.dev.GetTimeout()); err != nil {
		return WrapError("TRIGGER", err)
	}
	return nil
}

// AbortBulkIn implements the ABORT_BULK_IN control operation.
func (h *Handle) AbortBulkIn() error {
	return h.runClassOp("ABORT_BULK_IN", func(ctx *classreq.Context) error {
		return classreq.AbortBulkIn(ctx, h.dev.tags)
	})
}

// AbortBulkOut implements the ABORT_BULK_OUT control operation.
func (h *Handle) AbortBulkOut() error {
	return h.runClassOp("ABORT_BULK_OUT", func(ctx *classreq.Context) error {
		return classreq.AbortBulkOut(ctx, h.dev.tags)
	})
}

// Clear implements the CLEAR control operation.
func (h *Handle) Clear() error {
	return h.runClassOp("CLEAR", func(ctx *classreq.Context) error {
		return classreq.Clear(ctx, h.dev.tags)
	})
}

// ClearInHalt implements the CLEAR_IN_HALT control operation.
func (h *Handle) ClearInHalt() error {
	return h.runClassOp("CLEAR_IN_HALT", classreq.ClearInHalt)
}

// ClearOutHalt implements the CLEAR_OUT_HALT control operation.
func (h *Handle) ClearOutHalt() error {
	return h.runClassOp("CLEAR_OUT_HALT", classreq.ClearOutHalt)
}

func (h *Handle) runClassOp(op string, fn func(*classreq.Context) error) error {
	if err := h.checkAlive(op); err != nil {
		return err
	}
	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()
	if h.dev.isZombie() {
		return NewDeviceError(op, "", ErrCodeNotPresent, "device disconnected")
	}
	err := fn(h.dev.classCtx())
	ok := err == nil
	switch op {
	case "CLEAR":
		h.dev.observer.ObserveClear(ok)
	default:
		h.dev.observer.ObserveAbort(op, ok)
	}
	if err != nil {
		if classreq.IsProtocolError(err) {
			return WrapError(op, NewError(op, ErrCodeProtocol, err.Error()))
		}
		return WrapError(op, err)
	}
	return nil
}

// Poll reports whether an SRQ is pending for this handle, or a hangup
// if the device has gone zombie. The wait-point channel is captured
// before the flag checks so a broadcast racing the entry is not lost.
func (h *Handle) Poll(timeout time.Duration) (srq bool, hangup bool) {
	ch := h.dev.wait.channel()
	if h.dev.isZombie() {
		return false, true
	}
	if atomic.LoadInt32(&h.srqAssertedFlag) == 1 {
		return true, false
	}
	if timeout > 0 {
		select {
		case <-ch:
		case <-time.After(timeout):
		}
	}
	if h.dev.isZombie() {
		return false, true
	}
	return atomic.LoadInt32(&h.srqAssertedFlag) == 1, false
}
