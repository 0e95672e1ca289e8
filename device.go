// Package usbtmc is a host-side driver for the USB Test & Measurement
// Class (USBTMC), including the USB488 subclass. It multiplexes
// SCPI-style bulk message traffic, interrupt-driven SRQ/STB notification,
// and control-endpoint management requests (abort, clear, trigger,
// remote/local) over a single USBTMC-compliant USB interface.
package usbtmc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/classreq"
	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
	"github.com/ehrlich-b/go-usbtmc/internal/notify"
	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
	"github.com/ehrlich-b/go-usbtmc/internal/usb488"
)

// waitPoint implements the shared interrupt wait point used by READ_STB
// and by poll: broadcast wakes every blocked waiter. Waiters must
// capture the channel before checking their wake condition so a
// broadcast landing between the two is observed on the captured channel
// rather than lost to the replacement.
type waitPoint struct {
	mu sync.Mutex
	ch chan struct{}
}

func newWaitPoint() *waitPoint {
	return &waitPoint{ch: make(chan struct{})}
}

func (w *waitPoint) channel() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

func (w *waitPoint) broadcast() {
	w.mu.Lock()
	close(w.ch)
	w.ch = make(chan struct{})
	w.mu.Unlock()
}

// AttachConfig describes a USBTMC interface at attach time: the
// endpoints, interface number, an already-bound Transport, and the
// process-wide tunables clamped into effect.
type AttachConfig struct {
	Transport     interfaces.Transport
	Ifnum         uint16
	BulkInAddr    byte
	BulkOutAddr   byte
	HasIntr       bool
	IntrInAddr    byte
	IntrMaxPacket int

	Timeout      time.Duration
	IOBufferSize int

	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Device is the shared-ownership device record.
type Device struct {
	transport interfaces.Transport
	ifnum     uint16
	bulkIn    byte
	bulkOut   byte
	hasIntr   bool
	intrIn    byte
	intrMax   int

	tags *uapi.TagState

	capsRaw    [4]byte
	usb488Caps byte

	// defaults inherited by new handles
	defaultsMu      sync.Mutex
	termChar        byte
	termCharEnabled bool
	autoAbort       bool
	eomVal          bool
	timeout         time.Duration
	ioBufferSize    int

	bNotify1     byte
	bNotify2     byte
	iinDataValid int32 // atomic one-shot flag

	ioLock   sync.Mutex // the single per-device I/O exclusion lock
	listLock sync.Mutex // the short device lock: handle list + SRQ flags
	handles  []*Handle
	wait     *waitPoint

	refCount int32
	zombie   int32 // atomic bool

	dispatcher *notify.Dispatcher
	logger     interfaces.Logger
	observer   interfaces.Observer

	disconnectOnce sync.Once
}

// Attach allocates a Device, discovers capabilities, and arms the
// interrupt dispatcher if an interrupt-in endpoint is present. The
// attach ref (the device's initial reference) is released by calling
// Disconnect.
func Attach(cfg AttachConfig) (*Device, error) {
	timeout, ioBufSize := ClampConfig(cfg.Timeout, cfg.IOBufferSize)

	d := &Device{
		transport:       cfg.Transport,
		ifnum:           cfg.Ifnum,
		bulkIn:          cfg.BulkInAddr,
		bulkOut:         cfg.BulkOutAddr,
		hasIntr:         cfg.HasIntr,
		intrIn:          cfg.IntrInAddr,
		intrMax:         cfg.IntrMaxPacket,
		tags:            uapi.NewTagState(),
		termChar:        DefaultTermChar,
		termCharEnabled: false,
		autoAbort:       false,
		eomVal:          true,
		timeout:         timeout,
		ioBufferSize:    ioBufSize,
		wait:            newWaitPoint(),
		refCount:        1,
		logger:          cfg.Logger,
		observer:        cfg.Observer,
	}
	if d.observer == nil {
		d.observer = NoOpObserver{}
	}

	caps, err := usb488.GetCapabilities(d.transport, d.ifnum, d.timeout)
	if err != nil {
		return nil, WrapError("ATTACH", err)
	}
	d.capsRaw[0] = caps[uapi.CapsOffTMCIface]
	d.capsRaw[1] = caps[uapi.CapsOffTMCDev]
	d.capsRaw[2] = caps[uapi.CapsOff488Iface]
	d.capsRaw[3] = caps[uapi.CapsOff488Dev]
	d.usb488Caps = usb488.CoalesceCaps(d.capsRaw[2], d.capsRaw[3])

	if d.hasIntr {
		d.dispatcher = &notify.Dispatcher{
			Transport: d.transport,
			BufSize:   d.intrMax,
			Logger:    d.logger,
			OnSTBNotify: func(tag, value byte) {
				d.onSTBNotify(tag, value)
			},
			OnSRQ: func(value byte) {
				d.onSRQ(value)
			},
		}
		d.ref() // the armed interrupt URB holds a reference
		d.dispatcher.Start(context.Background())
	}

	return d, nil
}

func (d *Device) ref() {
	atomic.AddInt32(&d.refCount, 1)
}

func (d *Device) unref() {
	if atomic.AddInt32(&d.refCount, -1) == 0 {
		_ = d.transport.Close()
	}
}

func (d *Device) isZombie() bool {
	return atomic.LoadInt32(&d.zombie) != 0
}

// waitSTBValid blocks until iinDataValid becomes true, the device goes
// zombie, or timeout elapses, returning false only on timeout. The
// notification may land between the control transfer completing and the
// waiter arriving here, so the flag is consulted before every block.
func (d *Device) waitSTBValid(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		ch := d.wait.channel()
		if atomic.LoadInt32(&d.iinDataValid) != 0 || d.isZombie() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-ch:
		case <-time.After(remaining):
			return atomic.LoadInt32(&d.iinDataValid) != 0
		}
	}
}

// Disconnect marks the device a zombie, wakes every blocked waiter, tears
// down the interrupt URB, and drops the attach reference. It is safe
// to call more than once.
func (d *Device) Disconnect() {
	d.disconnectOnce.Do(func() {
		atomic.StoreInt32(&d.zombie, 1)
		d.wait.broadcast()
		if d.dispatcher != nil {
			d.dispatcher.Stop()
			d.unref() // drop the interrupt URB's reference
		}
		d.unref() // drop the attach reference
	})
}

func (d *Device) classCtx() *classreq.Context {
	return &classreq.Context{
		Transport:   d.transport,
		BulkInAddr:  d.bulkIn,
		BulkOutAddr: d.bulkOut,
		Ifnum:       d.ifnum,
		IOBufSize:   d.ioBufferSize,
		Timeout:     d.GetTimeout(),
		Logger:      d.logger,
	}
}

// onSTBNotify handles a > 0x81 interrupt notification: store the
// values and wake the shared wait point. It never takes the I/O lock.
func (d *Device) onSTBNotify(tag, value byte) {
	d.listLock.Lock()
	d.bNotify1 = 0x80 | tag
	d.bNotify2 = value
	atomic.StoreInt32(&d.iinDataValid, 1)
	d.listLock.Unlock()
	d.wait.broadcast()
}

// onSRQ handles a 0x81 SRQ notification: set srqByte and srqAsserted
// on every open handle under the device lock, then wake all waiters.
func (d *Device) onSRQ(value byte) {
	var subscribed []func(byte)
	d.listLock.Lock()
	for _, h := range d.handles {
		atomic.StoreInt32(&h.srqAssertedFlag, 1)
		atomic.StoreUint32(&h.srqByteVal, uint32(value))
		if h.srqHandler != nil {
			subscribed = append(subscribed, h.srqHandler)
		}
	}
	d.observer.ObserveSRQ()
	d.listLock.Unlock()
	for _, fn := range subscribed {
		fn(value)
	}
	d.wait.broadcast()
}

// Open creates a Handle snapshotting the device's current defaults and
// joins the device's handle list.
func (d *Device) Open() *Handle {
	d.defaultsMu.Lock()
	h := &Handle{
		dev:             d,
		termChar:        d.termChar,
		termCharEnabled: d.termCharEnabled,
		autoAbort:       d.autoAbort,
	}
	d.defaultsMu.Unlock()

	d.ref()
	d.listLock.Lock()
	d.handles = append(d.handles, h)
	d.listLock.Unlock()
	return h
}

// close removes h from the device's handle list and drops its reference.
func (d *Device) close(h *Handle) {
	d.listLock.Lock()
	for i, cand := range d.handles {
		if cand == h {
			d.handles = append(d.handles[:i], d.handles[i+1:]...)
			break
		}
	}
	d.listLock.Unlock()
	d.unref()
}

// OpenHandleCount reports the number of currently open handles, for
// diagnostics.
func (d *Device) OpenHandleCount() int {
	d.listLock.Lock()
	defer d.listLock.Unlock()
	return len(d.handles)
}
