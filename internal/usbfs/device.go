// Package usbfs implements the USB transport facade over
// the Linux usbdevfs character device (/dev/bus/usb/BBB/DDD), using raw
// ioctl calls for control and bulk transfers and URB submit/reap for the
// interrupt-in pipe.
package usbfs

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is a usbdevfs-backed USB transport for a single interface.
type Device struct {
	fd      int
	bulkIn  byte // endpoint address, direction bit set
	bulkOut byte
	intrIn  byte
	hasIntr bool

	mu      sync.Mutex // serializes ioctl submission only, not protocol state
	intrBuf []byte
	pending *urb
}

// Config describes the endpoints Open should bind to.
type Config struct {
	Path           string
	BulkInAddr     byte
	BulkOutAddr    byte
	IntrInAddr     byte
	HasInterruptIn bool
}

// Open opens the usbdevfs node at cfg.Path and returns a bound Device.
func Open(cfg Config) (*Device, error) {
	fd, err := unix.Open(cfg.Path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("usbfs: open %s: %w", cfg.Path, err)
	}
	return &Device{
		fd:      fd,
		bulkIn:  cfg.BulkInAddr,
		bulkOut: cfg.BulkOutAddr,
		intrIn:  cfg.IntrInAddr,
		hasIntr: cfg.HasInterruptIn,
	}, nil
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}

func timeoutMillis(timeout time.Duration) uint32 {
	if timeout <= 0 {
		return 0
	}
	return uint32(timeout / time.Millisecond)
}

func (d *Device) doControl(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	var dataPtr uint64
	if len(buf) > 0 {
		dataPtr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	xfer := ctrlTransfer{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(buf)),
		Timeout:     timeoutMillis(timeout),
		Data:        dataPtr,
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), usbdevfsControl, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// ControlIn issues a device-to-host control transfer.
func (d *Device) ControlIn(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	return d.doControl(requestType|0x80, request, value, index, buf, timeout)
}

// ControlOut issues a host-to-device control transfer.
func (d *Device) ControlOut(requestType, request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	return d.doControl(requestType&^0x80, request, value, index, buf, timeout)
}

func (d *Device) doBulk(endpoint byte, buf []byte, timeout time.Duration) (int, error) {
	var dataPtr uint64
	if len(buf) > 0 {
		dataPtr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	xfer := bulkTransfer{
		Endpoint: uint32(endpoint),
		Length:   uint32(len(buf)),
		Timeout:  timeoutMillis(timeout),
		Data:     dataPtr,
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), usbdevfsBulk, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// BulkOut writes data to the bound bulk-out endpoint.
func (d *Device) BulkOut(data []byte, timeout time.Duration) (int, error) {
	return d.doBulk(d.bulkOut, data, timeout)
}

// BulkIn reads into buf from the bound bulk-in endpoint.
func (d *Device) BulkIn(buf []byte, timeout time.Duration) (int, error) {
	return d.doBulk(d.bulkIn|0x80, buf, timeout)
}

// ClearHalt clears the halt condition on the bulk-in or bulk-out endpoint.
func (d *Device) ClearHalt(dirIn bool) error {
	ep := d.bulkOut
	if dirIn {
		ep = d.bulkIn | 0x80
	}
	epv := uint32(ep)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), usbdevfsClearHalt, uintptr(unsafe.Pointer(&epv)))
	if errno != 0 {
		return errno
	}
	return nil
}

// SubmitInterruptIn submits one interrupt-in URB into buf. It does not
// block for completion; call ReapInterruptIn to wait for it.
func (d *Device) SubmitInterruptIn(buf []byte) error {
	if !d.hasIntr {
		return fmt.Errorf("usbfs: no interrupt-in endpoint bound")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(buf) == 0 {
		return fmt.Errorf("usbfs: empty interrupt buffer")
	}
	d.intrBuf = buf
	u := &urb{
		Type:         urbTypeInterrupt,
		Endpoint:     d.intrIn | 0x80,
		Buffer:       uint64(uintptr(unsafe.Pointer(&buf[0]))),
		BufferLength: int32(len(buf)),
	}
	d.pending = u
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), usbdevfsSubmitURB, uintptr(unsafe.Pointer(u)))
	if errno != 0 {
		d.pending = nil
		return errno
	}
	return nil
}

// ReapInterruptIn blocks until the submitted interrupt-in URB completes
// and returns the number of bytes filled into the buffer passed to
// SubmitInterruptIn.
func (d *Device) ReapInterruptIn() (int, error) {
	var reaped uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), usbdevfsReapURB, uintptr(unsafe.Pointer(&reaped)))
	if errno != 0 {
		return 0, errno
	}

	d.mu.Lock()
	u := d.pending
	d.pending = nil
	d.mu.Unlock()

	if u == nil {
		return 0, fmt.Errorf("usbfs: reaped URB with no pending submission tracked")
	}
	if u.Status != 0 {
		return 0, unix.Errno(-u.Status)
	}
	return int(u.ActualLength), nil
}

// KillInterruptIn discards any in-flight interrupt-in URB.
func (d *Device) KillInterruptIn() error {
	d.mu.Lock()
	u := d.pending
	d.mu.Unlock()
	if u == nil {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), usbdevfsDiscardURB, uintptr(unsafe.Pointer(u)))
	if errno != 0 {
		return errno
	}
	return nil
}
