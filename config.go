package usbtmc

import (
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
)

// ClampConfig enforces the process-wide configuration invariants:
// io_buffer_size is rounded down to a multiple of 4 and floored at 512;
// usb_timeout is floored at MinTimeout.
func ClampConfig(timeout time.Duration, ioBufferSize int) (time.Duration, int) {
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	if ioBufferSize < MinIOBufferSize {
		ioBufferSize = MinIOBufferSize
	}
	ioBufferSize -= ioBufferSize % 4
	return timeout, ioBufferSize
}

// GetTimeout returns the device's current transfer timeout.
func (d *Device) GetTimeout() time.Duration {
	d.defaultsMu.Lock()
	defer d.defaultsMu.Unlock()
	return d.timeout
}

// SetTimeout updates the device's transfer timeout, rejecting values
// below MinTimeout and leaving the stored value unchanged on rejection.
func (d *Device) SetTimeout(timeout time.Duration) error {
	if timeout < MinTimeout {
		return NewError("SET_TIMEOUT", ErrCodeInvalidArgument, "timeout below minimum")
	}
	d.defaultsMu.Lock()
	d.timeout = timeout
	d.defaultsMu.Unlock()
	return nil
}

// GetEOM returns the device-wide EOM-on-last-chunk setting.
func (d *Device) GetEOM() bool {
	d.defaultsMu.Lock()
	defer d.defaultsMu.Unlock()
	return d.eomVal
}

// SetEOM enables or disables EOM on the final chunk of a write. Since
// this is a Go bool there is no invalid numeric value to reject, so
// SetEOM never errors.
func (d *Device) SetEOM(enable bool) {
	d.defaultsMu.Lock()
	d.eomVal = enable
	d.defaultsMu.Unlock()
}

// TermCharCapable reports whether the device advertises the
// termination-character bit in its USBTMC device capabilities.
func (d *Device) TermCharCapable() bool {
	return d.capsRaw[1]&uapi.CapDevTermChar != 0
}

// ConfigureTermChar sets TermChar/TermCharEnabled on the device's
// defaults (new handles will snapshot these). Enabling requires the
// device's termination-character capability bit.
func (d *Device) ConfigureTermChar(termChar byte, enabled bool) error {
	if enabled && !d.TermCharCapable() {
		return NewError("CONFIG_TERMCHAR", ErrCodeInvalidArgument, "device lacks termination-character capability")
	}
	d.defaultsMu.Lock()
	d.termChar = termChar
	d.termCharEnabled = enabled
	d.defaultsMu.Unlock()
	return nil
}

// TermChar returns the device-default termination character and whether
// termination-on-character is enabled for new handles, the read side of
// the sysfs-style TermChar/TermCharEnabled attributes.
func (d *Device) TermChar() (termChar byte, enabled bool) {
	d.defaultsMu.Lock()
	defer d.defaultsMu.Unlock()
	return d.termChar, d.termCharEnabled
}

// SetAutoAbort configures the device-default auto-abort-on-error
// behavior snapshotted by new handles.
func (d *Device) SetAutoAbort(enable bool) {
	d.defaultsMu.Lock()
	d.autoAbort = enable
	d.defaultsMu.Unlock()
}

// AutoAbort reports the device-default auto-abort setting.
func (d *Device) AutoAbort() bool {
	d.defaultsMu.Lock()
	defer d.defaultsMu.Unlock()
	return d.autoAbort
}

// ConfigureTermChar on a Handle updates only this handle's snapshot.
func (h *Handle) ConfigureTermChar(termChar byte, enabled bool) error {
	if enabled && !h.dev.TermCharCapable() {
		return NewError("CONFIG_TERMCHAR", ErrCodeInvalidArgument, "device lacks termination-character capability")
	}
	h.termChar = termChar
	h.termCharEnabled = enabled
	return nil
}

// SetAutoAbort configures this handle's auto-abort-on-error behavior.
func (h *Handle) SetAutoAbort(enable bool) {
	h.autoAbort = enable
}

// AutoAbort reports this handle's current auto-abort setting.
func (h *Handle) AutoAbort() bool {
	return h.autoAbort
}

// IndicatorPulse asks the device to blink its front-panel indicator, a
// 1-byte-reply class control transfer like REN_CONTROL/GOTO_LOCAL.
func (h *Handle) IndicatorPulse() error {
	if err := h.checkAlive("INDICATOR_PULSE"); err != nil {
		return err
	}
	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()
	if h.dev.isZombie() {
		return NewDeviceError("INDICATOR_PULSE", "", ErrCodeNotPresent, "device disconnected")
	}
	buf := make([]byte, 1)
	_, err := h.dev.transport.ControlIn(uapi.TypeClass|uapi.RecipIface, uapi.ReqIndicatorPulse, 0, h.dev.ifnum, buf, h.dev.GetTimeout())
	if err != nil {
		return WrapError("INDICATOR_PULSE", err)
	}
	if buf[0] != uapi.StatusSuccess {
		return WrapError("INDICATOR_PULSE", NewError("INDICATOR_PULSE", ErrCodeProtocol, "unexpected status in reply"))
	}
	return nil
}

// Capabilities returns the four raw GET_CAPABILITIES bytes and the
// coalesced usb488Caps byte.
func (d *Device) Capabilities() (raw [4]byte, coalesced byte) {
	return d.capsRaw, d.usb488Caps
}

// CtrlRequest is the generic control-transfer passthrough payload.
type CtrlRequest = uapi.CtrlRequest

// ControlPassthrough copies data to/from the control endpoint using the
// caller-supplied bRequestType, bRequest, wValue and wIndex. The transfer
// length is len(data); req.WLength and req.Data are not read. An empty
// data slice is handled explicitly by issuing the transfer with a
// one-byte scratch buffer rather than skipping it, so a short
// status-only reply still has somewhere to land.
func (h *Handle) ControlPassthrough(req CtrlRequest, data []byte) (int, error) {
	if err := h.checkAlive("CTRL_REQUEST"); err != nil {
		return 0, err
	}
	buf := data
	if len(buf) == 0 {
		buf = make([]byte, 1)
	}

	h.dev.ioLock.Lock()
	defer h.dev.ioLock.Unlock()
	if h.dev.isZombie() {
		return 0, NewDeviceError("CTRL_REQUEST", "", ErrCodeNotPresent, "device disconnected")
	}

	timeout := h.dev.GetTimeout()
	var n int
	var err error
	if req.BRequestType&uapi.DirIn != 0 {
		n, err = h.dev.transport.ControlIn(req.BRequestType, req.BRequest, req.WValue, req.WIndex, buf, timeout)
	} else {
		n, err = h.dev.transport.ControlOut(req.BRequestType, req.BRequest, req.WValue, req.WIndex, buf, timeout)
	}
	if err != nil {
		return n, WrapError("CTRL_REQUEST", err)
	}
	return n, nil
}
