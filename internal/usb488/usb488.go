// Package usb488 implements the stateless USB488 subclass operations:
// capability coalescing, the REN_CONTROL/GOTO_LOCAL/
// LOCAL_LOCKOUT control requests, the TRIGGER bulk message, and the
// READ_STATUS_BYTE control transfer. The interrupt-wait portion of
// READ_STB lives with the device/handle lifecycle because
// it touches shared wait-point state this package does not own.
package usb488

import (
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
)

// CoalesceCaps derives the cached usb488Caps byte from a GET_CAPABILITIES
// reply's interface and device capability bytes.
func CoalesceCaps(ifaceCaps, devCaps byte) byte {
	return (ifaceCaps & uapi.Cap488IfaceMask) | ((devCaps & uapi.Cap488DevMask) << 4)
}

// HasSimple reports whether the coalesced capability byte advertises the
// SIMPLE bit required by REN_CONTROL, GOTO_LOCAL, and LOCAL_LOCKOUT.
func HasSimple(caps byte) bool {
	return caps&uapi.Cap488Simple != 0
}

// GetCapabilities issues GET_CAPABILITIES and returns the raw 0x18-byte
// reply: status byte, then the USBTMC interface/device capability bytes
// at offsets 4 and 5 and the USB488 pair at offsets 14 and 15. Callers
// extract the USB488 pair and pass it to CoalesceCaps.
func GetCapabilities(t interfaces.Transport, ifnum uint16, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, 0x18)
	_, err := t.ControlIn(uapi.TypeClass|uapi.RecipIface, uapi.ReqGetCapabilities, 0, ifnum, buf, timeout)
	if err != nil {
		return nil, err
	}
	if buf[0] != uapi.StatusSuccess {
		return nil, &opError{"GET_CAPABILITIES: reply did not begin with SUCCESS"}
	}
	return buf, nil
}

// RenControl issues the REN_CONTROL request with the user's boolean as
// wValue.
func RenControl(t interfaces.Transport, ifnum uint16, enable bool, timeout time.Duration) error {
	var v uint16
	if enable {
		v = 1
	}
	return simple1ByteReply(t, uapi.Req488RenControl, v, ifnum, timeout)
}

// GoToLocal issues the GOTO_LOCAL request.
func GoToLocal(t interfaces.Transport, ifnum uint16, timeout time.Duration) error {
	return simple1ByteReply(t, uapi.Req488GoToLocal, 0, ifnum, timeout)
}

// LocalLockout issues the LOCAL_LOCKOUT request.
func LocalLockout(t interfaces.Transport, ifnum uint16, timeout time.Duration) error {
	return simple1ByteReply(t, uapi.Req488LocalLockout, 0, ifnum, timeout)
}

func simple1ByteReply(t interfaces.Transport, request byte, value, index uint16, timeout time.Duration) error {
	buf := make([]byte, 1)
	_, err := t.ControlIn(uapi.TypeClass|uapi.RecipIface, request, value, index, buf, timeout)
	if err != nil {
		return err
	}
	if buf[0] != uapi.StatusSuccess {
		return &opError{"unexpected status in reply"}
	}
	return nil
}

// ReadStatusByteControl issues READ_STATUS_BYTE and returns the 3-byte
// reply {status, bTag echo, status byte}; callers extract the status
// byte at buf[2] when there is no interrupt-in endpoint.
func ReadStatusByteControl(t interfaces.Transport, ifnum uint16, iinBTag byte, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, 3)
	_, err := t.ControlIn(uapi.TypeClass|uapi.RecipIface, uapi.Req488ReadStatusByte, uint16(iinBTag), ifnum, buf, timeout)
	if err != nil {
		return nil, err
	}
	if buf[0] != uapi.StatusSuccess {
		return nil, &opError{"READ_STATUS_BYTE: unexpected status"}
	}
	return buf, nil
}

// Trigger emits the 12-byte USB488 TRIGGER bulk-out message stamped with
// tag. The caller allocates the tag and records it as the last-write tag.
func Trigger(t interfaces.Transport, tag byte, timeout time.Duration) error {
	buf := [uapi.HeaderLen]byte{}
	buf[0] = uapi.MsgTrigger
	buf[1] = tag
	buf[2] = tag ^ 0xFF
	_, err := t.BulkOut(buf[:], timeout)
	return err
}

type opError struct{ msg string }

func (e *opError) Error() string { return e.msg }

// IsProtocolError reports whether err is a USB488 status-reply violation.
func IsProtocolError(err error) bool {
	_, ok := err.(*opError)
	return ok
}
