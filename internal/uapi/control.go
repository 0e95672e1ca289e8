package uapi

import "unsafe"

// CtrlRequest is the generic control-transfer passthrough payload: a
// standard USB setup packet plus a data pointer, mirroring the
// bRequestType/bRequest/wValue/wIndex/wLength naming used throughout the
// USB specification.
type CtrlRequest struct {
	BRequestType uint8
	BRequest     uint8
	WValue       uint16
	WIndex       uint16
	WLength      uint16
	Data         uintptr
}

// Compile-time size check: the fixed portion of CtrlRequest excluding the
// platform-width Data pointer is 8 bytes.
var _ [8]byte = [unsafe.Sizeof(struct {
	BRequestType uint8
	BRequest     uint8
	WValue       uint16
	WIndex       uint16
	WLength      uint16
}{})]byte{}

// Standard control-transfer direction/type/recipient bits (USB 2.0 spec
// table 9-2), used when building class requests. The transport issues
// every class control transfer as USB_DIR_IN even where the operation is
// conceptually OUT, because every one of these requests reads back a
// status byte. Abort requests address the endpoint recipient; clear,
// capability, and USB488 requests address the interface recipient.
const (
	DirIn         = 0x80
	DirOut        = 0x00
	TypeClass     = 0x20
	RecipDevice   = 0x00
	RecipIface    = 0x01
	RecipEndpoint = 0x02
)
