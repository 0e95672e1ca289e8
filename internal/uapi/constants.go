// Package uapi holds the wire-level constants and struct layouts for the
// USBTMC/USB488 protocol: bulk header fields, class-request codes, status
// byte values, and capability bits.
package uapi

// Bulk header message IDs.
const (
	MsgDevDepMsgOut       = 1 // OUT: host -> device data
	MsgRequestDevDepMsgIn = 2 // OUT: host asks device to send
	MsgDevDepMsgIn        = 2 // IN: device -> host data
	MsgTrigger            = 128
)

// HeaderLen is the fixed length of a USBTMC bulk header in bytes.
const HeaderLen = 12

// Transfer attribute bits used in header byte [8].
const (
	AttrEOM             = 0x01 // DEV_DEP_MSG_OUT: end of message
	AttrTermCharEnabled = 0x02 // REQUEST_DEV_DEP_MSG_IN: use TermChar
)

// Class-specific request codes (USBTMC spec table 16/17), issued as
// USB_DIR_IN | USB_TYPE_CLASS control transfers recipient endpoint or
// interface as noted per call site.
const (
	ReqInitiateAbortBulkOut    = 1
	ReqCheckAbortBulkOutStatus = 2
	ReqInitiateAbortBulkIn     = 3
	ReqCheckAbortBulkInStatus  = 4
	ReqInitiateClear           = 5
	ReqCheckClearStatus        = 6
	ReqGetCapabilities         = 7
	ReqIndicatorPulse          = 64
)

// USB488 subclass request codes (recipient: interface).
const (
	Req488ReadStatusByte = 128
	Req488RenControl     = 160
	Req488GoToLocal      = 161
	Req488LocalLockout   = 162
)

// Status byte values common to every class-request status reply.
const (
	StatusSuccess = 0x01
	StatusPending = 0x02
	StatusFailed  = 0x80
)

// GET_CAPABILITIES reply offsets: the 0x18-byte reply carries the USBTMC
// interface and device capability bytes, then the USB488 pair.
const (
	CapsOffTMCIface = 4
	CapsOffTMCDev   = 5
	CapsOff488Iface = 14
	CapsOff488Dev   = 15
)

// USBTMC device capability bits (reply byte 5).
const (
	CapDevTermChar = 0x01 // device supports TermChar-terminated bulk-in
)

// USB488 interface capability bits (low 3 bits of usb488Caps).
const (
	Cap488Trigger    = 0x01
	Cap488Simple     = 0x02
	Cap488RenControl = 0x04
	Cap488IfaceMask  = 0x07
)

// USB488 device capability bits (high nibble of usb488Caps, shifted <<4).
const (
	Cap488DT1      = 0x01
	Cap488RL1      = 0x02
	Cap488SR1      = 0x04
	Cap488FullSCPI = 0x08
	Cap488DevMask  = 0x0F
)

// Interrupt notification leading bytes.
const (
	NotifySRQ       = 0x81 // SRQ notification
	NotifySTBThresh = 0x81 // STB-with-valid-tag if leading byte > this
)

// MaxDrain bounds the bulk-in drain loop performed during abort/clear.
const MaxDrain = 100

// MinTimeout is the minimum allowed device timeout in milliseconds.
const MinTimeout = 500

// Tag ranges.
const (
	BulkTagMin = 1
	BulkTagMax = 255
	IntrTagMin = 2
	IntrTagMax = 127
)
