package uapi

import "encoding/binary"

// Header is the 12-byte USBTMC bulk header:
//
//	[0]    MsgID
//	[1]    bTag
//	[2]    bTag XOR 0xFF
//	[3]    reserved, 0
//	[4:8]  TransferSize, little-endian u32
//	[8]    Attributes
//	[9]    TermChar
//	[10:12] reserved, 0
type Header struct {
	MsgID        byte
	Tag          byte
	TransferSize uint32
	Attributes   byte
	TermChar     byte
}

// Encode writes h into a fresh 12-byte header.
func Encode(h Header) [HeaderLen]byte {
	var buf [HeaderLen]byte
	buf[0] = h.MsgID
	buf[1] = h.Tag
	buf[2] = h.Tag ^ 0xFF
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], h.TransferSize)
	buf[8] = h.Attributes
	buf[9] = h.TermChar
	buf[10] = 0
	buf[11] = 0
	return buf
}

// Decode parses the first 12 bytes of buf into a Header. The caller must
// ensure len(buf) >= HeaderLen.
func Decode(buf []byte) Header {
	return Header{
		MsgID:        buf[0],
		Tag:          buf[1],
		TransferSize: binary.LittleEndian.Uint32(buf[4:8]),
		Attributes:   buf[8],
		TermChar:     buf[9],
	}
}

// EOM reports whether the end-of-message attribute bit is set.
func (h Header) EOM() bool {
	return h.Attributes&AttrEOM != 0
}

// TermCharEnabled reports whether the term-char attribute bit is set.
func (h Header) TermCharEnabled() bool {
	return h.Attributes&AttrTermCharEnabled != 0
}

// Pad returns the number of zero bytes needed so that total is a multiple
// of 4.
func Pad(total int) int {
	rem := total % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}
