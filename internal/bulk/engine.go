// Package bulk implements the bulk message engine: chunked,
// padded, tag-stamped writes and header-validated, multi-packet reads,
// with auto-abort on failure.
package bulk

import (
	"time"

	"github.com/ehrlich-b/go-usbtmc/internal/classreq"
	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
)

// Config carries the per-call parameters the engine needs beyond the tag
// state: the bound transport, the scratch buffer size, the device
// timeout, and the handle-scoped defaults that shape a transfer.
type Config struct {
	Transport    interfaces.Transport
	ClassReq     *classreq.Context // nil disables auto-abort
	IOBufferSize int
	Timeout      time.Duration
	Logger       interfaces.Logger

	TermChar        byte
	TermCharEnabled bool
	EOMVal          bool
	AutoAbort       bool
}

func (c *Config) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debugf(format, args...)
	}
}

// Write sends data as one or more DEV_DEP_MSG_OUT transfers, chunked to
// fit io_buffer_size-12 bytes each, padded to a multiple of 4, with EOM
// set on the final chunk only. Returns the number of user bytes sent.
func Write(c *Config, ts *uapi.TagState, data []byte) (int, error) {
	chunkCap := c.IOBufferSize - uapi.HeaderLen
	if chunkCap <= 0 {
		return 0, newProtoErr("io_buffer_size too small for a header")
	}

	sent := 0
	for sent < len(data) || (len(data) == 0 && sent == 0) {
		end := sent + chunkCap
		if end > len(data) {
			end = len(data)
		}
		chunk := data[sent:end]
		last := end == len(data)

		tag := ts.AdvanceBulk()
		ts.BTagLastWrite = tag

		var attrs byte
		if last && c.EOMVal {
			attrs = uapi.AttrEOM
		}
		hdr := uapi.Encode(uapi.Header{
			MsgID:        uapi.MsgDevDepMsgOut,
			Tag:          tag,
			TransferSize: uint32(len(chunk)),
			Attributes:   attrs,
		})

		pad := uapi.Pad(uapi.HeaderLen + len(chunk))
		packet := make([]byte, 0, uapi.HeaderLen+len(chunk)+pad)
		packet = append(packet, hdr[:]...)
		packet = append(packet, chunk...)
		packet = append(packet, make([]byte, pad)...)

		if err := sendAll(c, packet); err != nil {
			if c.AutoAbort && c.ClassReq != nil {
				if abortErr := classreq.AbortBulkOut(c.ClassReq, ts); abortErr != nil {
					c.logf("auto-abort ABORT_BULK_OUT failed: %v", abortErr)
				}
			}
			return sent, err
		}

		sent = end
		if len(data) == 0 {
			break
		}
	}
	return sent, nil
}

// sendAll writes packet to the bulk-out endpoint, retrying the unsent
// tail until the whole packet is sent or an error occurs.
func sendAll(c *Config, packet []byte) error {
	off := 0
	for off < len(packet) {
		n, err := c.Transport.BulkOut(packet[off:], c.Timeout)
		if err != nil {
			return err
		}
		if n <= 0 {
			return newProtoErr("bulk-out made no progress")
		}
		off += n
	}
	return nil
}

// Read issues REQUEST_DEV_DEP_MSG_IN for up to len(buf) bytes and
// assembles the reply, validating the header on the first packet only.
func Read(c *Config, ts *uapi.TagState, buf []byte) (int, error) {
	tag := ts.AdvanceBulk()
	ts.BTagLastWrite = tag
	ts.BTagLastRead = tag

	var attrs byte
	if c.TermCharEnabled {
		attrs = uapi.AttrTermCharEnabled
	}
	hdr := uapi.Encode(uapi.Header{
		MsgID:        uapi.MsgRequestDevDepMsgIn,
		Tag:          tag,
		TransferSize: uint32(len(buf)),
		Attributes:   attrs,
		TermChar:     c.TermChar,
	})

	if err := sendAll(c, hdr[:]); err != nil {
		if c.AutoAbort && c.ClassReq != nil {
			if abortErr := classreq.AbortBulkIn(c.ClassReq, ts); abortErr != nil {
				c.logf("auto-abort ABORT_BULK_IN failed: %v", abortErr)
			}
		}
		return 0, err
	}

	done := 0
	remaining := len(buf)
	first := true
	scratch := make([]byte, c.IOBufferSize)

	for remaining > 0 {
		n, err := c.Transport.BulkIn(scratch, c.Timeout)
		if err != nil {
			if c.AutoAbort && c.ClassReq != nil {
				if abortErr := classreq.AbortBulkIn(c.ClassReq, ts); abortErr != nil {
					c.logf("auto-abort ABORT_BULK_IN failed: %v", abortErr)
				}
			}
			return done, err
		}

		payload := scratch[:n]
		eomReached := false

		if first {
			first = false
			if n < uapi.HeaderLen {
				return done, abortAndReturn(c, ts, newProtoErr("short packet: header truncated"))
			}
			h := uapi.Decode(payload)
			if h.MsgID != uapi.MsgDevDepMsgIn {
				return done, abortAndReturn(c, ts, newProtoErr("unexpected MsgID in reply header"))
			}
			if h.Tag != ts.BTagLastWrite {
				return done, abortAndReturn(c, ts, newProtoErr("bTag mismatch in reply header"))
			}
			nChar := int(h.TransferSize)
			if nChar > remaining {
				return done, abortAndReturn(c, ts, newProtoErr("n_characters exceeds requested transfer"))
			}
			remaining = min(remaining, nChar)
			payload = payload[uapi.HeaderLen:]
			if len(payload) > remaining {
				payload = payload[:remaining]
			}
			copy(buf[done:], payload)
			done += len(payload)
			remaining -= len(payload)

			if h.EOM() && len(payload)+uapi.HeaderLen >= n && done >= nChar {
				eomReached = true
			}
		} else {
			if len(payload) > remaining {
				payload = payload[:remaining]
			}
			copy(buf[done:], payload)
			done += len(payload)
			remaining -= len(payload)
		}

		if eomReached || n == 0 {
			remaining = 0
		}
	}

	return done, nil
}

func abortAndReturn(c *Config, ts *uapi.TagState, err error) error {
	if c.AutoAbort && c.ClassReq != nil {
		if abortErr := classreq.AbortBulkIn(c.ClassReq, ts); abortErr != nil {
			c.logf("auto-abort ABORT_BULK_IN failed: %v", abortErr)
		}
	}
	return err
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type protoErr struct{ msg string }

func (e *protoErr) Error() string { return e.msg }

func newProtoErr(msg string) error { return &protoErr{msg: msg} }

// IsProtocolError reports whether err is a header/consistency violation
// raised by the bulk engine itself (as opposed to a transport error).
func IsProtocolError(err error) bool {
	_, ok := err.(*protoErr)
	return ok
}
