// Package classreq implements the device-class request state machines:
// INITIATE/CHECK loops for ABORT_BULK_IN, ABORT_BULK_OUT,
// and CLEAR, each with a bounded pending poll. ABORT_BULK_IN and CLEAR
// also run a bounded bulk-in drain; ABORT_BULK_OUT and CLEAR finish by
// clearing the bulk-out halt. ABORT_BULK_OUT does no drain, and
// ABORT_BULK_IN clears no halt.
package classreq

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/ehrlich-b/go-usbtmc/internal/constants"
	"github.com/ehrlich-b/go-usbtmc/internal/interfaces"
	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
)

// Context carries everything a class-request state machine needs to
// address control and bulk transfers for one device.
type Context struct {
	Transport   interfaces.Transport
	BulkInAddr  byte
	BulkOutAddr byte
	Ifnum       uint16
	IOBufSize   int
	Timeout     time.Duration
	Logger      interfaces.Logger
}

func (c *Context) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debugf(format, args...)
	}
}

// drain reads full-size packets from bulk-in until a short packet is
// observed or the bound is exceeded, returning an error in the latter
// case.
func drain(c *Context) error {
	buf := make([]byte, c.IOBufSize)
	for i := 0; i < constants.MaxDrain; i++ {
		n, err := c.Transport.BulkIn(buf, c.Timeout)
		if err != nil {
			return err
		}
		if n < len(buf) {
			return nil
		}
	}
	return &protocolError{msg: "drain did not terminate within MAX_DRAIN cycles"}
}

type protocolError struct{ msg string }

func (e *protocolError) Error() string { return e.msg }

// IsProtocolError reports whether err originated from a class-request
// state machine protocol violation (bad status, drain exhaustion).
func IsProtocolError(err error) bool {
	_, ok := err.(*protocolError)
	return ok
}

func pollLoop(c *Context, poll func() (status byte, buf []byte, err error), onPending func(buf []byte) error) error {
	attempt := 0
	op := func() error {
		attempt++
		status, buf, err := poll()
		if err != nil {
			return backoff.Permanent(err)
		}
		switch status {
		case uapi.StatusSuccess:
			return nil
		case uapi.StatusPending:
			if onPending != nil {
				if err := onPending(buf); err != nil {
					return backoff.Permanent(err)
				}
			}
			return &protocolError{msg: "still pending"}
		default:
			return backoff.Permanent(&protocolError{msg: "unexpected status in poll reply"})
		}
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(constants.DrainPollInterval), constants.MaxDrain)
	if err := backoff.Retry(op, bo); err != nil {
		if attempt >= constants.MaxDrain {
			return &protocolError{msg: "poll did not terminate within MAX_DRAIN cycles"}
		}
		return err
	}
	return nil
}

// AbortBulkIn runs the ABORT_BULK_IN state machine.
func AbortBulkIn(c *Context, ts *uapi.TagState) error {
	reply := make([]byte, 2)
	_, err := c.Transport.ControlIn(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkIn,
		uint16(ts.BTagLastRead), uint16(c.BulkInAddr), reply, c.Timeout)
	if err != nil {
		return err
	}
	if reply[0] == uapi.StatusFailed {
		c.logf("ABORT_BULK_IN: INITIATE returned FAILED, treating as no-op success")
		return nil
	}
	if reply[0] != uapi.StatusSuccess {
		return &protocolError{msg: "INITIATE_ABORT_BULK_IN: unexpected status"}
	}

	if err := drain(c); err != nil {
		return err
	}

	return pollLoop(c, func() (byte, []byte, error) {
		buf := make([]byte, 8)
		_, err := c.Transport.ControlIn(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqCheckAbortBulkInStatus,
			0, uint16(c.BulkInAddr), buf, c.Timeout)
		if err != nil {
			return 0, nil, err
		}
		return buf[0], buf, nil
	}, func(buf []byte) error {
		if buf[1] == 1 {
			return drain(c)
		}
		return nil
	})
}

// AbortBulkOut runs the ABORT_BULK_OUT state machine.
func AbortBulkOut(c *Context, ts *uapi.TagState) error {
	reply := make([]byte, 2)
	_, err := c.Transport.ControlIn(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkOut,
		uint16(ts.BTagLastWrite), uint16(c.BulkOutAddr), reply, c.Timeout)
	if err != nil {
		return err
	}
	if reply[0] != uapi.StatusSuccess {
		return &protocolError{msg: "INITIATE_ABORT_BULK_OUT: unexpected status"}
	}

	if err := pollLoop(c, func() (byte, []byte, error) {
		buf := make([]byte, 8)
		_, err := c.Transport.ControlIn(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqCheckAbortBulkOutStatus,
			0, uint16(c.BulkOutAddr), buf, c.Timeout)
		if err != nil {
			return 0, nil, err
		}
		return buf[0], buf, nil
	}, nil); err != nil {
		return err
	}

	return c.Transport.ClearHalt(false)
}

// Clear runs the CLEAR state machine.
func Clear(c *Context, ts *uapi.TagState) error {
	reply := make([]byte, 2)
	_, err := c.Transport.ControlIn(uapi.TypeClass|uapi.RecipIface, uapi.ReqInitiateClear,
		0, c.Ifnum, reply, c.Timeout)
	if err != nil {
		return err
	}
	if reply[0] != uapi.StatusSuccess {
		return &protocolError{msg: "INITIATE_CLEAR: unexpected status"}
	}

	if err := pollLoop(c, func() (byte, []byte, error) {
		buf := make([]byte, 2)
		_, err := c.Transport.ControlIn(uapi.TypeClass|uapi.RecipIface, uapi.ReqCheckClearStatus,
			0, c.Ifnum, buf, c.Timeout)
		if err != nil {
			return 0, nil, err
		}
		return buf[0], buf, nil
	}, func(buf []byte) error {
		if buf[1] == 1 {
			return drain(c)
		}
		return nil
	}); err != nil {
		return err
	}

	return c.Transport.ClearHalt(false)
}

// ClearInHalt wraps the transport halt-clear for the bulk-in endpoint.
func ClearInHalt(c *Context) error {
	return c.Transport.ClearHalt(true)
}

// ClearOutHalt wraps the transport halt-clear for the bulk-out endpoint.
func ClearOutHalt(c *Context) error {
	return c.Transport.ClearHalt(false)
}
