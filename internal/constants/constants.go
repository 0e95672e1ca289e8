package constants

import "time"

// Default process-wide configuration.
const (
	// DefaultIOBufferSize is the default scratch buffer size for one bulk
	// operation. Must stay a multiple of 4 and at least 512.
	DefaultIOBufferSize = 4096

	// MinIOBufferSize is the floor io_buffer_size is clamped to.
	MinIOBufferSize = 512

	// DefaultUSBTimeout is the default per-device transfer timeout.
	DefaultUSBTimeout = 5 * time.Second

	// MinTimeout is the floor usb_timeout/per-device timeout is clamped to.
	MinTimeout = 500 * time.Millisecond

	// DefaultTermChar is the termination character used when
	// TermCharEnabled defaults off.
	DefaultTermChar = '\n'
)

// Drain/poll bound shared by every class-request state machine.
const MaxDrain = 100

// DrainPollInterval is the spacing between CHECK_*_STATUS polls issued
// while draining an abort or clear.
const DrainPollInterval = 2 * time.Millisecond
