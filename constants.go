package usbtmc

import (
	"github.com/ehrlich-b/go-usbtmc/internal/constants"
)

// Re-exported process-wide configuration defaults.
const (
	DefaultIOBufferSize = constants.DefaultIOBufferSize
	MinIOBufferSize     = constants.MinIOBufferSize
	DefaultUSBTimeout   = constants.DefaultUSBTimeout
	MinTimeout          = constants.MinTimeout
	DefaultTermChar     = constants.DefaultTermChar
	MaxDrain            = constants.MaxDrain
)
