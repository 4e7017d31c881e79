package probe

import "errors"

// Sentinel errors let callers distinguish failure kinds with errors.Is even
// when a wrapping layer collapses everything else to a single message.
var (
	ErrTransport        = errors.New("probe: transport failure")
	ErrProtocolMismatch = errors.New("probe: protocol mismatch")
	ErrUnsupported      = errors.New("probe: unsupported feature")
	ErrAlignment        = errors.New("probe: alignment error")
	ErrUnknownChip      = errors.New("probe: unknown chip")
	ErrFlashLocked      = errors.New("probe: flash still locked")
	ErrModeMismatch     = errors.New("probe: mode assertion failed")
)
