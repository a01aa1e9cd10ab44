package gopher

import "errors"

// Rejection categories. Every rejection is a normal per-connection outcome and
// is turned into an error menu by the Handler.
var (
	// ErrUnsupportedSelector is returned for Gopher+ (tab-delimited) selectors.
	ErrUnsupportedSelector = errors.New("unsupported selector")

	// ErrOutOfBounds is returned when a selector resolves outside the document
	// root, or contains ".." in chroot mode.
	ErrOutOfBounds = errors.New("out of bounds path")

	// ErrNonPublic is returned for missing, symlinked, non world-readable
	// targets and for directories without a valid gophermap.
	ErrNonPublic = errors.New("nonpublic path")

	// ErrSelectorTooLong is returned when the request line exceeds the limit.
	ErrSelectorTooLong = errors.New("selector too long")
)
