package gopher

// Item types the server emits itself (RFC 1436 error plus the common 'i' and
// 'h' extensions). Gophermap items pass their type through untouched.
const (
	TypeError = '3'
	TypeInfo  = 'i'
	TypeHTML  = 'h'
)

const (
	// GophermapFile is the file that makes a directory servable as a menu.
	GophermapFile = "gophermap"

	// DefaultGopherPort is appended to three-field gophermap lines.
	DefaultGopherPort = "70"

	// ChunkSize is the block size used when streaming file bodies.
	ChunkSize = 64 * 1024

	// DefaultMaxSelectorLength bounds the request line when the config leaves it unset.
	DefaultMaxSelectorLength = 4096

	// URLPrefix marks selectors that carry an external URL (h-type links).
	URLPrefix = "URL:"
)

const (
	lineEnd    = "\r\n"
	terminator = "\r\n.\r\n"

	errorHost = "error.host"
	errorPort = "1"

	infoSelector = "/"
	infoHost     = "-"
	infoPort     = "0"
)
