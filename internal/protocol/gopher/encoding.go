package gopher

import (
	"strconv"
	"unicode/utf8"
)

// encodeCharRef encodes s as 7-bit ASCII. Runes outside ASCII become numeric
// character references ("&#233;"), so no content is lost on the wire.
// Invalid UTF-8 bytes are encoded as U+FFFD.
func encodeCharRef(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		out = append(out, "&#"...)
		out = strconv.AppendInt(out, int64(r), 10)
		out = append(out, ';')
	}
	return out
}

// encodeReplace encodes s as 7-bit ASCII, replacing other runes with '?'.
func encodeReplace(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}
