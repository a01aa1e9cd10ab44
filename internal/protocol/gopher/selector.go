package gopher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// Request is a decoded and normalised Gopher request line.
type Request struct {
	// Raw is the decoded request line with line endings and surrounding
	// whitespace removed.
	Raw string

	// Selector is Raw with a leading slash ensured. Empty means the root.
	Selector string

	// Relative is Selector without its leading slash.
	Relative string

	// Path is Selector built from the bytes the client sent rather than their
	// ISO-8859-1 decoding, so names stored in any encoding (UTF-8 included)
	// resolve on disk. Selector and Raw stay the text used for logs and menus.
	Path string
}

// ReadSelectorLine reads the request line from r.
//
// The line ends at the first CR or LF, or at EOF. A line longer than max bytes
// yields the bytes read so far together with ErrSelectorTooLong. EOF before any
// byte arrives is returned as io.EOF.
func ReadSelectorLine(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxSelectorLength
	}

	br := bufio.NewReaderSize(r, 512)
	line := make([]byte, 0, 128)

	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return line, nil
			}
			return line, err
		}

		if b == '\r' || b == '\n' {
			return line, nil
		}

		if len(line) == max {
			return line, fmt.Errorf("%w: more than %d bytes", ErrSelectorTooLong, max)
		}
		line = append(line, b)
	}
}

// DecodeSelector decodes a request line as ISO-8859-1 and trims it.
//
// Every byte maps to a rune, so decoding never fails on client input.
func DecodeSelector(raw []byte) string {
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		decoded = raw
	}
	return strings.TrimSpace(string(decoded))
}

// trimBytes drops the bytes DecodeSelector trims, keeping the rest untouched.
// ISO-8859-1 maps each byte to the rune of the same value.
func trimBytes(raw []byte) []byte {
	isSpace := func(b byte) bool { return unicode.IsSpace(rune(b)) }
	for len(raw) > 0 && isSpace(raw[0]) {
		raw = raw[1:]
	}
	for len(raw) > 0 && isSpace(raw[len(raw)-1]) {
		raw = raw[:len(raw)-1]
	}
	return raw
}

// ParseSelector decodes and normalises a request line.
//
// Selectors containing a tab are Gopher+ requests and are rejected with
// ErrUnsupportedSelector before any normalisation happens; the returned Request
// still carries Raw so the caller can report it.
func ParseSelector(raw []byte) (Request, error) {
	selector := DecodeSelector(raw)
	req := Request{Raw: selector}

	if strings.Contains(selector, "\t") {
		return req, fmt.Errorf("%w: %q", ErrUnsupportedSelector, selector)
	}

	if selector == "" {
		return req, nil
	}

	if !strings.HasPrefix(selector, "/") {
		selector = "/" + selector
	}
	req.Selector = selector
	req.Relative = selector[1:]

	path := string(trimBytes(raw))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req.Path = path
	return req, nil
}

// IsURL reports whether the selector carries an external "URL:" link, and
// returns the URL.
func (r Request) IsURL() (string, bool) {
	if !strings.HasPrefix(r.Relative, URLPrefix) {
		return "", false
	}
	url := strings.TrimPrefix(r.Relative, URLPrefix)
	return url, url != ""
}
