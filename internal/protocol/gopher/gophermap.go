package gopher

import (
	"strconv"
	"strings"
)

// MenuEntry is one normalised menu line.
type MenuEntry struct {
	// Display is the item type character followed by the display text.
	Display  string
	Selector string
	Host     string
	Port     string
}

// Type returns the item type character, or 0 for an empty display field.
func (e MenuEntry) Type() byte {
	if e.Display == "" {
		return 0
	}
	return e.Display[0]
}

// String joins the four fields with tabs.
func (e MenuEntry) String() string {
	return e.Display + "\t" + e.Selector + "\t" + e.Host + "\t" + e.Port
}

func infoEntry(display string) MenuEntry {
	return MenuEntry{Display: display, Selector: infoSelector, Host: infoHost, Port: infoPort}
}

// SplitLines splits gophermap text on LF, CRLF or CR. A trailing line break
// does not produce a final empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// RenderLine normalises a single gophermap line.
//
// selector is the normalised request selector of the directory being served;
// it anchors relative selectors that point back at this server.
func RenderLine(line, selector string, cfg ServerConfig) MenuEntry {
	if line == "" {
		return infoEntry(string(TypeInfo))
	}

	cols := strings.Split(line, "\t")

	var entry MenuEntry
	switch len(cols) {
	case 1:
		// the whole line, type character included, becomes info text
		return infoEntry(string(TypeInfo) + line)
	case 2:
		entry = MenuEntry{cols[0], cols[1], cfg.FQDN, strconv.Itoa(cfg.Port)}
	case 3:
		entry = MenuEntry{cols[0], cols[1], cols[2], DefaultGopherPort}
	default:
		entry = MenuEntry{cols[0], cols[1], cols[2], cols[3]}
	}

	return rewriteSelector(entry, selector, cfg)
}

// rewriteSelector makes the selector field absolute.
func rewriteSelector(entry MenuEntry, selector string, cfg ServerConfig) MenuEntry {
	if entry.Type() == TypeHTML && strings.HasPrefix(entry.Selector, URLPrefix) {
		entry.Selector = "/" + entry.Selector
		return entry
	}

	if entry.Selector == "" || strings.HasPrefix(entry.Selector, "/") {
		return entry
	}

	if entry.Host == cfg.FQDN {
		entry.Selector = selector + "/" + entry.Selector
	} else {
		entry.Selector = "/" + entry.Selector
	}
	return entry
}

// RenderGophermap renders gophermap text into menu entries.
func RenderGophermap(text, selector string, cfg ServerConfig) []MenuEntry {
	lines := SplitLines(text)
	entries := make([]MenuEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, RenderLine(line, selector, cfg))
	}
	return entries
}

// EncodeMenu joins entries with CRLF and encodes the result as 7-bit ASCII
// with numeric character references. The terminator is not included.
func EncodeMenu(entries []MenuEntry) []byte {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return encodeCharRef(strings.Join(lines, lineEnd))
}
