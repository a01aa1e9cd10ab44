package gopher

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
)

// WriteFile streams the file at path to w in ChunkSize blocks.
//
// No terminator follows the body: the client reads until the connection
// closes. The context is checked between chunks so a shutting-down server can
// abandon large transfers.
func WriteFile(ctx context.Context, w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, ChunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, fmt.Errorf("write file body: %w", err)
			}
		}

		switch readErr {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			return written, nil
		default:
			return written, fmt.Errorf("read %s: %w", path, readErr)
		}
	}
}

// WriteMenu writes an encoded menu body followed by the menu terminator.
func WriteMenu(w io.Writer, body []byte) (int64, error) {
	n, err := w.Write(body)
	if err != nil {
		return int64(n), fmt.Errorf("write menu: %w", err)
	}

	m, err := io.WriteString(w, terminator)
	if err != nil {
		return int64(n + m), fmt.Errorf("write menu terminator: %w", err)
	}
	return int64(n + m), nil
}

// ErrorLine builds the single type-3 entry used for every error response.
func ErrorLine(message string) MenuEntry {
	return MenuEntry{
		Display: string(TypeError) + message,
		Host:    errorHost,
		Port:    errorPort,
	}
}

// WriteError writes a one-entry error menu. Non-ASCII text becomes '?'.
func WriteError(w io.Writer, message string) (int64, error) {
	return WriteMenu(w, encodeReplace(ErrorLine(message).String()))
}

// accessErrorMessage is the generic rejection text.
func accessErrorMessage(selector string) string {
	return fmt.Sprintf("Error accessing %s.", selector)
}

// unsupportedMessage names the Gopher+ selector up to its first tab, which
// keeps the error entry at four fields.
func unsupportedMessage(raw string) string {
	selector, _, _ := strings.Cut(raw, "\t")
	return fmt.Sprintf("Gopher+ selectors unsupported %s.", selector)
}

// WriteRedirect writes an HTML page sending the client on to an external URL.
func WriteRedirect(w io.Writer, url string) (int64, error) {
	n, err := w.Write(encodeCharRef(redirectPage(url)))
	if err != nil {
		return int64(n), fmt.Errorf("write redirect: %w", err)
	}
	return int64(n), nil
}

func redirectPage(url string) string {
	escaped := html.EscapeString(url)
	return "<html>\n" +
		"<head>\n" +
		"<meta http-equiv=\"refresh\" content=\"1;URL=" + escaped + "\">\n" +
		"</head>\n" +
		"<body>\n" +
		"You are following an external link to a web site.\n" +
		"You will be automatically taken to the site shortly.\n" +
		"If you do not get sent there, please click <a href=\"" + escaped + "\">here</a> to go to the web site.\n" +
		"<p>\n" +
		"The URL linked is <a href=\"" + escaped + "\">" + escaped + "</a>\n" +
		"</body>\n" +
		"</html>\n"
}
