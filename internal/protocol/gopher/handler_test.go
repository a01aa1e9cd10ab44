package gopher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, root string, mutate func(*ServerConfig)) *Handler {
	t.Helper()
	cfg := testConfig
	cfg.Root = root
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewHandler(cfg, nil)
	require.NoError(t, err)
	return h
}

func serve(h *Handler, request string) (Result, string) {
	var out bytes.Buffer
	res := h.Serve(context.Background(), strings.NewReader(request), &out)
	return res, out.String()
}

func TestHandlerServesFile(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	res, body := serve(h, "/hello.txt\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeFile, res.Outcome)
	assert.Equal(t, "hello, gopher\n", body)
	assert.EqualValues(t, len(body), res.BytesSent)
}

func TestHandlerDoubleSlashSelector(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	res, body := serve(h, "//hello.txt\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeFile, res.Outcome)
	assert.Equal(t, "//hello.txt", res.Selector)
	assert.Equal(t, "hello, gopher\n", body)
}

func TestHandlerServesUTF8FileName(t *testing.T) {
	root := newDocRoot(t)
	writeFile(t, filepath.Join(root, "café.txt"), "crème\n", 0o644)
	h := newTestHandler(t, root, nil)

	res, body := serve(h, "/café.txt\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeFile, res.Outcome)
	assert.Equal(t, "crème\n", body)

	// Logged selector is the Latin-1 reading of the same bytes
	assert.Equal(t, "/cafÃ©.txt", res.Selector)
}

func TestHandlerServesLatin1FileName(t *testing.T) {
	root := newDocRoot(t)
	name := string([]byte{'l', 'a', 't', 0xE9, '.', 't', 'x', 't'})
	writeFile(t, filepath.Join(root, name), "latin\n", 0o644)
	h := newTestHandler(t, root, nil)

	res, body := serve(h, "/"+name+"\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeFile, res.Outcome)
	assert.Equal(t, "latin\n", body)
}

func TestHandlerServesLargeFileVerbatim(t *testing.T) {
	root := newDocRoot(t)
	content := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/16*3+7)
	writeFile(t, filepath.Join(root, "big.bin"), string(content), 0o644)

	h := newTestHandler(t, root, nil)
	res, body := serve(h, "big.bin\n")

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeFile, res.Outcome)
	assert.Equal(t, len(content), len(body))
	assert.True(t, bytes.Equal(content, []byte(body)))
}

func TestHandlerServesRootMenu(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	for _, request := range []string{"\r\n", "/\r\n", ""} {
		res, body := serve(h, request)
		if request == "" {
			// nothing was sent at all
			assert.Equal(t, OutcomeAborted, res.Outcome)
			assert.Empty(t, body)
			continue
		}
		require.NoError(t, res.Err)
		assert.Equal(t, OutcomeMenu, res.Outcome)
		assert.True(t, strings.HasPrefix(body, "iWelcome\t/\t-\t0\r\n"))
		assert.True(t, strings.HasSuffix(body, "\r\n.\r\n"))
	}
}

func TestHandlerServesSubMenu(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	res, body := serve(h, "/docs\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeMenu, res.Outcome)
	assert.Equal(t, "0Notes\t/docs/notes.txt\tgopher.example.org\t70\r\n.\r\n", body)
}

func TestHandlerRejectsGopherPlusWithoutTouchingDisk(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)
	require.NoError(t, os.RemoveAll(root))

	res, body := serve(h, "foo\t+\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeUnsupported, res.Outcome)
	assert.Equal(t, "3Gopher+ selectors unsupported foo.\t\terror.host\t1\r\n.\r\n", body)
}

func TestHandlerRejectsTraversal(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	res, body := serve(h, "/../../etc/passwd\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeOutOfBounds, res.Outcome)
	assert.Equal(t, "3Error accessing /../../etc/passwd.\t\terror.host\t1\r\n.\r\n", body)
}

func TestHandlerRejectionsLookAlike(t *testing.T) {
	root := newDocRoot(t)
	writeFile(t, filepath.Join(root, "private.txt"), "private", 0o600)
	require.NoError(t, os.Symlink(filepath.Join(root, "hello.txt"), filepath.Join(root, "link.txt")))

	h := newTestHandler(t, root, nil)

	for _, selector := range []string{"/private.txt", "/link.txt", "/empty", "/missing"} {
		res, body := serve(h, selector+"\r\n")
		require.NoError(t, res.Err)
		assert.Equal(t, OutcomeNonPublic, res.Outcome, selector)
		assert.Equal(t, "3Error accessing "+selector+".\t\terror.host\t1\r\n.\r\n", body)
	}
}

func TestHandlerErrorTextIsASCII(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	// 0xE9 decodes to 'é', which the error encoder replaces
	var out bytes.Buffer
	res := h.Serve(context.Background(), bytes.NewReader([]byte("/caf\xe9\r\n")), &out)
	assert.Equal(t, OutcomeNonPublic, res.Outcome)
	assert.Equal(t, "3Error accessing /caf?.\t\terror.host\t1\r\n.\r\n", out.String())
}

func TestHandlerSelectorTooLong(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, func(c *ServerConfig) { c.MaxSelectorLength = 4 })

	res, body := serve(h, "/abcdefgh\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeBadRequest, res.Outcome)
	assert.Equal(t, "3Error accessing /abc.\t\terror.host\t1\r\n.\r\n", body)
}

func TestHandlerURLRedirect(t *testing.T) {
	root := newDocRoot(t)

	h := newTestHandler(t, root, func(c *ServerConfig) { c.URLRedirect = true })
	res, body := serve(h, "/URL:https://example.org/?a=1&b=2\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeRedirect, res.Outcome)
	assert.Contains(t, body, `content="1;URL=https://example.org/?a=1&amp;b=2"`)
	assert.False(t, strings.HasSuffix(body, terminator))

	// disabled: resolved like any other selector
	h = newTestHandler(t, root, nil)
	res, _ = serve(h, "/URL:https://example.org/\r\n")
	assert.Equal(t, OutcomeNonPublic, res.Outcome)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestHandlerReportsWriteErrors(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	res := h.Serve(context.Background(), strings.NewReader("/hello.txt\r\n"), failingWriter{})
	assert.Equal(t, OutcomeFile, res.Outcome)
	assert.Error(t, res.Err)
}

func TestHandlerStopsOnCancelledContext(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	res := h.Serve(ctx, strings.NewReader("/hello.txt\r\n"), &out)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestHandlerChroot(t *testing.T) {
	root := newDocRoot(t)
	h := newTestHandler(t, root, func(c *ServerConfig) { c.Chroot = true })

	res, body := serve(h, "/docs/notes.txt\r\n")
	require.NoError(t, res.Err)
	assert.Equal(t, "notes\n", body)

	res, _ = serve(h, "/docs/../hello.txt\r\n")
	assert.Equal(t, OutcomeOutOfBounds, res.Outcome)
}

func TestHandlerMenuCache(t *testing.T) {
	root := newDocRoot(t)
	cache, err := NewMenuCache(16)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	cfg := testConfig
	cfg.Root = root
	h, err := NewHandler(cfg, cache)
	require.NoError(t, err)

	res, first := serve(h, "/docs\r\n")
	assert.True(t, res.CacheLookup)
	assert.False(t, res.CacheHit)
	cache.Wait()
	res, second := serve(h, "/docs\r\n")
	assert.True(t, res.CacheHit)
	assert.Equal(t, first, second)

	// a rewritten gophermap of a different size is picked up immediately
	writeFile(t, filepath.Join(root, "docs", GophermapFile), "Changed\n", 0o644)
	_, third := serve(h, "/docs\r\n")
	assert.Equal(t, "iChanged\t/\t-\t0\r\n.\r\n", third)
}
