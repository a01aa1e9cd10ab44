package gopher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/gofor/internal/logger"
)

// ServerConfig is the immutable configuration shared by every connection.
type ServerConfig struct {
	// FQDN is the host name clients should use; it fills the host field of
	// two-field gophermap lines and decides which relative selectors are local.
	FQDN string

	// Port fills the port field of two-field gophermap lines.
	Port int

	// Root is the document root. In chroot mode it is the narrowed OS root.
	Root string

	Chroot  bool
	Verbose bool

	// URLRedirect answers "URL:" selectors with an HTML redirect page.
	URLRedirect bool

	// MaxSelectorLength bounds the request line. 0 selects DefaultMaxSelectorLength.
	MaxSelectorLength int
}

// Outcome classifies how a connection was answered.
type Outcome string

const (
	OutcomeFile        Outcome = "file"
	OutcomeMenu        Outcome = "menu"
	OutcomeRedirect    Outcome = "redirect"
	OutcomeUnsupported Outcome = "unsupported_selector"
	OutcomeOutOfBounds Outcome = "out_of_bounds"
	OutcomeNonPublic   Outcome = "nonpublic"
	OutcomeBadRequest  Outcome = "bad_request"
	OutcomeAborted     Outcome = "aborted"
)

// Result describes one served connection.
type Result struct {
	Outcome   Outcome
	Selector  string
	BytesSent int64

	// CacheLookup is set when a menu cache was consulted, CacheHit when it answered.
	CacheLookup bool
	CacheHit    bool

	// Err is an I/O failure while reading the request or writing the response.
	// Rejections are reported through Outcome, not Err.
	Err error
}

// Handler serves one Gopher request per call to Serve.
type Handler struct {
	config   ServerConfig
	resolver *Resolver
	cache    *MenuCache
}

// NewHandler creates a Handler. cache may be nil to render every menu.
func NewHandler(config ServerConfig, cache *MenuCache) (*Handler, error) {
	resolver, err := NewResolver(config.Root, config.Chroot)
	if err != nil {
		return nil, err
	}
	if config.MaxSelectorLength <= 0 {
		config.MaxSelectorLength = DefaultMaxSelectorLength
	}

	return &Handler{
		config:   config,
		resolver: resolver,
		cache:    cache,
	}, nil
}

// Serve reads one selector from r and writes exactly one response to w.
//
// Closing the connection is left to the caller.
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) Result {
	line, err := ReadSelectorLine(r, h.config.MaxSelectorLength)
	if err != nil {
		if errors.Is(err, ErrSelectorTooLong) {
			selector := DecodeSelector(line)
			h.verbose("Error: %v", err)
			n, werr := WriteError(w, accessErrorMessage(selector))
			return Result{Outcome: OutcomeBadRequest, Selector: selector, BytesSent: n, Err: werr}
		}
		return Result{Outcome: OutcomeAborted, Err: fmt.Errorf("read selector: %w", err)}
	}

	req, err := ParseSelector(line)
	if err != nil {
		h.verbose("Possible Gopher+ selector: %q", req.Raw)
		n, werr := WriteError(w, unsupportedMessage(req.Raw))
		return Result{Outcome: OutcomeUnsupported, Selector: req.Raw, BytesSent: n, Err: werr}
	}

	h.verbose("Request: %q", req.Selector)

	if h.config.URLRedirect {
		if url, ok := req.IsURL(); ok {
			h.verbose("Success: redirect to %s", url)
			n, werr := WriteRedirect(w, url)
			return Result{Outcome: OutcomeRedirect, Selector: req.Selector, BytesSent: n, Err: werr}
		}
	}

	target, err := h.resolver.Resolve(req)
	if err != nil {
		return h.reject(w, req, err)
	}

	switch target.Kind {
	case TargetFile:
		h.verbose("Success: file: %s", req.Selector)
		n, werr := WriteFile(ctx, w, target.Path)
		return Result{Outcome: OutcomeFile, Selector: req.Selector, BytesSent: n, Err: werr}

	default:
		h.verbose("Success: directory with gophermap: %s", req.Selector)
		return h.serveMenu(w, req, target)
	}
}

// reject logs a rejection and writes the generic error menu.
func (h *Handler) reject(w io.Writer, req Request, err error) Result {
	outcome := OutcomeNonPublic
	if errors.Is(err, ErrOutOfBounds) {
		outcome = OutcomeOutOfBounds
	}

	h.verbose("Error result (%s): %q: %v", outcome, req.Selector, err)
	n, werr := WriteError(w, accessErrorMessage(req.Selector))
	return Result{Outcome: outcome, Selector: req.Selector, BytesSent: n, Err: werr}
}

func (h *Handler) serveMenu(w io.Writer, req Request, target Target) Result {
	if h.cache != nil {
		if body, ok := h.cache.Get(target.Gophermap, req.Selector, target.GophermapInfo); ok {
			n, err := WriteMenu(w, body)
			return Result{Outcome: OutcomeMenu, Selector: req.Selector, BytesSent: n, CacheLookup: true, CacheHit: true, Err: err}
		}
	}

	text, err := os.ReadFile(target.Gophermap)
	if err != nil {
		return h.reject(w, req, fmt.Errorf("%w: read gophermap: %v", ErrNonPublic, err))
	}

	body := EncodeMenu(RenderGophermap(string(text), req.Selector, h.config))
	if h.cache != nil {
		h.cache.Put(target.Gophermap, req.Selector, target.GophermapInfo, body)
	}

	n, err := WriteMenu(w, body)
	return Result{Outcome: OutcomeMenu, Selector: req.Selector, BytesSent: n, CacheLookup: h.cache != nil, Err: err}
}

func (h *Handler) verbose(format string, v ...any) {
	if h.config.Verbose {
		logger.Info(format, v...)
	}
}
