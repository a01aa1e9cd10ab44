package gopher

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/gofor/internal/logger"
)

// GopherConnection serves the single request carried by one TCP connection.
type GopherConnection struct {
	server *GopherAdapter
	conn   net.Conn

	// id correlates log lines of one connection
	id string
}

func NewGopherConnection(server *GopherAdapter, conn net.Conn) *GopherConnection {
	return &GopherConnection{
		server: server,
		conn:   conn,
		id:     uuid.NewString(),
	}
}

// Serve reads one selector, writes one response, and closes the connection.
//
// Panics are recovered so a single misbehaving request cannot take down the
// server. The context is cancelled on server shutdown and stops file
// transfers between chunks.
func (c *GopherConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in Gopher connection %s from %s: %v", c.id, clientAddr, r)
		}
		_ = c.conn.Close()
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Gopher connection %s from %s dropped: server shutting down", c.id, clientAddr)
		return
	default:
	}

	config := c.server.config

	if config.Timeouts.Read > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(config.Timeouts.Read)); err != nil {
			logger.Warn("Failed to set read deadline for %s: %v", clientAddr, err)
		}
	}

	var w io.Writer = c.conn
	if config.Timeouts.Write > 0 {
		w = &deadlineWriter{conn: c.conn, timeout: config.Timeouts.Write}
	}

	startTime := time.Now()
	result := c.server.handler.Serve(ctx, c.conn, w)
	duration := time.Since(startTime)

	c.server.metrics.RecordRequest(string(result.Outcome), duration)
	c.server.metrics.RecordBytesSent(string(result.Outcome), result.BytesSent)
	if result.CacheLookup {
		c.server.metrics.RecordMenuCache(result.CacheHit)
	}

	if result.Err != nil {
		logConnError(c.id, clientAddr, result.Err)
		return
	}

	logger.Debug("Gopher connection %s from %s: outcome=%s selector=%q bytes=%d duration=%v",
		c.id, clientAddr, result.Outcome, result.Selector, result.BytesSent, duration)
}

func logConnError(id, clientAddr string, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Gopher connection %s from %s closed by client before sending a selector", id, clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Gopher connection %s from %s timed out: %v", id, clientAddr, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("Gopher connection %s from %s cancelled: %v", id, clientAddr, err)
	default:
		logger.Debug("Error serving Gopher connection %s from %s: %v", id, clientAddr, err)
	}
}

// deadlineWriter pushes the write deadline forward before every write, so
// the timeout bounds stalls rather than the whole transfer.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.conn.Write(p)
}
