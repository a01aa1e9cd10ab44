package metrics

import "time"

// GopherMetrics provides observability for Gopher adapter operations.
//
// Implementations collect metrics about request outcomes, connection
// lifecycle, and throughput. This interface is optional - if not provided to
// the Gopher adapter, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewGopherMetrics()
//	adapter := gopher.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := gopher.New(config, nil)
type GopherMetrics interface {
	// RecordRequest records a completed request with its outcome
	// (e.g. "file", "menu", "nonpublic") and the time taken to answer it.
	RecordRequest(outcome string, duration time.Duration)

	// RecordBytesSent records response bytes written to a client.
	RecordBytesSent(outcome string, bytes int64)

	// RecordMenuCache records a menu cache lookup.
	RecordMenuCache(hit bool)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by the shutdown timeout.
	RecordConnectionForceClosed()

	// RecordRateLimited counts accepts that had to wait for the rate limiter.
	RecordRateLimited()
}

// NewNoopGopherMetrics returns a GopherMetrics that discards everything.
func NewNoopGopherMetrics() GopherMetrics {
	return noopGopherMetrics{}
}

// noopGopherMetrics is a no-op implementation of GopherMetrics with zero overhead.
type noopGopherMetrics struct{}

func (noopGopherMetrics) RecordRequest(outcome string, duration time.Duration) {}
func (noopGopherMetrics) RecordBytesSent(outcome string, bytes int64)          {}
func (noopGopherMetrics) RecordMenuCache(hit bool)                             {}
func (noopGopherMetrics) SetActiveConnections(count int32)                     {}
func (noopGopherMetrics) RecordConnectionAccepted()                            {}
func (noopGopherMetrics) RecordConnectionClosed()                              {}
func (noopGopherMetrics) RecordConnectionForceClosed()                         {}
func (noopGopherMetrics) RecordRateLimited()                                   {}
