package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/gofor/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until its context ends or Stop is called.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	stopped atomic.Int32
	stopCh  chan struct{}
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopCh: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopCh:
		return nil
	}
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	if f.stopped.Add(1) == 1 {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func TestServeStopsOnCancel(t *testing.T) {
	srv := New(time.Second)
	a := newFakeAdapter("Gopher", 70)
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()

	// A requested shutdown is not a failure
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.EqualValues(t, 1, a.stopped.Load())
}

func TestServeReportsAdapterFailure(t *testing.T) {
	srv := New(time.Second)
	failing := newFakeAdapter("Gopher", 70)
	failing.serveErr = errors.New("bind: address in use")
	other := newFakeAdapter("Other", 71)

	require.NoError(t, srv.AddAdapter(failing))
	require.NoError(t, srv.AddAdapter(other))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Gopher adapter error")
	assert.EqualValues(t, 1, other.stopped.Load())
}

func TestServeOnlyOnce(t *testing.T) {
	srv := New(time.Second)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("Gopher", 70)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = srv.Serve(ctx)

	assert.ErrorIs(t, srv.Serve(ctx), ErrAlreadyServed)
}

func TestServeWithoutAdapters(t *testing.T) {
	err := New(0).Serve(context.Background())
	assert.Error(t, err)
}

func TestAddAdapterConflicts(t *testing.T) {
	srv := New(0)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("Gopher", 70)))

	assert.Error(t, srv.AddAdapter(newFakeAdapter("Gopher", 7070)))
	assert.Error(t, srv.AddAdapter(newFakeAdapter("Other", 70)))
	assert.Len(t, srv.Adapters(), 1)

	// ephemeral ports never conflict
	require.NoError(t, srv.AddAdapter(newFakeAdapter("A", 0)))
	require.NoError(t, srv.AddAdapter(newFakeAdapter("B", 0)))
	assert.Len(t, srv.Adapters(), 3)
}

func TestAddAdapterAfterServePanics(t *testing.T) {
	srv := New(0)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("Gopher", 70)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = srv.Serve(ctx)

	assert.Panics(t, func() { _ = srv.AddAdapter(newFakeAdapter("Other", 71)) })
}

func TestServeDeadlineIsCleanStop(t *testing.T) {
	srv := New(time.Second)
	require.NoError(t, srv.AddAdapter(newFakeAdapter("Gopher", 70)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, srv.Serve(ctx))
}

// listeningAdapter reports a switchable listening state.
type listeningAdapter struct {
	*fakeAdapter
	listening atomic.Bool
}

func (l *listeningAdapter) Listening() bool { return l.listening.Load() }

func TestServePublishesAdapterReadiness(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	a := &listeningAdapter{fakeAdapter: newFakeAdapter("Gopher", 70)}
	a.listening.Store(true)

	srv := New(time.Second)
	srv.SetMetricsServer(metrics.NewServer(metrics.ServerConfig{Port: port}))
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	readyz := func() (int, string) {
		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/readyz")
		if err != nil {
			return 0, ""
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	require.Eventually(t, func() bool {
		code, _ := readyz()
		return code == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	_, body := readyz()
	assert.Equal(t, "Gopher: ok\n", body)

	a.listening.Store(false)
	code, body := readyz()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Gopher: not accepting connections\n", body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
