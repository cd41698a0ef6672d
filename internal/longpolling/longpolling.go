// Package longpolling implements the longPolling transport: a connect
// handshake followed by a loop of held GET requests, each answered with one
// envelope.
package longpolling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mithrel/pushline/pkg/transport"
)

// Name is the transport name sent in every query string.
const Name = "longPolling"

const (
	// DefaultRetryDelay is the base delay after a failed poll.
	DefaultRetryDelay = 2 * time.Second
	// DefaultMaxBackoff caps the delay between failed polls.
	DefaultMaxBackoff = time.Minute
)

var (
	// ErrAlreadyStarted is returned by Start while a previous start is running.
	ErrAlreadyStarted = errors.New("longpolling: already started")

	// ErrStopped is returned by Start when Stop ran before the poll loop launched.
	ErrStopped = errors.New("longpolling: stopped during start")
)

// Option configures a Transport.
type Option func(*Transport)

// WithRetryDelay sets the base delay after a failed poll.
func WithRetryDelay(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.retryDelay = d
		}
	}
}

// WithMaxBackoff caps the delay between failed polls.
func WithMaxBackoff(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.maxBackoff = d
		}
	}
}

// WithBaseOptions forwards options to the embedded transport.Base.
func WithBaseOptions(opts ...transport.Option) Option {
	return func(t *Transport) {
		t.baseOpts = append(t.baseOpts, opts...)
	}
}

// Transport is the longPolling transport. Start performs the connect
// handshake and launches the poll loop; Stop ends both.
type Transport struct {
	*transport.Base

	retryDelay time.Duration
	maxBackoff time.Duration
	baseOpts   []transport.Option

	mu     sync.Mutex
	loop   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a longPolling transport sending its requests through client.
func New(client transport.HTTPClient, opts ...Option) (*Transport, error) {
	t := &Transport{
		retryDelay: DefaultRetryDelay,
		maxBackoff: DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	base, err := transport.NewBase(Name, client, t.connect, t.baseOpts...)
	if err != nil {
		return nil, err
	}
	t.Base = base
	return t, nil
}

// connect is the start strategy: one receive-style request to "connect", its
// envelope processed, then the poll loop launched. The loop context is
// registered before the request goes out, so a Stop at any point of the
// handshake keeps the loop from starting. The loop outlives ctx.
func (t *Transport) connect(ctx context.Context, conn transport.Connection, data string) error {
	loop, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		cancel()
		return ErrAlreadyStarted
	}
	t.loop, t.cancel = loop, cancel
	t.mu.Unlock()

	url := conn.URL() + "connect" + t.ReceiveQuery(conn, data)
	resp, err := t.Client().Get(ctx, url, t.PrepareRequest(conn))
	if err != nil {
		t.release(loop)
		return err
	}
	t.OnMessage(conn, resp.ReadAsString())

	t.mu.Lock()
	defer t.mu.Unlock()
	if loop.Err() != nil {
		return ErrStopped
	}
	done := make(chan struct{})
	t.done = done
	go t.poll(loop, conn, data, done)
	return nil
}

// release forgets loop if it is still the registered one, so a failed start
// can be retried.
func (t *Transport) release(loop context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop == loop {
		t.cancel()
		t.loop, t.cancel = nil, nil
	}
}

func (t *Transport) poll(ctx context.Context, conn transport.Connection, data string, done chan struct{}) {
	defer close(done)
	defer t.release(ctx)
	log := t.Logger().With("connection_id", conn.ConnectionID())
	fib := fibonacci()
	for {
		if ctx.Err() != nil {
			return
		}
		url := conn.URL() + "poll" + t.ReceiveQuery(conn, data)
		resp, err := t.Client().Get(ctx, url, t.PrepareRequest(conn))
		if err != nil {
			if transport.IsRequestAborted(err) || ctx.Err() != nil {
				log.Debug("poll loop stopped", "err", err)
				return
			}
			conn.OnError(err)
			delay := t.backoff(fib())
			log.Warn("poll failed", "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		fib = fibonacci()
		t.OnMessage(conn, resp.ReadAsString())
	}
}

func (t *Transport) backoff(step int) time.Duration {
	next := t.retryDelay * time.Duration(step)
	if next > t.maxBackoff || next <= 0 {
		next = t.maxBackoff
	}
	return next
}

// Stop ends the poll loop and aborts the in-flight request. It does not wait
// for the loop to exit; see Done.
func (t *Transport) Stop(conn transport.Connection) {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.loop, t.cancel = nil, nil
	}
	t.mu.Unlock()
	t.Base.Stop(conn)
}

// Done is closed when the most recently started poll loop has exited. It is
// nil before the first successful Start.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func fibonacci() func() int {
	a, b := 1, 1
	return func() int {
		a, b = b, a+b
		return a
	}
}
