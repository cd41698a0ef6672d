// Package connection implements the logical connection that HTTP push
// transports work for: its identity, the delivery cursor and group set the
// server maintains, the application's message and error sinks, and the
// decoration applied to every outbound request.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mithrel/pushline/pkg/api"
	"github.com/mithrel/pushline/pkg/transport"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "pushline/1.0"

// StateStore persists cursor and groups across process restarts.
type StateStore interface {
	Load(ctx context.Context, connectionID string) (api.State, error)
	Save(ctx context.Context, st api.State) error
}

// Handler receives one message. A returned error is reported to the error
// handler; it does not stop delivery of later messages.
type Handler func(message string) error

// ErrorHandler receives transport and dispatch errors.
type ErrorHandler func(err error)

// Option configures a Connection.
type Option func(*Connection)

// WithConnectionID fixes the connection id. The default is api.NewID().
func WithConnectionID(id string) Option {
	return func(c *Connection) {
		if strings.TrimSpace(id) != "" {
			c.id = id
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Connection) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeader adds a header to every outbound request.
func WithHeader(key, value string) Option {
	return func(c *Connection) {
		c.headers.Add(key, value)
	}
}

// WithGroups seeds the group set.
func WithGroups(groups ...string) Option {
	return func(c *Connection) {
		c.groups = slices.Clone(groups)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStateStore persists cursor and group changes to store.
func WithStateStore(store StateStore) Option {
	return func(c *Connection) {
		c.store = store
	}
}

// OnReceived sets the message handler.
func OnReceived(h Handler) Option {
	return func(c *Connection) {
		c.received = h
	}
}

// OnError sets the error handler. Without one, errors are logged.
func OnError(h ErrorHandler) Option {
	return func(c *Connection) {
		c.onError = h
	}
}

// Connection is safe for concurrent use: a receive loop may apply envelopes
// while the application sends or reads state.
type Connection struct {
	url       string
	id        string
	userAgent string
	headers   http.Header
	logger    *slog.Logger
	store     StateStore
	received  Handler
	onError   ErrorHandler

	mu        sync.RWMutex
	messageID int64
	hasID     bool
	groups    []string

	saveMu    sync.Mutex
	savedHash string
}

var _ transport.Connection = (*Connection)(nil)

// New creates a connection to the endpoint at url. A trailing '/' is added
// when missing, so transports can append "send", "poll" and so on.
func New(url string, opts ...Option) *Connection {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	c := &Connection{
		url:       url,
		id:        api.NewID(),
		userAgent: DefaultUserAgent,
		headers:   http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "connection")
	}
	c.logger = c.logger.With("connection_id", c.id)
	return c
}

func (c *Connection) URL() string          { return c.url }
func (c *Connection) ConnectionID() string { return c.id }

func (c *Connection) MessageID() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messageID, c.hasID
}

func (c *Connection) SetMessageID(id int64) {
	c.mu.Lock()
	c.messageID, c.hasID = id, true
	c.mu.Unlock()
	c.persist()
}

// Groups returns a copy of the group set.
func (c *Connection) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.groups)
}

func (c *Connection) SetGroups(groups []string) {
	c.mu.Lock()
	c.groups = slices.Clone(groups)
	c.mu.Unlock()
	c.persist()
}

func (c *Connection) OnReceived(message string) error {
	if c.received == nil {
		return nil
	}
	return c.received(message)
}

func (c *Connection) OnError(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.logger.Warn("connection error", "err", err)
}

// PrepareRequest sets the user agent and configured headers on req.
func (c *Connection) PrepareRequest(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// State returns a snapshot of the cursor and groups.
func (c *Connection) State() api.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := api.State{
		ConnectionID: c.id,
		Groups:       slices.Clone(c.groups),
	}
	if c.hasID {
		id := c.messageID
		st.MessageID = &id
	}
	return st
}

// Restore loads the persisted cursor and groups, if any. A missing record is
// not an error.
func (c *Connection) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	st, err := c.store.Load(ctx, c.id)
	if errors.Is(err, api.ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	id, ok := st.Cursor()
	c.mu.Lock()
	if ok {
		c.messageID, c.hasID = id, true
	}
	c.groups = slices.Clone(st.Groups)
	c.mu.Unlock()

	c.saveMu.Lock()
	c.savedHash = st.Fingerprint()
	c.saveMu.Unlock()
	c.logger.Debug("state restored", "message_id", id, "cursor_set", ok, "groups", st.Groups)
	return nil
}

// persist writes the state when it changed since the last write. Failures
// are logged; the in-memory state stays authoritative.
func (c *Connection) persist() {
	if c.store == nil {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	st := c.State()
	fp := st.Fingerprint()
	if fp == c.savedHash {
		return
	}
	st.UpdatedAt = time.Now().UTC()
	if err := c.store.Save(context.Background(), st); err != nil {
		c.logger.Warn("persist state", "err", err)
		return
	}
	c.savedHash = fp
}
