package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mithrel/pushline/pkg/httpclient"
)

const tracerName = "github.com/mithrel/pushline/pkg/transport"

// StartFunc is a transport's handshake. It returns once the transport is
// started or has failed to start.
type StartFunc func(ctx context.Context, conn Connection, data string) error

// Option configures a Base.
type Option func(*Base)

// WithLogger sets the logger. The default is slog.Default() tagged with the component.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(b *Base) {
		b.metrics = m
	}
}

// WithTracer sets the tracer used for Start and Send spans. The default
// comes from the global OpenTelemetry provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Base) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// Base is embedded by concrete HTTP transports.
type Base struct {
	name    string
	client  HTTPClient
	start   StartFunc
	active  ActiveRequest
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewBase creates the shared part of a transport named name. start is the
// transport-specific handshake run by Start.
func NewBase(name string, client HTTPClient, start StartFunc, opts ...Option) (*Base, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if client == nil {
		return nil, ErrNoClient
	}
	b := &Base{
		name:   name,
		client: client,
		start:  start,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default().With("component", "transport", "transport", name)
	}
	return b, nil
}

// Name returns the transport name used in query strings.
func (b *Base) Name() string { return b.name }

// Client returns the HTTP collaborator.
func (b *Base) Client() HTTPClient { return b.client }

// Logger returns the transport logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Active exposes the active request handle.
func (b *Base) Active() *ActiveRequest { return &b.active }

// Start runs the transport's handshake once. No retries.
func (b *Base) Start(ctx context.Context, conn Connection, data string) error {
	ctx, span := b.tracer.Start(ctx, "transport.start",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(b.spanAttrs(conn)...),
	)
	defer span.End()

	if b.start == nil {
		return b.fail(span, "start", ErrNoStartFunc)
	}
	if err := b.start(ctx, conn, data); err != nil {
		return b.fail(span, "start", err)
	}
	b.logger.Debug("transport started", "connection_id", connID(conn))
	return nil
}

// SendRaw posts data to the send endpoint and returns the raw response body.
// The request is decorated by the connection but is not recorded as the
// active request.
func (b *Base) SendRaw(ctx context.Context, conn Connection, data string) (string, error) {
	ctx, span := b.tracer.Start(ctx, "transport.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(b.spanAttrs(conn)...),
	)
	defer span.End()

	url := conn.URL() + "send" + SendQuery(b.name, conn.ConnectionID())
	prepare := func(r *httpclient.Request) {
		conn.PrepareRequest(r.HTTP)
	}
	resp, err := b.client.Post(ctx, url, prepare, map[string]string{"data": data})
	b.metrics.observeSend(b.name, err)
	if err != nil {
		return "", b.fail(span, "send", err)
	}
	raw := resp.ReadAsString()
	span.SetAttributes(attribute.Int("pushline.response_bytes", len(raw)))
	return raw, nil
}

// Send posts data and decodes the response body as T. An empty body yields
// the zero value of T without error.
func Send[T any](ctx context.Context, b *Base, conn Connection, data string) (T, error) {
	var zero T
	raw, err := b.SendRaw(ctx, conn, data)
	if err != nil {
		return zero, err
	}
	if strings.TrimSpace(raw) == "" {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return zero, &Error{Transport: b.name, Op: "send", Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

// Stop aborts the active request, if any. It never fails: a request that
// cannot be aborted or has already completed is ignored, and any other abort
// failure is logged.
// Safe to call repeatedly and concurrently with PrepareRequest.
func (b *Base) Stop(conn Connection) {
	aborted, err := b.active.Abort()
	switch {
	case err == nil:
		if aborted {
			b.metrics.observeAbort(b.name)
			b.logger.Debug("active request aborted", "connection_id", connID(conn))
		}
	case errors.Is(err, httpclient.ErrAbortUnsupported), errors.Is(err, httpclient.ErrRequestCompleted):
	default:
		b.logger.Warn("abort active request", "connection_id", connID(conn), "err", err)
	}
}

// ReceiveQuery renders the query string for a receive-style request from
// the connection's current identity, cursor and groups.
func (b *Base) ReceiveQuery(conn Connection, connectionData string) string {
	id, ok := conn.MessageID()
	return ReceiveQuery{
		Transport:      b.name,
		ConnectionID:   conn.ConnectionID(),
		MessageID:      id,
		HasMessageID:   ok,
		Groups:         conn.Groups(),
		ConnectionData: connectionData,
	}.Encode()
}

// PrepareRequest returns the decoration every receive-style request must go
// through: the connection decorates it, then it becomes the active request.
func (b *Base) PrepareRequest(conn Connection) func(*httpclient.Request) {
	return func(r *httpclient.Request) {
		conn.PrepareRequest(r.HTTP)
		b.active.Set(r)
	}
}

// OnMessage applies one response body to conn. See ProcessEnvelope.
func (b *Base) OnMessage(conn Connection, body string) Result {
	res := ProcessEnvelope(conn, body)
	b.metrics.observeEnvelope(b.name, res)
	if res.Err != nil {
		b.logger.Debug("envelope rejected", "connection_id", connID(conn), "err", res.Err)
	} else if res.Failed > 0 {
		b.logger.Debug("message dispatch failed", "connection_id", connID(conn), "failed", res.Failed, "dispatched", res.Dispatched)
	}
	return res
}

func (b *Base) spanAttrs(conn Connection) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pushline.transport", b.name),
		attribute.String("pushline.connection_id", connID(conn)),
	}
}

func (b *Base) fail(span trace.Span, op string, err error) error {
	if IsRequestAborted(err) {
		span.SetStatus(codes.Error, "aborted")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return &Error{Transport: b.name, Op: op, Err: err}
}

func connID(conn Connection) string {
	if conn == nil {
		return ""
	}
	return conn.ConnectionID()
}
