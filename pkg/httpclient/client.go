// Package httpclient issues the discrete HTTP exchanges a push transport is
// built from. Every request it sends can be aborted from another goroutine
// through the Request handed to the caller's prepare hook.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrRequestAborted is the cause attached to a request cancelled via Request.Abort.
	ErrRequestAborted = errors.New("httpclient: request aborted")

	// ErrAbortUnsupported is returned by Abort when the request carries no cancel hook.
	ErrAbortUnsupported = errors.New("httpclient: abort not supported")

	// ErrRequestCompleted is returned by Abort once the exchange has finished.
	ErrRequestCompleted = errors.New("httpclient: request already completed")
)

// DefaultTimeout bounds a single exchange when New is given a nil *http.Client.
const DefaultTimeout = 2 * time.Minute

// Request is an outbound request that is about to be sent.
// Prepare hooks may decorate HTTP (headers, credentials) before it goes out.
type Request struct {
	HTTP   *http.Request
	cancel context.CancelCauseFunc
	done   atomic.Bool
}

// NewRequest wraps an *http.Request without an abort hook. Abort on the
// result reports ErrAbortUnsupported.
func NewRequest(r *http.Request) *Request {
	return &Request{HTTP: r}
}

// Abort cancels the request. It is safe to call from any goroutine and more
// than once. After the exchange has completed it does nothing and reports
// ErrRequestCompleted.
func (r *Request) Abort() error {
	if r == nil || r.cancel == nil {
		return ErrAbortUnsupported
	}
	if r.done.Load() {
		return ErrRequestCompleted
	}
	r.cancel(ErrRequestAborted)
	return nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	body       []byte
}

// ReadAsString returns the response body.
func (r *Response) ReadAsString() string {
	if r == nil {
		return ""
	}
	return string(r.body)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("httpclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("httpclient: unexpected status %d: %s", e.StatusCode, body)
}

// Client sends abortable GET and form POST requests.
type Client struct {
	httpClient *http.Client
}

// New returns a Client using hc, or a client with DefaultTimeout when hc is nil.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{httpClient: hc}
}

// Get issues a GET request. prepare, when non-nil, runs before the request is sent.
func (c *Client) Get(ctx context.Context, rawURL string, prepare func(*Request)) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "", prepare)
}

// Post issues a POST with form as an application/x-www-form-urlencoded body.
func (c *Client) Post(ctx context.Context, rawURL string, prepare func(*Request), form map[string]string) (*Response, error) {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	return c.do(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", prepare)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, prepare func(*Request)) (*Response, error) {
	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(rctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	r := &Request{HTTP: req, cancel: cancel}
	defer r.done.Store(true)
	if prepare != nil {
		prepare(r)
	}

	resp, err := c.httpClient.Do(r.HTTP)
	if err != nil {
		return nil, c.wrapErr(rctx, method, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.wrapErr(rctx, method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, body: b}, nil
}

// wrapErr tags failures caused by Abort so callers can tell them apart from
// network faults with errors.Is(err, ErrRequestAborted).
func (c *Client) wrapErr(rctx context.Context, method string, err error) error {
	if errors.Is(context.Cause(rctx), ErrRequestAborted) {
		return fmt.Errorf("%s: %w: %w", strings.ToLower(method), ErrRequestAborted, err)
	}
	return err
}
