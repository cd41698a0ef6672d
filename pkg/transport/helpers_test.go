package transport

import (
	"net/http"
	"sync"
)

// fakeConn is an in-memory Connection that records what the transport does.
type fakeConn struct {
	url string
	id  string

	mu         sync.Mutex
	messageID  int64
	hasID      bool
	groups     []string
	received   []string
	errs       []error
	handler    func(msg string) error
	prepared   int
	userAgent  string
	setIDCalls int
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{url: url, id: "conn-1", userAgent: "pushline-test"}
}

func (c *fakeConn) URL() string          { return c.url }
func (c *fakeConn) ConnectionID() string { return c.id }

func (c *fakeConn) MessageID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageID, c.hasID
}

func (c *fakeConn) SetMessageID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageID, c.hasID = id, true
	c.setIDCalls++
}

func (c *fakeConn) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.groups...)
}

func (c *fakeConn) SetGroups(groups []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = groups
}

func (c *fakeConn) OnReceived(msg string) error {
	c.mu.Lock()
	c.received = append(c.received, msg)
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		return h(msg)
	}
	return nil
}

func (c *fakeConn) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *fakeConn) PrepareRequest(req *http.Request) {
	c.mu.Lock()
	c.prepared++
	c.mu.Unlock()
	req.Header.Set("User-Agent", c.userAgent)
}

func (c *fakeConn) errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}
