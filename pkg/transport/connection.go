package transport

import (
	"context"
	"net/http"

	"github.com/mithrel/pushline/pkg/httpclient"
)

// Connection is the logical connection a transport works for. The transport
// borrows it; identity and lifecycle belong to the owner.
type Connection interface {
	// URL is the endpoint base, ending in '/'.
	URL() string
	ConnectionID() string

	// MessageID returns the delivery cursor and whether it has been set.
	MessageID() (int64, bool)
	SetMessageID(id int64)

	Groups() []string
	// SetGroups replaces the group set wholesale.
	SetGroups(groups []string)

	// OnReceived is called once per message, synchronously from OnMessage.
	OnReceived(message string) error
	OnError(err error)

	// PrepareRequest decorates an outbound request (headers, credentials, user agent).
	PrepareRequest(req *http.Request)
}

// HTTPClient is the HTTP collaborator. prepare runs before the request is
// sent and receives the abortable request.
type HTTPClient interface {
	Get(ctx context.Context, url string, prepare func(*httpclient.Request)) (*httpclient.Response, error)
	Post(ctx context.Context, url string, prepare func(*httpclient.Request), form map[string]string) (*httpclient.Response, error)
}

var _ HTTPClient = (*httpclient.Client)(nil)
