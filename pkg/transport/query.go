package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Field order in both formats is part of the wire contract.
const (
	receiveQueryFormat = "?transport=%s&connectionId=%s&messageId=%s&groups=%s&connectionData=%s"
	sendQueryFormat    = "?transport=%s&connectionId=%s"
)

// ReceiveQuery is the input of the query string sent with every
// receive-style request.
type ReceiveQuery struct {
	Transport    string
	ConnectionID string
	MessageID    int64
	HasMessageID bool
	Groups       []string
	// ConnectionData is an opaque token passed through verbatim.
	ConnectionData string
}

// Encode renders the query, including the leading '?'. An unset cursor is
// rendered as an empty messageId.
func (q ReceiveQuery) Encode() string {
	messageID := ""
	if q.HasMessageID {
		messageID = strconv.FormatInt(q.MessageID, 10)
	}
	return fmt.Sprintf(receiveQueryFormat,
		q.Transport,
		EscapeDataString(q.ConnectionID),
		messageID,
		EscapeDataString(strings.Join(q.Groups, ",")),
		q.ConnectionData)
}

// SendQuery renders the query string of a send request.
func SendQuery(transport, connectionID string) string {
	return fmt.Sprintf(sendQueryFormat, transport, EscapeDataString(connectionID))
}

// EscapeDataString percent-encodes everything except RFC 3986 unreserved
// characters. Space becomes %20 and comma %2C.
func EscapeDataString(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
