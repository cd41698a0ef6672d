package transport

import (
	"fmt"
	"slices"
)

// Result summarizes one ProcessEnvelope call.
type Result struct {
	Dispatched     int
	Failed         int
	CursorAdvanced bool
	GroupsReplaced bool
	// Err is the envelope-level failure, already reported to the connection.
	Err error
}

// Heartbeat reports whether the body carried nothing to apply.
func (r Result) Heartbeat() bool {
	return r.Err == nil && r.Dispatched == 0 && r.Failed == 0 && !r.CursorAdvanced && !r.GroupsReplaced
}

// ProcessEnvelope decodes body and applies it to conn:
//
//  1. an unset cursor is initialized to 0;
//  2. a body that does not decode is reported via OnError and nothing else happens;
//  3. each message is dispatched to OnReceived in its own failure boundary;
//     a returned error or panic is reported via OnError and the loop continues;
//  4. when Messages was present the cursor is overwritten with MessageId;
//  5. when TransportData.Groups is present the group set is replaced wholesale.
//
// Failures are reported to conn, never returned or propagated as panics.
func ProcessEnvelope(conn Connection, body string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Err = &EnvelopeError{Err: fmt.Errorf("panic: %v", r)}
			reportError(conn, res.Err)
		}
	}()

	if _, ok := conn.MessageID(); !ok {
		conn.SetMessageID(0)
	}

	env, err := DecodeEnvelope(body)
	if err != nil {
		res.Err = &EnvelopeError{Err: err}
		conn.OnError(res.Err)
		return res
	}
	if env == nil {
		return res
	}

	if env.Messages != nil {
		for i, m := range env.Messages {
			if err := dispatch(conn, messageText(m)); err != nil {
				res.Failed++
				conn.OnError(&DispatchError{Index: i, Err: err})
				continue
			}
			res.Dispatched++
		}
		conn.SetMessageID(*env.MessageID)
		res.CursorAdvanced = true
	}

	if env.GroupsPresent() {
		conn.SetGroups(slices.Clone(env.TransportData.Groups))
		res.GroupsReplaced = true
	}
	return res
}

func dispatch(conn Connection, msg string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return conn.OnReceived(msg)
}

// reportError calls OnError from inside a recovery path; a panicking error
// sink is dropped there.
func reportError(conn Connection, err error) {
	defer func() { _ = recover() }()
	conn.OnError(err)
}
