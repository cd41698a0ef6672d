// Package transport holds the behavior shared by HTTP-based push transports
// (long polling, streaming, frame-based) that keep a logical connection open
// over a sequence of discrete HTTP exchanges.
//
// A concrete transport builds on Base:
//
//   - Base.Start runs the transport's handshake strategy.
//   - Every receive-style request is decorated with Base.PrepareRequest, which
//     records it as the single active request so Base.Stop can abort it from
//     any goroutine.
//   - Every response body is handed to Base.OnMessage, which decodes the
//     envelope, dispatches each message to the Connection with per-message
//     failure isolation, and advances the cursor and group set.
//   - Outbound data goes through Send.
//
// The wire envelope is one JSON object per response:
//
//	{
//	  "Messages": [ <message>, ... ],
//	  "MessageId": <cursor>,
//	  "TransportData": { "Groups": [ "<group>", ... ] }
//	}
//
// Every field is optional; an object without fields is a heartbeat.
package transport
