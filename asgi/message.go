package asgi

import (
	"context"
	"fmt"
)

// Message types exchanged over the receive/send callables.
const (
	MsgRequest       = "http.request"
	MsgDisconnect    = "http.disconnect"
	MsgResponseStart = "http.response.start"
	MsgResponseBody  = "http.response.body"
)

// Message is the discriminated union carried by both channels. Only the
// fields meaningful for the given Type are populated:
//
//	http.request:         Body, MoreBody
//	http.disconnect:      -
//	http.response.start:  Status, Headers
//	http.response.body:   Body, MoreBody
type Message struct {
	Type     string
	Body     []byte
	MoreBody bool
	Status   int
	Headers  []Header
}

// Receive pulls the next inbound message. Blocks until a message arrives,
// the context is done, or the transport fails.
type Receive func(ctx context.Context) (Message, error)

// Send pushes one outbound message to the transport.
type Send func(ctx context.Context, msg Message) error

// ProtocolError signals a misbehaving transport or an integration bug. It is
// fatal for the connection and never maps to an HTTP response.
type ProtocolError struct {
	Reason string
}

func (p *ProtocolError) Error() string {
	return "protocol violation: " + p.Reason
}

// Violation returns a ProtocolError with a formatted reason.
func Violation(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
