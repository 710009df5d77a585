package http1

import (
	"context"
	"io"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/indigo-web/chunkedbody"
)

// bodyReader turns the request body laying on the wire into http.request
// messages. Once the body is over, further calls report a disconnect, as by
// then the transport has nothing else to say about this request.
type bodyReader struct {
	stream    *lazystream.Stream
	parser    *chunkedbody.Parser
	remaining int64
	chunked   bool
	trailer   bool
	done      bool
}

func newBodyReader(stream *lazystream.Stream, parser *chunkedbody.Parser, head *requestHead) *bodyReader {
	return &bodyReader{
		stream:    stream,
		parser:    parser,
		remaining: head.contentLength,
		chunked:   head.chunked,
		trailer:   head.trailer,
	}
}

func (b *bodyReader) receive(context.Context) (asgi.Message, error) {
	if b.done {
		return asgi.Message{Type: asgi.MsgDisconnect}, nil
	}

	if b.chunked {
		return b.readChunked()
	}

	return b.readPlain()
}

func (b *bodyReader) readPlain() (asgi.Message, error) {
	if b.remaining == 0 {
		b.done = true

		return asgi.Message{Type: asgi.MsgRequest}, nil
	}

	data, err := b.stream.Next()
	if err != nil {
		// a body cut short, be it a peer reset or a read timeout, is a
		// disconnect rather than a transport failure
		b.done = true

		return asgi.Message{Type: asgi.MsgDisconnect}, nil
	}

	if int64(len(data)) > b.remaining {
		surplus := data[b.remaining:]
		data = data[:b.remaining]
		if err := b.stream.Unget(surplus); err != nil {
			b.done = true

			return asgi.Message{}, err
		}
	}

	b.remaining -= int64(len(data))
	more := b.remaining > 0
	b.done = !more

	return asgi.Message{Type: asgi.MsgRequest, Body: data, MoreBody: more}, nil
}

func (b *bodyReader) readChunked() (asgi.Message, error) {
	data, err := b.stream.Next()
	if err != nil {
		b.done = true

		return asgi.Message{Type: asgi.MsgDisconnect}, nil
	}

	chunk, extra, err := b.parser.Parse(data, b.trailer)
	switch err {
	case nil, io.EOF:
	default:
		b.done = true

		return asgi.Message{}, status.ErrBadRequest
	}

	if uerr := b.stream.Unget(extra); uerr != nil {
		b.done = true

		return asgi.Message{}, uerr
	}

	more := err == nil
	b.done = !more

	return asgi.Message{Type: asgi.MsgRequest, Body: chunk, MoreBody: more}, nil
}

// drain eats the rest of the body so the connection can carry the next
// request. Reports whether the wire is still usable.
func (b *bodyReader) drain() bool {
	for !b.done {
		msg, err := b.receive(context.Background())
		if err != nil {
			return false
		}

		if msg.Type == asgi.MsgDisconnect {
			return false
		}
	}

	return true
}
