package http1

import (
	"context"
	"strconv"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/internal/tcp"
)

// serializer renders outbound messages back into HTTP/1.1. The head is held
// back until the first body message arrives: a response fitting a single
// final message is framed with content-length, everything else goes chunked.
type serializer struct {
	client    tcp.Client
	buff      []byte
	start     asgi.Message
	started   bool
	wroteHead bool
	chunked   bool
	finished  bool
	keepAlive bool
}

func newSerializer(client tcp.Client, keepAlive bool) *serializer {
	return &serializer{client: client, keepAlive: keepAlive}
}

func (s *serializer) send(_ context.Context, msg asgi.Message) error {
	switch msg.Type {
	case asgi.MsgResponseStart:
		if s.started {
			return asgi.Violation("response already started")
		}

		s.started = true
		s.start = msg

		return nil
	case asgi.MsgResponseBody:
		return s.writeBody(msg)
	default:
		return asgi.Violation("unexpected outbound message type %q", msg.Type)
	}
}

func (s *serializer) writeBody(msg asgi.Message) error {
	if !s.started || s.finished {
		return asgi.Violation("unexpected response body message")
	}

	if !s.wroteHead {
		s.chunked = msg.MoreBody
		if err := s.writeHead(msg.Body); err != nil {
			return err
		}

		s.wroteHead = true
		if !s.chunked {
			// the body went out glued to the head
			s.finished = true

			return nil
		}
	}

	if err := s.writeChunk(msg.Body); err != nil {
		return err
	}

	if !msg.MoreBody {
		s.finished = true

		return s.client.Write([]byte("0\r\n\r\n"))
	}

	return nil
}

// writeHead renders the status line and headers. When the response isn't
// chunked, first is the complete body and goes out in the same write.
func (s *serializer) writeHead(first []byte) error {
	code := status.Code(s.start.Status)
	buff := s.buff[:0]
	buff = append(buff, "HTTP/1.1 "...)
	buff = strconv.AppendInt(buff, int64(code), 10)
	buff = append(buff, ' ')
	buff = append(buff, status.Text(code)...)
	buff = append(buff, '\r', '\n')

	for _, h := range s.start.Headers {
		buff = append(buff, h.Key...)
		buff = append(buff, ':', ' ')
		buff = append(buff, h.Value...)
		buff = append(buff, '\r', '\n')
	}

	if s.chunked {
		buff = append(buff, "transfer-encoding: chunked\r\n"...)
	} else {
		buff = append(buff, "content-length: "...)
		buff = strconv.AppendInt(buff, int64(len(first)), 10)
		buff = append(buff, '\r', '\n')
	}

	if !s.keepAlive {
		buff = append(buff, "connection: close\r\n"...)
	}

	buff = append(buff, '\r', '\n')
	if !s.chunked {
		buff = append(buff, first...)
	}

	s.buff = buff

	return s.client.Write(buff)
}

func (s *serializer) writeChunk(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	buff := s.buff[:0]
	buff = strconv.AppendUint(buff, uint64(len(data)), 16)
	buff = append(buff, '\r', '\n')
	buff = append(buff, data...)
	buff = append(buff, '\r', '\n')
	s.buff = buff

	return s.client.Write(buff)
}

// completed reports whether a full response has hit the wire. The serve loop
// drops the connection otherwise, as the peer would wait forever on a
// response that never finished.
func (s *serializer) completed() bool {
	return s.finished
}
