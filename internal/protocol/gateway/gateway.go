package gateway

import (
	"context"
	"errors"
	"io"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/internal/chunker"
	"github.com/bifrost-web/bifrost/internal/dispatch"
	"github.com/bifrost-web/bifrost/internal/response"
)

// Handler is the synchronous application layer. It always produces a
// response; failures are expressed through the response builder.
type Handler func(*http.Request) *http.Response

// Gateway turns one connection scope plus its message channels into a
// request served by the application. It is transport-agnostic: everything
// it knows about the peer comes through the scope and the two callables.
type Gateway struct {
	cfg     *config.Config
	handler Handler
}

func New(cfg *config.Config, handler Handler) *Gateway {
	return &Gateway{cfg: cfg, handler: handler}
}

// Serve drives a single request/response exchange.
//
// The first inbound message is awaited before anything else happens: a
// disconnect at that point ends the cycle with zero messages sent. Once
// the response's final body message is out, nothing else is ever sent.
func (g *Gateway) Serve(ctx context.Context, scope *asgi.Scope, receive asgi.Receive, send asgi.Send) error {
	if scope.Type != asgi.ScopeHTTP {
		return asgi.Violation("unsupported scope type %q", scope.Type)
	}

	if len(g.cfg.URL.ScriptName) > 0 {
		mounted := *scope
		mounted.RootPath = g.cfg.URL.ScriptName
		scope = &mounted
	}

	first, err := receive(ctx)
	if err != nil {
		return err
	}

	switch first.Type {
	case asgi.MsgDisconnect:
		return nil
	case asgi.MsgRequest:
	default:
		return asgi.Violation("expected %s, got %q", asgi.MsgRequest, first.Type)
	}

	request := http.NewRequest(ctx, g.cfg, scope, primed(first, receive))

	resp := g.dispatch(ctx, request)
	defer resp.Close()

	if errors.Is(request.Body.Error(), status.ErrRequestAborted) || ctx.Err() != nil {
		// the peer is gone, anything sent now would be a protocol violation
		return nil
	}

	return g.respond(ctx, send, resp.Reveal())
}

// primed returns a receive callable that replays the already-consumed
// first message before delegating to the transport.
func primed(first asgi.Message, receive asgi.Receive) asgi.Receive {
	delivered := false

	return func(ctx context.Context) (asgi.Message, error) {
		if !delivered {
			delivered = true
			return first, nil
		}

		return receive(ctx)
	}
}

// dispatch runs the application layer on a dedicated worker goroutine
// locked to its OS thread and waits for the outcome. A panicking or
// absent result degrades to a minimal 500.
func (g *Gateway) dispatch(ctx context.Context, request *http.Request) *http.Response {
	executor := dispatch.NewExecutor()
	defer executor.Close()

	var result *http.Response
	err := executor.Submit(ctx, func() {
		defer func() {
			if recover() != nil {
				result = nil
			}
		}()

		result = g.handler(request)
	})

	if err != nil || result == nil {
		return http.NewResponse().Code(status.InternalServerError)
	}

	return result
}

func (g *Gateway) respond(ctx context.Context, send asgi.Send, fields *response.Fields) error {
	headers := make([]asgi.Header, 0, len(fields.Headers)+len(fields.Cookies)+1)
	headers = append(headers, asgi.Header{Key: "content-type", Value: fields.ContentType})

	for _, h := range fields.Headers {
		headers = append(headers, asgi.Header{Key: h.Key, Value: h.Value})
	}

	for _, c := range fields.Cookies {
		headers = append(headers, asgi.Header{Key: "set-cookie", Value: c.String()})
	}

	err := send(ctx, asgi.Message{
		Type:    asgi.MsgResponseStart,
		Status:  int(fields.Code),
		Headers: headers,
	})
	if err != nil {
		return err
	}

	if !fields.Attachment.Empty() {
		return g.sendStream(ctx, send, fields.Attachment)
	}

	for chunk, last := range chunker.Split(fields.Body, g.cfg.HTTP.ChunkSize) {
		err := send(ctx, asgi.Message{
			Type:     asgi.MsgResponseBody,
			Body:     chunk,
			MoreBody: !last,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// sendStream re-chunks streamed content. Every data message announces more
// to come; a trailing empty message closes the response, as the reader's
// end isn't known ahead of the read that hits it.
func (g *Gateway) sendStream(ctx context.Context, send asgi.Send, att response.Attachment) error {
	size := g.cfg.HTTP.ChunkSize
	if att.File {
		size = g.cfg.HTTP.FileChunkSize
	}

	buff := make([]byte, size)

	for {
		n, err := att.Content.Read(buff)
		if n > 0 {
			sendErr := send(ctx, asgi.Message{
				Type:     asgi.MsgResponseBody,
				Body:     buff[:n],
				MoreBody: true,
			})
			if sendErr != nil {
				return sendErr
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	return send(ctx, asgi.Message{Type: asgi.MsgResponseBody})
}
