package http1

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http"
	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/internal/protocol/gateway"
	"github.com/stretchr/testify/require"
)

// exchange feeds raw bytes through a served pipe connection and returns
// everything the transport wrote back. The raw request must ask for the
// connection to be closed, otherwise the read never finishes.
func exchange(t *testing.T, cfg *config.Config, handler gateway.Handler, raw string) string {
	t.Helper()

	server, client := net.Pipe()
	done := make(chan error, 1)

	go func() {
		err := Serve(context.Background(), cfg, server, gateway.New(cfg, handler))
		_ = server.Close()
		done <- err
	}()

	_, err := client.Write([]byte(raw))
	require.NoError(t, err)

	response, err := io.ReadAll(client)
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, <-done)

	return string(response)
}

func TestServe(t *testing.T) {
	cfg := config.Default()

	t.Run("get round trip", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			return r.Respond().ContentType(mime.Plain).String("hello, " + r.Path[1:])
		}, "GET /world HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n")

		require.True(t, strings.HasPrefix(response, "HTTP/1.1 200 OK\r\n"), response)
		require.Contains(t, response, "content-type: text/plain\r\n")
		require.Contains(t, response, "content-length: 12\r\n")
		require.True(t, strings.HasSuffix(response, "\r\n\r\nhello, world"), response)
	})

	t.Run("sized request body is echoed", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			body, err := r.Body.String()
			if err != nil {
				return r.Respond().Error(err)
			}

			return r.Respond().String(body)
		}, "POST /echo HTTP/1.1\r\nContent-Length: 11\r\nConnection: close\r\n\r\nhello world")

		require.True(t, strings.HasSuffix(response, "\r\n\r\nhello world"), response)
	})

	t.Run("chunked request body is reassembled", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			body, err := r.Body.String()
			if err != nil {
				return r.Respond().Error(err)
			}

			return r.Respond().String(body)
		}, "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n"+
			"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")

		require.True(t, strings.HasSuffix(response, "\r\n\r\nhello world"), response)
	})

	t.Run("streamed response goes chunked", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			return r.Respond().Stream(strings.NewReader("hello world"), http.StreamSizeUnknown)
		}, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")

		require.Contains(t, response, "transfer-encoding: chunked\r\n")
		require.True(t, strings.HasSuffix(response, "\r\nhello world\r\n0\r\n\r\n"), response)
	})

	t.Run("keep-alive serves pipelined requests in order", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			return r.Respond().String(r.Path)
		}, "GET /first HTTP/1.1\r\nHost: localhost\r\n\r\n"+
			"GET /second HTTP/1.1\r\nConnection: close\r\n\r\n")

		first := strings.Index(response, "/first")
		second := strings.Index(response, "/second")
		require.Positive(t, first)
		require.Greater(t, second, first)
		require.Equal(t, 2, strings.Count(response, "HTTP/1.1 200 OK\r\n"))
	})

	t.Run("unread request body is drained before the next request", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			return r.Respond().String(r.Path)
		}, "POST /skip HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"+
			"GET /next HTTP/1.1\r\nConnection: close\r\n\r\n")

		require.Contains(t, response, "/skip")
		require.Contains(t, response, "/next")
	})

	t.Run("malformed head gets a bare 400", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			t.Error("the handler must not run")

			return r.Respond()
		}, "BROKEN\r\n\r\n")

		require.Equal(t, "HTTP/1.1 400 Bad Request\r\ncontent-length: 0\r\nconnection: close\r\n\r\n", response)
	})

	t.Run("handler error maps onto the status line", func(t *testing.T) {
		response := exchange(t, cfg, func(r *http.Request) *http.Response {
			return r.Respond().Error(status.ErrNotFound)
		}, "GET /missing HTTP/1.1\r\nConnection: close\r\n\r\n")

		require.True(t, strings.HasPrefix(response, "HTTP/1.1 404 Not Found\r\n"), response)
	})
}
