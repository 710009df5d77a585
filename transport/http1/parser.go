package http1

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/internal/strutil"
	"github.com/bifrost-web/bifrost/internal/urlencoded"
	"github.com/indigo-web/utils/strcomp"
)

// maxHeadSize bounds the request line plus all headers. Anything above is
// answered with a bare 400 and the connection is dropped.
const maxHeadSize = 32 * 1024

var errMalformedHead = errors.New("malformed request head")

// requestHead is everything the transport learns before the body starts.
type requestHead struct {
	scope         *asgi.Scope
	contentLength int64
	chunked       bool
	trailer       bool
	keepAlive     bool
}

// parseHead consumes one head block from the stream. io.EOF with nothing
// consumed means the peer closed between requests and is not an error.
func parseHead(stream *lazystream.Stream, scheme string, client, server asgi.Addr) (*requestHead, error) {
	block, err := readHead(stream)
	if err != nil {
		return nil, err
	}

	line, rest, _ := bytes.Cut(block, []byte("\r\n"))
	method, target, proto, err := splitRequestLine(line)
	if err != nil {
		return nil, err
	}

	head := &requestHead{
		scope: &asgi.Scope{
			Type:   asgi.ScopeHTTP,
			Method: strings.ToUpper(method),
			Scheme: scheme,
			Client: client,
			Server: server,
		},
		contentLength: 0,
		keepAlive:     proto == "HTTP/1.1",
	}

	if err := parseTarget(target, head.scope); err != nil {
		return nil, err
	}

	for len(rest) > 0 {
		line, rest, _ = bytes.Cut(rest, []byte("\r\n"))
		if err := parseHeaderLine(line, head); err != nil {
			return nil, err
		}
	}

	return head, nil
}

// readHead probes the stream in doubling windows until the empty line
// terminating the head block is found, then pushes back whatever followed.
func readHead(stream *lazystream.Stream) ([]byte, error) {
	const term = "\r\n\r\n"

	for probeSize := 1024; ; probeSize *= 2 {
		if probeSize > maxHeadSize {
			return nil, errMalformedHead
		}

		data, err := stream.Read(probeSize)
		if err != nil {
			return nil, err
		}

		if idx := bytes.Index(data, []byte(term)); idx >= 0 {
			if err := stream.Unget(data[idx+len(term):]); err != nil {
				return nil, err
			}

			return data[:idx], nil
		}

		if len(data) < probeSize {
			// the connection ended before the head did
			if len(data) == 0 {
				return nil, io.EOF
			}

			return nil, errMalformedHead
		}

		if err := stream.Unget(data); err != nil {
			return nil, err
		}
	}
}

func splitRequestLine(line []byte) (method, target, proto string, err error) {
	m, rest, ok := bytes.Cut(line, []byte(" "))
	if !ok {
		return "", "", "", errMalformedHead
	}

	t, p, ok := bytes.Cut(rest, []byte(" "))
	if !ok || len(m) == 0 || len(t) == 0 {
		return "", "", "", errMalformedHead
	}

	proto = string(p)
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return "", "", "", errMalformedHead
	}

	return string(m), string(t), proto, nil
}

// parseTarget splits the request target into the decoded path and the raw
// query string. The query stays undecoded on purpose, its parsing is lazy
// and happens per-request downstream.
func parseTarget(target string, scope *asgi.Scope) error {
	path, query, _ := strings.Cut(target, "?")
	if len(path) == 0 || path[0] != '/' {
		return errMalformedHead
	}

	decoded, _, err := urlencoded.Decode([]byte(path), nil)
	if err != nil {
		return errMalformedHead
	}

	scope.Path = string(decoded)
	scope.RawQuery = query

	return nil
}

func parseHeaderLine(line []byte, head *requestHead) error {
	name, value, ok := bytes.Cut(line, []byte(":"))
	if !ok || len(name) == 0 {
		return errMalformedHead
	}

	key := strings.ToLower(string(name))
	val := strutil.LStripWS(string(value))
	head.scope.Headers = append(head.scope.Headers, asgi.Header{Key: key, Value: val})

	switch key {
	case "content-length":
		length, err := strconv.ParseInt(val, 10, 64)
		if err != nil || length < 0 {
			return errMalformedHead
		}

		head.contentLength = length
	case "transfer-encoding":
		if strings.Contains(strings.ToLower(val), "chunked") {
			head.chunked = true
		}
	case "connection":
		if strcomp.EqualFold(val, "close") {
			head.keepAlive = false
		} else if strcomp.EqualFold(val, "keep-alive") {
			head.keepAlive = true
		}
	case "trailer":
		head.trailer = true
	}

	return nil
}
