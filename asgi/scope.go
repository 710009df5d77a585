package asgi

// ScopeHTTP is the only connection type the gateway understands. Anything
// else in Scope.Type is a fatal integration error, not a per-request one.
const ScopeHTTP = "http"

// Addr is a transport-level peer address. Port is zero when the transport
// doesn't know it (unix sockets, test doubles).
type Addr struct {
	Host string
	Port int
}

// Scope describes a single inbound connection. It is created by the
// transport and must be treated as read-only by everything downstream.
type Scope struct {
	// Type discriminates the connection kind. The gateway only accepts
	// ScopeHTTP.
	Type string
	// Method is the uppercase request method.
	Method string
	// Scheme is "http" or "https".
	Scheme string
	// Path is the decoded request path, without the query string.
	Path string
	// RootPath is the mount prefix the application is served under. It is
	// stripped from Path when computing the route-relative path.
	RootPath string
	// RawQuery is the undecoded query string, without the leading '?'.
	RawQuery string
	// Headers holds the request headers in arrival order. Keys are expected
	// to be lowercase; lookups are case-insensitive regardless.
	Headers []Header
	// Client and Server are the endpoints of the underlying connection.
	Client Addr
	Server Addr
}

// Header is a single wire header pair.
type Header struct {
	Key, Value string
}
