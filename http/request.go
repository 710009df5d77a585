package http

import (
	"context"
	"strconv"
	"strings"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http/cookie"
	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/http/uploads"
	"github.com/bifrost-web/bifrost/internal/multipart"
	"github.com/bifrost-web/bifrost/internal/strutil"
	"github.com/bifrost-web/bifrost/internal/urlencoded"
	"github.com/bifrost-web/bifrost/kv"
	"github.com/indigo-web/utils/uf"
)

type (
	Headers = *kv.Storage
	Header  = kv.Pair
	Params  = *kv.Storage
)

// Request represents one HTTP request. Everything derivable from the scope
// is computed at construction; the body, the query parameters and the form
// are materialized lazily and memoized.
type Request struct {
	// Method is the uppercase request method.
	Method string
	// Path is the decoded request path, without the query string.
	Path string
	// RootPath is the mount prefix the application is served under.
	RootPath string
	// RawQuery is the undecoded query string without the leading '?'.
	RawQuery string
	// Scheme is "http" or "https".
	Scheme string
	// Headers holds non-normalized header pairs, even though lookup is
	// case-insensitive. Repeated keys can be folded into a single
	// comma-separated value via Headers.Joined.
	Headers Headers
	// Remote holds the remote address. Please note that this is generally
	// not a good parameter to identify a user, because there might be
	// proxies in the middle.
	Remote asgi.Addr
	// ContentType obtains the Content-Type header value.
	ContentType string
	// ContentLength is the announced body size: zero when the header is
	// absent, negative when it's present but unparseable.
	ContentLength int64
	// Charset is the effective form-data encoding: the Content-Type's
	// charset parameter when it names a known codec, the configured
	// default otherwise.
	Charset mime.Charset
	// Body is a dedicated entity providing access to the message body.
	Body *Body

	cfg      *config.Config
	response *Response
	jar      cookie.Jar

	handlers []uploads.Handler
	frozen   bool

	query    Params
	queryErr error
	queried  bool

	post     Params
	files    *uploads.Files
	formErr  error
	formDone bool
}

// NewRequest builds a request off a connection scope. The receive callable
// is handed over to the request's body, which becomes its only consumer.
func NewRequest(ctx context.Context, cfg *config.Config, scope *asgi.Scope, receive asgi.Receive) *Request {
	headers := kv.NewPrealloc(len(scope.Headers))
	for _, h := range scope.Headers {
		headers.Add(h.Key, h.Value)
	}

	r := &Request{
		Method:   scope.Method,
		Path:     scope.Path,
		RootPath: scope.RootPath,
		RawQuery: scope.RawQuery,
		Scheme:   scope.Scheme,
		Headers:  headers,
		Remote:   scope.Client,
		cfg:      cfg,
		response: NewResponse(),
		handlers: []uploads.Handler{
			uploads.NewMemoryHandler(cfg.Body.Uploads.FileMaxMemorySize),
			uploads.NewTempFileHandler(cfg.Body.Uploads.TempDir),
		},
	}

	r.ContentType = headers.Value("content-type")
	r.ContentLength = announcedLength(headers)
	r.Charset = negotiateCharset(r.ContentType, cfg.Body.Uploads.DefaultCharset)
	r.Body = NewBody(ctx, receive, r, cfg)

	return r
}

// Query returns the parsed query string parameters. The query is parsed
// once; both the result and the error are memoized.
func (r *Request) Query() (Params, error) {
	if !r.queried {
		r.queried = true
		r.query = kv.New()
		r.queryErr = urlencoded.ParseForm(uf.S2B(r.RawQuery), r.query, r.formLimits())
	}

	return r.query, r.queryErr
}

// Form returns the request's form fields: multipart/form-data or
// application/x-www-form-urlencoded, depending on the content type. Any
// other content type yields an empty storage and leaves the body alone.
func (r *Request) Form() (Params, error) {
	r.loadForm()
	return r.post, r.formErr
}

// Files returns the uploaded files collected by the upload-handler chain.
func (r *Request) Files() (*uploads.Files, error) {
	r.loadForm()
	return r.files, r.formErr
}

// UploadHandlers returns the active upload-handler chain.
func (r *Request) UploadHandlers() []uploads.Handler {
	return r.handlers
}

// SetUploadHandlers replaces the upload-handler chain. Once form parsing
// has started the chain is frozen and replacing it fails.
func (r *Request) SetUploadHandlers(handlers ...uploads.Handler) error {
	if r.frozen {
		return ErrHandlersFrozen
	}

	r.handlers = handlers

	return nil
}

// Cookies returns a cookie jar with parsed cookies key-value pairs, and an
// error if the syntax is malformed. The returned jar should be re-used, as
// this method doesn't cache the parsed result across calls and may be
// pretty expensive
func (r *Request) Cookies() (cookie.Jar, error) {
	if r.jar == nil {
		r.jar = cookie.NewJar()
	}

	r.jar.Clear()

	// in RFC 6265, 5.4 cookies are explicitly prohibited from being split
	// into list, yet in HTTP/2 it's allowed. I have concerns of some
	// user-agents may despite sending them as a list, even via HTTP/1.1
	for value := range r.Headers.Values("cookie") {
		if err := cookie.Parse(r.jar, value); err != nil {
			return nil, err
		}
	}

	return r.jar, nil
}

// Respond returns the Response object.
//
// WARNING: this method clears the response builder under the hood. As it is
// passed by reference, it'll be cleared EVERYWHERE along a handler
func (r *Request) Respond() *Response {
	return r.response.Clear()
}

func (r *Request) loadForm() {
	if r.formDone {
		return
	}

	r.formDone = true
	r.frozen = true
	r.post = kv.New()
	r.files = uploads.NewFiles()

	switch {
	case mime.Complies(mime.Multipart, r.ContentType):
		parser, err := multipart.New(r.cfg, r.ContentType, r.ContentLength, r.Body, r.handlers, r.Charset)
		if err != nil {
			r.formErr = err
			return
		}

		post, files, err := parser.Parse(r.Headers)
		if err != nil {
			r.formErr = err
			return
		}

		r.post, r.files = post, files
	case mime.Complies(mime.FormUrlencoded, r.ContentType):
		data, err := r.Body.Bytes()
		if err != nil {
			r.formErr = err
			return
		}

		r.formErr = urlencoded.ParseForm(data, r.post, r.formLimits())
	}
}

func (r *Request) formLimits() urlencoded.Limits {
	return urlencoded.Limits{
		MaxSize:   r.cfg.Body.Uploads.DataMaxSize,
		MaxFields: r.cfg.Body.Uploads.MaxNumberFields,
	}
}

func announcedLength(headers Headers) int64 {
	value, found := headers.Get("content-length")
	if !found {
		return 0
	}

	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return -1
	}

	return parsed
}

func negotiateCharset(contentType string, fallback mime.Charset) mime.Charset {
	for key, value := range strutil.WalkParams(strutil.CutParams(contentType)) {
		if key == "charset" {
			if charset, known := mime.LookupCharset(value); known {
				return charset
			}

			break
		}
	}

	return fallback
}
