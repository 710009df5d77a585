package status

import "errors"

type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf extracts the status code of an error, falling back to 500 for
// anything that isn't an HTTPError.
func CodeOf(err error) Code {
	if http, ok := err.(HTTPError); ok {
		return http.Code
	}

	return InternalServerError
}

var (
	ErrBadRequest          = NewError(BadRequest, "bad request")
	ErrURLDecoding         = NewError(BadRequest, "invalid urlencoded sequence")
	ErrBadEncoding         = NewError(BadRequest, "bad request encoding")
	ErrNotFound            = NewError(NotFound, "not found")
	ErrInternalServerError = NewError(InternalServerError, "internal server error")
	ErrMethodNotAllowed    = NewError(MethodNotAllowed, "method not allowed")
	ErrRequestTimeout      = NewError(RequestTimeout, "request body read timed out")
	ErrBodyTooLarge        = NewError(RequestEntityTooLarge, "request body is too large")
	ErrUnsupportedMedia    = NewError(UnsupportedMediaType, "unsupported media type")

	// Multipart and form parsing conditions. Quota violations are distinct
	// from framing errors so the outer layer can map them separately.
	ErrMalformedMultipart = NewError(BadRequest, "malformed multipart body")
	ErrBadBoundary        = NewError(BadRequest, "invalid multipart boundary")
	ErrBadContentLength   = NewError(BadRequest, "invalid content length")
	ErrTooManyFields      = NewError(BadRequest, "the number of form fields exceeds the configured limit")
	ErrTooManyFiles       = NewError(BadRequest, "the number of uploaded files exceeds the configured limit")
	ErrDataTooBig         = NewError(RequestEntityTooLarge, "form data exceeds the configured in-memory limit")
	ErrPartHeadersTooBig  = NewError(BadRequest, "multipart part headers exceed the size limit")
	// ErrParserStuck fires when the boundary scanner keeps pushing back the
	// same bytes without advancing, which only happens on maliciously
	// crafted bodies.
	ErrParserStuck = NewError(BadRequest, "multipart parser got stuck")

	// ErrRequestAborted is terminal: the client hung up mid-read. No
	// response may be produced for it, ever.
	ErrRequestAborted = NewError(BadRequest, "client disconnected during body read")

	// Shutdown signals drive the application teardown and never reach a
	// client.
	ErrGracefulShutdown = errors.New("graceful shutdown")
	ErrShutdown         = errors.New("shutdown")
)
