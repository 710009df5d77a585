package uploads

import (
	"errors"

	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/kv"
)

// Control-flow signals a handler may return from its lifecycle methods.
// They are part of the cooperative upload protocol, consumed inside the
// parser and never surfaced to the caller as failures.
var (
	// SkipFile abandons the current file: the rest of its bytes are
	// discarded and it never shows up in the parsed files.
	SkipFile = errors.New("uploads: skip this file")
	// StopFutureHandlers makes the raising handler the exclusive owner of
	// the file's bytes; handlers after it in the chain are not notified.
	StopFutureHandlers = errors.New("uploads: stop future handlers")
)

// StopUpload aborts the whole parse. ConnectionReset requests an immediate
// abandon of the input instead of a graceful drain.
type StopUpload struct {
	ConnectionReset bool
}

func (s StopUpload) Error() string {
	if s.ConnectionReset {
		return "uploads: stop upload, reset the connection"
	}

	return "uploads: stop upload"
}

// FileInfo describes the file part a handler is about to receive.
type FileInfo struct {
	FieldName   string
	FileName    string
	ContentType mime.MIME
	Charset     mime.Charset
	// ContentLength is the per-part announced length, or -1 when the part
	// carries none.
	ContentLength int64
}

// Handler consumes uploaded-file bytes chunk by chunk. One instance serves
// one request; instances must never be shared across requests.
type Handler interface {
	// ChunkSize is the read granularity the handler prefers, 0 for no
	// preference. The smallest preference across the chain wins.
	ChunkSize() int
	// RawInput offers the handler the whole unparsed body. Returning
	// handled=true short-circuits parsing entirely with the given results.
	RawInput(input lazystream.Source, meta *kv.Storage, contentLength int64, boundary []byte) (post *kv.Storage, files *Files, handled bool)
	// NewFile opens a file part. May return StopFutureHandlers or
	// StopUpload.
	NewFile(info FileInfo) error
	// ReceiveDataChunk feeds the next chunk; start is the byte offset this
	// handler has been fed so far. Returning a nil chunk with no error
	// halts notification of later handlers for this chunk. May return
	// SkipFile or StopUpload.
	ReceiveDataChunk(chunk []byte, start int64) ([]byte, error)
	// FileComplete is called once the part's last byte arrived. The first
	// handler to return a non-nil file claims the part.
	FileComplete(size int64) (*UploadedFile, error)
	// UploadComplete is a notification that the request is fully parsed.
	// Returning true short-circuits notification of later handlers.
	UploadComplete() bool
	// UploadInterrupted tells the handler the file it was receiving was
	// cut short.
	UploadInterrupted()
}

// BaseHandler is a no-op Handler to embed into custom implementations.
type BaseHandler struct{}

func (BaseHandler) ChunkSize() int { return 0 }

func (BaseHandler) RawInput(lazystream.Source, *kv.Storage, int64, []byte) (*kv.Storage, *Files, bool) {
	return nil, nil, false
}

func (BaseHandler) NewFile(FileInfo) error { return nil }

func (BaseHandler) ReceiveDataChunk(chunk []byte, _ int64) ([]byte, error) {
	return chunk, nil
}

func (BaseHandler) FileComplete(int64) (*UploadedFile, error) { return nil, nil }

func (BaseHandler) UploadComplete() bool { return false }

func (BaseHandler) UploadInterrupted() {}
