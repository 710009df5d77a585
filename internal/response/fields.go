package response

import (
	"io"

	"github.com/bifrost-web/bifrost/http/cookie"
	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/kv"
)

const DefaultContentType = mime.HTML

// Fields is the response state accumulated by the public builder and read
// by the protocol engine. Either Body or Attachment carries the content,
// never both.
type Fields struct {
	Code        status.Code
	Status      status.Status
	ContentType mime.MIME
	Headers     []kv.Pair
	Cookies     []cookie.Cookie
	Body        []byte
	Attachment  Attachment
}

func (f *Fields) Clear() {
	f.Code = status.OK
	f.Status = ""
	f.ContentType = DefaultContentType
	f.Headers = f.Headers[:0]
	f.Cookies = f.Cookies[:0]
	f.Body = nil
	f.Attachment = Attachment{}
}

// Attachment is streamed content. A negative Size means the length isn't
// known upfront; File distinguishes disk-backed content, which the engine
// reads at a bigger granularity.
type Attachment struct {
	Content io.Reader
	Size    int64
	File    bool
}

func NewAttachment(content io.Reader, size int64, file bool) Attachment {
	return Attachment{Content: content, Size: size, File: file}
}

func (a Attachment) Empty() bool {
	return a.Content == nil
}

// Close releases the underlying reader if it holds a resource. Safe to
// call on an empty attachment.
func (a Attachment) Close() error {
	if closer, ok := a.Content.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
