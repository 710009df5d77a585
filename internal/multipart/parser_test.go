package multipart

import (
	"encoding/base64"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/http/uploads"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/kv"
	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"
)

const testBoundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"

func contentTypeOf(boundary string) string {
	return "multipart/form-data; boundary=" + boundary
}

func fieldPart(name, value string) string {
	return "--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"" + name +
		"\"\r\n\r\n" + value + "\r\n"
}

func filePart(field, filename, contentType, content string) string {
	return "--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"" + field +
		"\"; filename=\"" + filename + "\"\r\nContent-Type: " + contentType +
		"\r\n\r\n" + content + "\r\n"
}

func joinParts(parts ...string) string {
	return strings.Join(parts, "") + "--" + testBoundary + "--\r\n"
}

func chunkedSource(data string, size int) lazystream.Source {
	rest := []byte(data)

	return lazystream.SourceFunc(func() ([]byte, error) {
		if len(rest) == 0 {
			return nil, io.EOF
		}

		n := min(size, len(rest))
		chunk := rest[:n]
		rest = rest[n:]

		return chunk, nil
	})
}

func parseBody(
	cfg *config.Config, data string, chunkSize int, handlers ...uploads.Handler,
) (*kv.Storage, *uploads.Files, error) {
	p, err := New(cfg, contentTypeOf(testBoundary), int64(len(data)), chunkedSource(data, chunkSize), handlers, "")
	if err != nil {
		return nil, nil, err
	}

	return p.Parse(kv.New())
}

func TestParser(t *testing.T) {
	avatar := uniuri.NewLen(500)

	t.Run("fields and a file across every chunk seam", func(t *testing.T) {
		data := joinParts(
			fieldPart("username", "Alice"),
			fieldPart("bio", "first line\r\nsecond line"),
			filePart("avatar", "avatar.png", "image/png", avatar),
		)

		for size := 1; size <= len(data); size++ {
			post, files, err := parseBody(config.Default(), data, size, uploads.NewMemoryHandler(1<<20))
			require.NoError(t, err, "chunk size %d", size)
			require.Equal(t, "Alice", post.Value("username"))
			require.Equal(t, "first line\r\nsecond line", post.Value("bio"))
			require.Equal(t, 1, files.Len())

			file, found := files.Get("avatar")
			require.True(t, found)
			require.Equal(t, "avatar.png", file.Name)
			require.Equal(t, "image/png", file.ContentType)
			require.True(t, file.InMemory())
			require.Equal(t, int64(len(avatar)), file.Size)

			content, err := file.Bytes()
			require.NoError(t, err)
			require.Equal(t, avatar, string(content))
		}
	})

	t.Run("zero length body leaves the stream untouched", func(t *testing.T) {
		touched := false
		src := lazystream.SourceFunc(func() ([]byte, error) {
			touched = true
			return nil, io.EOF
		})

		p, err := New(config.Default(), contentTypeOf(testBoundary), 0, src, nil, "")
		require.NoError(t, err)

		post, files, err := p.Parse(kv.New())
		require.NoError(t, err)
		require.True(t, post.Empty())
		require.Equal(t, 0, files.Len())
		require.False(t, touched)
	})

	t.Run("large uploads spool to disk", func(t *testing.T) {
		data := joinParts(filePart("dump", "dump.bin", "application/octet-stream", avatar))
		handlers := []uploads.Handler{
			uploads.NewMemoryHandler(0),
			uploads.NewTempFileHandler(t.TempDir()),
		}

		_, files, err := parseBody(config.Default(), data, 64, handlers...)
		require.NoError(t, err)

		file, found := files.Get("dump")
		require.True(t, found)
		require.False(t, file.InMemory())
		require.NotEmpty(t, file.TempPath())
		require.Equal(t, int64(len(avatar)), file.Size)

		reader, err := file.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(reader)
		require.NoError(t, err)
		require.Equal(t, avatar, string(content))

		require.NoError(t, files.Close())
	})

	t.Run("base64 field", func(t *testing.T) {
		data := "--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"secret\"\r\n" +
			"Content-Transfer-Encoding: base64\r\n\r\n" +
			base64.StdEncoding.EncodeToString([]byte("hello, world")) + "\r\n" +
			"--" + testBoundary + "--\r\n"

		post, _, err := parseBody(config.Default(), data, 64, uploads.NewMemoryHandler(1<<20))
		require.NoError(t, err)
		require.Equal(t, "hello, world", post.Value("secret"))
	})

	t.Run("base64 file decoded by quanta", func(t *testing.T) {
		content := uniuri.NewLen(999)
		data := "--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"blob\"; " +
			"filename=\"blob.bin\"\r\nContent-Type: application/octet-stream\r\n" +
			"Content-Transfer-Encoding: base64\r\n\r\n" +
			base64.StdEncoding.EncodeToString([]byte(content)) + "\r\n" +
			"--" + testBoundary + "--\r\n"

		// a chunk size indivisible by four forces quantum completion reads
		_, files, err := parseBody(config.Default(), data, 3, uploads.NewMemoryHandler(1<<20))
		require.NoError(t, err)

		file, found := files.Get("blob")
		require.True(t, found)
		decoded, err := file.Bytes()
		require.NoError(t, err)
		require.Equal(t, content, string(decoded))
	})

	t.Run("skipped file keeps later parts", func(t *testing.T) {
		data := joinParts(
			fieldPart("a", "1"),
			filePart("blocked", "evil.bin", "application/octet-stream", avatar),
			fieldPart("b", "2"),
			filePart("kept", "fine.txt", "text/plain", "contents"),
		)
		handlers := []uploads.Handler{
			&skipHandler{blocked: "blocked"},
			uploads.NewMemoryHandler(1 << 20),
		}

		post, files, err := parseBody(config.Default(), data, 16, handlers...)
		require.NoError(t, err)
		require.Equal(t, "1", post.Value("a"))
		require.Equal(t, "2", post.Value("b"))
		require.False(t, files.Has("blocked"))
		require.True(t, files.Has("kept"))
	})

	t.Run("stop upload drains and returns what was collected", func(t *testing.T) {
		data := joinParts(
			fieldPart("a", "1"),
			filePart("f", "f.bin", "application/octet-stream", strings.Repeat("x", 2000)),
			fieldPart("b", "2"),
		)
		rest := []byte(data)
		src := lazystream.SourceFunc(func() ([]byte, error) {
			if len(rest) == 0 {
				return nil, io.EOF
			}

			chunk := rest[:min(8, len(rest))]
			rest = rest[len(chunk):]

			return chunk, nil
		})

		p, err := New(config.Default(), contentTypeOf(testBoundary), int64(len(data)), src, []uploads.Handler{&stopHandler{}}, "")
		require.NoError(t, err)

		post, files, err := p.Parse(kv.New())
		require.NoError(t, err)
		require.Equal(t, "1", post.Value("a"))
		require.False(t, post.Has("b"))
		require.Equal(t, 0, files.Len())
		require.Empty(t, rest, "the body must be read to the end")
	})

	t.Run("stop upload with connection reset stops reading", func(t *testing.T) {
		data := joinParts(
			fieldPart("a", "1"),
			filePart("f", "f.bin", "application/octet-stream", strings.Repeat("x", 2000)),
		)
		rest := []byte(data)
		src := lazystream.SourceFunc(func() ([]byte, error) {
			if len(rest) == 0 {
				return nil, io.EOF
			}

			chunk := rest[:min(8, len(rest))]
			rest = rest[len(chunk):]

			return chunk, nil
		})

		p, err := New(
			config.Default(), contentTypeOf(testBoundary), int64(len(data)), src,
			[]uploads.Handler{&stopHandler{reset: true}}, "",
		)
		require.NoError(t, err)

		post, _, err := p.Parse(kv.New())
		require.NoError(t, err)
		require.Equal(t, "1", post.Value("a"))
		require.NotEmpty(t, rest, "a reset must not drain the body")
	})

	t.Run("rejected file names are skipped", func(t *testing.T) {
		data := joinParts(
			filePart("first", "..", "text/plain", "nope"),
			filePart("second", "../../etc/passwd", "text/plain", "root:x:0:0"),
		)

		_, files, err := parseBody(config.Default(), data, 32, uploads.NewMemoryHandler(1<<20))
		require.NoError(t, err)
		require.False(t, files.Has("first"))

		file, found := files.Get("second")
		require.True(t, found)
		require.Equal(t, "passwd", file.Name)
	})

	t.Run("truncated body drops the unterminated file", func(t *testing.T) {
		data := fieldPart("a", "1") +
			"--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"f\"; " +
			"filename=\"f.bin\"\r\n\r\ncut off mid-"

		post, files, err := parseBody(config.Default(), data, 16, uploads.NewMemoryHandler(1<<20))
		require.NoError(t, err)
		require.Equal(t, "1", post.Value("a"))
		require.Equal(t, 0, files.Len())
	})

	t.Run("empty field name is ignored", func(t *testing.T) {
		data := joinParts(fieldPart("", "dropped"), fieldPart("kept", "value"))

		post, _, err := parseBody(config.Default(), data, 16, uploads.NewMemoryHandler(1<<20))
		require.NoError(t, err)
		require.Equal(t, 1, post.Len())
		require.Equal(t, "value", post.Value("kept"))
	})

	t.Run("raw input delegation", func(t *testing.T) {
		want := kv.New().Add("delegated", "yes")
		handler := &rawInputHandler{post: want, files: uploads.NewFiles()}

		post, files, err := parseBody(config.Default(), joinParts(fieldPart("a", "1")), 16, handler)
		require.NoError(t, err)
		require.Equal(t, want, post)
		require.Equal(t, 0, files.Len())
	})
}

func TestParserValidation(t *testing.T) {
	newParser := func(contentType string, length int64) error {
		_, err := New(config.Default(), contentType, length, chunkedSource("", 1), nil, "")
		return err
	}

	t.Run("negative content length", func(t *testing.T) {
		err := newParser(contentTypeOf(testBoundary), -1)
		require.ErrorIs(t, err, status.ErrBadContentLength)
	})

	t.Run("not multipart", func(t *testing.T) {
		err := newParser("application/json", 10)
		require.ErrorIs(t, err, status.ErrUnsupportedMedia)
	})

	t.Run("missing boundary", func(t *testing.T) {
		err := newParser("multipart/form-data", 10)
		require.ErrorIs(t, err, status.ErrBadBoundary)
	})

	t.Run("overlong boundary", func(t *testing.T) {
		err := newParser("multipart/form-data; boundary="+strings.Repeat("a", 300), 10)
		require.ErrorIs(t, err, status.ErrBadBoundary)
	})

	t.Run("non-ascii content type", func(t *testing.T) {
		err := newParser("multipart/form-data; boundary=\xc3\xa9clair", 10)
		require.ErrorIs(t, err, status.ErrMalformedMultipart)
	})
}

func TestParserQuotas(t *testing.T) {
	t.Run("too many fields", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.Uploads.MaxNumberFields = 1

		data := joinParts(fieldPart("a", "1"), fieldPart("b", "2"))
		_, _, err := parseBody(cfg, data, 16, uploads.NewMemoryHandler(1<<20))
		require.ErrorIs(t, err, status.ErrTooManyFields)
	})

	t.Run("prologue and epilogue do not count as fields", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.Uploads.MaxNumberFields = 0

		data := joinParts(filePart("f", "f.txt", "text/plain", "contents"))
		_, files, err := parseBody(cfg, data, 16, uploads.NewMemoryHandler(1<<20))
		require.NoError(t, err)
		require.True(t, files.Has("f"))
	})

	t.Run("field data over the size quota", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.Uploads.DataMaxSize = 10

		data := joinParts(fieldPart("a", strings.Repeat("x", 100)))
		_, _, err := parseBody(cfg, data, 16, uploads.NewMemoryHandler(1<<20))
		require.ErrorIs(t, err, status.ErrDataTooBig)
	})

	t.Run("too many files", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.Uploads.MaxNumberFiles = 1

		data := joinParts(
			filePart("f1", "a.txt", "text/plain", "one"),
			filePart("f2", "b.txt", "text/plain", "two"),
		)
		_, _, err := parseBody(cfg, data, 16, uploads.NewMemoryHandler(1<<20))
		require.ErrorIs(t, err, status.ErrTooManyFiles)
	})

	t.Run("part headers over the limit", func(t *testing.T) {
		data := joinParts(fieldPart("x"+strings.Repeat("a", 2000), "v"))
		_, _, err := parseBody(config.Default(), data, 64, uploads.NewMemoryHandler(1<<20))
		require.ErrorIs(t, err, status.ErrPartHeadersTooBig)
	})

	t.Run("quota failure removes spooled files", func(t *testing.T) {
		cfg := config.Default()
		cfg.Body.Uploads.MaxNumberFiles = 1
		dir := t.TempDir()

		data := joinParts(
			filePart("first", "first.bin", "application/octet-stream", uniuri.NewLen(256)),
			filePart("second", "second.bin", "application/octet-stream", uniuri.NewLen(256)),
		)
		handlers := []uploads.Handler{uploads.NewMemoryHandler(0), uploads.NewTempFileHandler(dir)}
		_, _, err := parseBody(cfg, data, 64, handlers...)
		require.ErrorIs(t, err, status.ErrTooManyFiles)

		leftovers, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, leftovers)
	})

	t.Run("head failure discards the in-flight spool file", func(t *testing.T) {
		dir := t.TempDir()

		data := joinParts(
			filePart("first", "first.bin", "application/octet-stream", uniuri.NewLen(256)),
			fieldPart("x"+strings.Repeat("a", 2000), "v"),
		)
		handlers := []uploads.Handler{uploads.NewMemoryHandler(0), uploads.NewTempFileHandler(dir)}
		_, _, err := parseBody(config.Default(), data, 64, handlers...)
		require.ErrorIs(t, err, status.ErrPartHeadersTooBig)

		leftovers, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, leftovers)
	})
}

func TestSanitizeFileName(t *testing.T) {
	t.Run("path components stripped", func(t *testing.T) {
		require.Equal(t, "passwd", sanitizeFileName("../../etc/passwd"))
		require.Equal(t, "boot.ini", sanitizeFileName("C:\\Windows\\boot.ini"))
	})

	t.Run("html entities unescaped before stripping", func(t *testing.T) {
		require.Equal(t, "", sanitizeFileName("..&#47;"))
	})

	t.Run("dot names rejected", func(t *testing.T) {
		require.Equal(t, "", sanitizeFileName(""))
		require.Equal(t, "", sanitizeFileName("."))
		require.Equal(t, "", sanitizeFileName(".."))
	})

	t.Run("non-printables dropped", func(t *testing.T) {
		require.Equal(t, "report.pdf", sanitizeFileName("rep\x00ort.pdf"))
	})

	t.Run("overlong names capped", func(t *testing.T) {
		require.Len(t, sanitizeFileName(strings.Repeat("a", 300)), 255)
	})
}

// skipHandler refuses the file of one field and lets everything else pass.
type skipHandler struct {
	uploads.BaseHandler
	blocked string
	current string
}

func (s *skipHandler) NewFile(info uploads.FileInfo) error {
	s.current = info.FieldName
	return nil
}

func (s *skipHandler) ReceiveDataChunk(chunk []byte, _ int64) ([]byte, error) {
	if s.current == s.blocked {
		return nil, uploads.SkipFile
	}

	return chunk, nil
}

// stopHandler aborts the whole upload on the first file byte.
type stopHandler struct {
	uploads.BaseHandler
	reset bool
}

func (s *stopHandler) ReceiveDataChunk([]byte, int64) ([]byte, error) {
	return nil, uploads.StopUpload{ConnectionReset: s.reset}
}

// rawInputHandler takes over the unparsed stream entirely.
type rawInputHandler struct {
	uploads.BaseHandler
	post  *kv.Storage
	files *uploads.Files
}

func (r *rawInputHandler) RawInput(lazystream.Source, *kv.Storage, int64, []byte) (*kv.Storage, *uploads.Files, bool) {
	return r.post, r.files, true
}
