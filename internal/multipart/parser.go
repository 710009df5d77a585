package multipart

import (
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/http/uploads"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/internal/strutil"
	"github.com/bifrost-web/bifrost/kv"
)

// chunkSizeCap keeps chunk sizes compatible with 32-bit network APIs:
// below 2^31 yet divisible by 4.
const chunkSizeCap = 1<<31 - 4

// Parser is an RFC 7578 multipart/form-data parser feeding file bytes
// incrementally to the upload-handler chain. One instance serves one
// request.
type Parser struct {
	cfg           config.Uploads
	boundary      []byte
	contentLength int64
	chunkSize     int
	encoding      mime.Charset
	handlers      []uploads.Handler
	input         lazystream.Source

	post  *kv.Storage
	files *uploads.Files
}

// New validates the request framing and returns a ready parser. The content
// type must be a multipart MIME with a syntactically valid boundary; a
// negative content length is rejected here, before any stream read.
func New(
	cfg *config.Config,
	contentType string,
	contentLength int64,
	input lazystream.Source,
	handlers []uploads.Handler,
	encoding mime.Charset,
) (*Parser, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/") {
		return nil, status.ErrUnsupportedMedia
	}

	if !isASCII(contentType) {
		return nil, status.ErrMalformedMultipart
	}

	boundary, found := boundaryOf(contentType)
	if !found || !validBoundary(boundary) {
		return nil, status.ErrBadBoundary
	}

	if contentLength < 0 {
		return nil, status.ErrBadContentLength
	}

	chunkSize := chunkSizeCap
	for _, handler := range handlers {
		if preferred := handler.ChunkSize(); preferred > 0 && preferred < chunkSize {
			chunkSize = preferred
		}
	}

	if len(encoding) == 0 {
		encoding = cfg.Body.Uploads.DefaultCharset
	}

	return &Parser{
		cfg:           cfg.Body.Uploads,
		boundary:      []byte(boundary),
		contentLength: contentLength,
		chunkSize:     chunkSize,
		encoding:      encoding,
		handlers:      handlers,
		input:         input,
	}, nil
}

// Parse splits the body into form fields and uploaded files. Upload-handler
// signals never escape it; quota violations and framing errors do. All
// files collected before a failure are closed.
func (p *Parser) Parse(meta *kv.Storage) (post *kv.Storage, files *uploads.Files, err error) {
	post, files, err = p.parse(meta)
	if err != nil {
		// the in-flight spool file first, then everything collected before
		// the failure
		for _, handler := range p.handlers {
			handler.UploadInterrupted()
		}

		if p.files != nil {
			p.files.Close()
		}

		return nil, nil, err
	}

	return post, files, nil
}

func (p *Parser) parse(meta *kv.Storage) (*kv.Storage, *uploads.Files, error) {
	// a zero-length body yields empty containers without touching the
	// stream: the producer may otherwise never yield at all
	if p.contentLength == 0 {
		return kv.New(), uploads.NewFiles(), nil
	}

	for _, handler := range p.handlers {
		if post, files, handled := handler.RawInput(p.input, meta, p.contentLength, p.boundary); handled {
			return post, files, nil
		}
	}

	p.post = kv.New()
	p.files = uploads.NewFiles()

	err := p.walkParts()
	if err != nil {
		var stop uploads.StopUpload
		if !errors.As(err, &stop) {
			return nil, nil, err
		}

		for _, handler := range p.handlers {
			handler.UploadInterrupted()
		}

		if !stop.ConnectionReset {
			if drainErr := lazystream.Exhaust(p.input); drainErr != nil {
				return nil, nil, drainErr
			}
		}
	} else if drainErr := lazystream.Exhaust(p.input); drainErr != nil {
		return nil, nil, drainErr
	}

	for _, handler := range p.handlers {
		if handler.UploadComplete() {
			break
		}
	}

	return p.post, p.files, nil
}

func (p *Parser) walkParts() error {
	var (
		stream    = lazystream.New(source(p.input, p.chunkSize))
		parts     = lazystream.NewParts(stream, append([]byte("--"), p.boundary...))
		counters  = make([]int64, len(p.handlers))
		bytesRead int64
		postKeys  int
		numFiles  int
		// completion of a file part is signalled one iteration late: only
		// the next boundary proves the file ended
		pendingField string
		uploadedFile = true
	)

	for {
		sub, err := parts.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		part, err := parsePartHead(sub, p.cfg.MaxPartHeaderSize)
		if err != nil {
			return err
		}

		if len(pendingField) > 0 {
			if err := p.completeFile(pendingField, counters); err != nil {
				return err
			}

			pendingField = ""
			uploadedFile = true
		}

		if part.kind != partFile && p.cfg.MaxNumberFields >= 0 {
			// the raw prologue and epilogue account for the extra two
			postKeys++
			if postKeys > p.cfg.MaxNumberFields+2 {
				return status.ErrTooManyFields
			}
		}

		if len(part.name) == 0 {
			if err := drain(part.stream); err != nil {
				return err
			}

			continue
		}

		switch part.kind {
		case partField:
			read, err := p.handleField(part, bytesRead)
			if err != nil {
				return err
			}

			bytesRead = read
		case partFile:
			if len(part.filename) == 0 {
				// the name did not survive sanitizing
				if err := drain(part.stream); err != nil {
					return err
				}

				continue
			}

			numFiles++
			if p.cfg.MaxNumberFiles >= 0 && numFiles > p.cfg.MaxNumberFiles {
				return status.ErrTooManyFiles
			}

			claimed, err := p.handleFile(part, counters)
			if err != nil {
				return err
			}

			if claimed {
				pendingField = part.name
				uploadedFile = false
			}
		default:
			if err := drain(part.stream); err != nil {
				return err
			}
		}
	}

	if !uploadedFile {
		for _, handler := range p.handlers {
			handler.UploadInterrupted()
		}
	}

	return nil
}

func (p *Parser) handleField(part *partHead, bytesRead int64) (int64, error) {
	readSize := p.cfg.DataMaxSize - bytesRead
	if readSize < 0 {
		readSize = 0
	}

	data, err := part.stream.Read(int(readSize))
	if err != nil {
		return bytesRead, err
	}

	bytesRead += int64(len(data))

	if part.transferEncoding == "base64" {
		if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
			data = decoded
		}
	}

	// two bytes per field to stay consistent with the urlencoded
	// accounting of '&='
	bytesRead += int64(len(part.name)) + 2
	if bytesRead > p.cfg.DataMaxSize {
		return bytesRead, status.ErrDataTooBig
	}

	p.post.Add(part.name, string(data))

	return bytesRead, nil
}

// handleFile feeds the part's bytes through the handler chain. It reports
// whether the file is still owned by the chain at the end (and therefore
// must be completed at the next boundary).
func (p *Parser) handleFile(part *partHead, counters []int64) (claimed bool, err error) {
	active := p.handlers

	for i, handler := range p.handlers {
		err := handler.NewFile(uploads.FileInfo{
			FieldName:     part.name,
			FileName:      part.filename,
			ContentType:   part.contentType,
			Charset:       part.charset,
			ContentLength: part.contentLength,
		})
		if errors.Is(err, uploads.StopFutureHandlers) {
			active = p.handlers[:i+1]
			break
		}
		if err != nil {
			return false, err
		}
	}

	for i := range counters {
		counters[i] = 0
	}

	for {
		chunk, err := part.stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, err
		}

		if part.transferEncoding == "base64" {
			chunk, err = p.decodeBase64Chunk(chunk, part.stream)
			if err != nil {
				return false, err
			}
		}

		for i, handler := range active {
			length := int64(len(chunk))
			chunk, err = handler.ReceiveDataChunk(chunk, counters[i])
			counters[i] += length

			if err != nil {
				if errors.Is(err, uploads.SkipFile) {
					// give up on this one file and move on to the next part
					for _, h := range p.handlers {
						h.UploadInterrupted()
					}

					return false, drain(part.stream)
				}

				return false, err
			}

			if chunk == nil {
				break
			}
		}
	}

	return true, nil
}

func (p *Parser) completeFile(field string, counters []int64) error {
	for i, handler := range p.handlers {
		file, err := handler.FileComplete(counters[i])
		if err != nil {
			return err
		}

		if file != nil {
			p.files.Add(field, file)
			break
		}
	}

	return nil
}

// decodeBase64Chunk decodes a chunk by multiples of 4, pulling up to three
// more bytes from the stream to complete a trailing quantum.
func (p *Parser) decodeBase64Chunk(chunk []byte, stream *lazystream.Stream) ([]byte, error) {
	stripped := stripWhitespace(chunk)

	for len(stripped)%4 != 0 {
		over, err := stream.Read(4 - len(stripped)%4)
		if err != nil {
			return nil, err
		}
		if len(over) == 0 {
			break
		}

		stripped = append(stripped, stripWhitespace(over)...)
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(stripped)))
	n, err := base64.StdEncoding.Decode(decoded, stripped)
	if err != nil {
		// a broken quantum in the middle of a stream is unfixable
		return nil, status.ErrMalformedMultipart
	}

	return decoded[:n], nil
}

func drain(stream *lazystream.Stream) error {
	return lazystream.Exhaust(stream)
}

func stripWhitespace(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			out = append(out, c)
		}
	}

	return out
}

func isASCII(str string) bool {
	for i := 0; i < len(str); i++ {
		if str[i] > 0x7F {
			return false
		}
	}

	return true
}

func boundaryOf(contentType string) (boundary string, found bool) {
	for key, value := range strutil.WalkParams(strutil.CutParams(contentType)) {
		if key == "boundary" {
			return value, true
		}
	}

	return "", false
}

// validBoundary enforces RFC 2046, 5.1.1: up to 70 printable ASCII
// characters not ending with a space. The original grammar is slightly
// looser on length, which is preserved (200 + the final character).
func validBoundary(boundary string) bool {
	if len(boundary) == 0 || len(boundary) > 201 {
		return false
	}

	for i := 0; i < len(boundary); i++ {
		if boundary[i] < ' ' || boundary[i] > '~' {
			return false
		}
	}

	last := boundary[len(boundary)-1]

	return last > ' ' && last <= '~'
}

func source(input lazystream.Source, chunkSize int) lazystream.Source {
	if reader, ok := input.(io.Reader); ok {
		return lazystream.NewChunkSource(reader, chunkSize)
	}

	return input
}

func parseContentLength(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || parsed < 0 {
		return -1
	}

	return parsed
}
