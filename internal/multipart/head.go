package multipart

import (
	"bytes"
	"html"
	"strings"
	"unicode"

	"github.com/bifrost-web/bifrost/http/mime"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/internal/strutil"
)

type partKind uint8

const (
	// partRaw is a part without a content-disposition header: the prologue
	// before the first boundary, the epilogue, or junk to be discarded.
	partRaw partKind = iota
	partField
	partFile
)

const maxFileNameLength = 255

// partHead is the parsed header block of one part, together with the
// stream serving the part's payload.
type partHead struct {
	kind             partKind
	name             string
	filename         string
	contentType      mime.MIME
	charset          mime.Charset
	transferEncoding string
	contentLength    int64
	stream           *lazystream.Stream
}

// parsePartHead reads the bounded header block of a part and classifies it.
// The probe starts at 1 KiB and doubles until the blank line is found or
// maxHeaderSize is exceeded. A part without recognizable headers comes back
// as partRaw with everything read pushed back onto its stream.
func parsePartHead(stream *lazystream.Stream, maxHeaderSize int) (*partHead, error) {
	probeSize := 1024

	var (
		chunk     []byte
		headerEnd int
	)

	for {
		if probeSize > maxHeaderSize {
			return nil, status.ErrPartHeadersTooBig
		}

		var err error
		chunk, err = stream.Read(probeSize)
		if err != nil {
			return nil, err
		}

		headerEnd = bytes.Index(chunk, []byte("\r\n\r\n"))
		if headerEnd != -1 {
			break
		}

		if err := stream.Unget(chunk); err != nil {
			return nil, err
		}

		if len(chunk) < probeSize {
			// the part ends before any header block does
			return &partHead{kind: partRaw, contentLength: -1, stream: stream}, nil
		}

		probeSize *= 2
	}

	head := &partHead{kind: partRaw, contentLength: -1, stream: stream}

	if err := stream.Unget(chunk[headerEnd+4:]); err != nil {
		return nil, err
	}

	for _, line := range bytes.Split(chunk[:headerEnd], []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}

		parseHeaderLine(head, string(line))
	}

	if head.kind == partRaw {
		// no content-disposition found: hand the whole chunk back so the
		// caller can discard the part verbatim
		if err := stream.Unget(chunk[:headerEnd+4]); err != nil {
			return nil, err
		}
	}

	return head, nil
}

func parseHeaderLine(head *partHead, line string) {
	colon := strings.IndexByte(line, ':')
	if colon == -1 {
		return
	}

	name := strings.ToLower(strutil.RStripWS(line[:colon]))
	value := strutil.LStripWS(line[colon+1:])

	switch name {
	case "content-disposition":
		head.kind = partField

		for key, param := range strutil.WalkParams(strutil.CutParams(value)) {
			switch key {
			case "name":
				head.name = strings.TrimSpace(param)
			case "filename":
				// the raw parameter decides the part's kind; sanitizing
				// may still reject the name afterwards
				if len(param) > 0 {
					head.kind = partFile
				}

				head.filename = sanitizeFileName(param)
			}
		}
	case "content-type":
		main, params := strutil.CutHeader(value)
		head.contentType = strings.TrimSpace(main)

		for key, param := range strutil.WalkParams(params) {
			if key == "charset" {
				head.charset = param
			}
		}
	case "content-transfer-encoding":
		head.transferEncoding = strings.TrimSpace(value)
	case "content-length":
		head.contentLength = parseContentLength(value)
	}
}

// sanitizeFileName strips every path component the client may have sent,
// removes non-printable characters and refuses names that could address
// the current or parent directory. The result is still untrusted input.
func sanitizeFileName(name string) string {
	name = html.UnescapeString(name)

	if i := strings.LastIndexByte(name, '/'); i != -1 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '\\'); i != -1 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return -1
		}

		return r
	}, name)

	if len(name) > maxFileNameLength {
		name = name[:maxFileNameLength]
	}

	switch name {
	case "", ".", "..":
		return ""
	}

	return name
}
