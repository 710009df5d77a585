package mime

import (
	"github.com/bifrost-web/bifrost/internal/strutil"
)

type MIME = string

const (
	OctetStream    MIME = "application/octet-stream"
	Plain          MIME = "text/plain"
	HTML           MIME = "text/html"
	XML            MIME = "text/xml"
	JSON           MIME = "application/json"
	FormUrlencoded MIME = "application/x-www-form-urlencoded"
	Multipart      MIME = "multipart/form-data"
	CSS            MIME = "text/css"
	GIF            MIME = "image/gif"
	JPEG           MIME = "image/jpeg"
	PNG            MIME = "image/png"
	SVG            MIME = "image/svg+xml"
	JS             MIME = "text/javascript"
	PDF            MIME = "application/pdf"
	ZIP            MIME = "application/zip"
	GZIP           MIME = "application/gzip"
)

// Complies returns whether two MIMEs are compatible. Empty MIME is
// considered compatible with any other MIME.
func Complies(mime MIME, with string) bool {
	// get rid of parameters if any
	with, _ = strutil.CutHeader(with)
	return len(with) == 0 || with == mime
}
