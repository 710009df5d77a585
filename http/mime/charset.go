package mime

import "strings"

type Charset = string

const (
	UTF8   Charset = "utf-8"
	UTF16  Charset = "utf-16"
	ASCII  Charset = "us-ascii"
	Latin1 Charset = "iso-8859-1"
	CP1251 Charset = "windows-1251"
	CP1252 Charset = "windows-1252"
)

// knownCharsets maps charset labels (and their common aliases) to the
// canonical name. Only charsets listed here are adopted from a request's
// Content-Type; unknown labels are silently ignored and the default
// encoding remains in effect.
var knownCharsets = map[string]Charset{
	"utf-8":        UTF8,
	"utf8":         UTF8,
	"utf-16":       UTF16,
	"utf16":        UTF16,
	"us-ascii":     ASCII,
	"ascii":        ASCII,
	"iso-8859-1":   Latin1,
	"latin-1":      Latin1,
	"latin1":       Latin1,
	"windows-1251": CP1251,
	"cp1251":       CP1251,
	"windows-1252": CP1252,
	"cp1252":       CP1252,
}

// LookupCharset resolves a charset label case-insensitively. The second
// return value reports whether the label names a known codec.
func LookupCharset(label string) (Charset, bool) {
	canonical, ok := knownCharsets[strings.ToLower(strings.TrimSpace(label))]
	return canonical, ok
}
