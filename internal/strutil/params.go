package strutil

import (
	"iter"
	"strings"
)

// WalkParams iterates over `key=value` pairs of a header parameter tail
// ("name=a; filename=\"b c.txt\""). Values may be double-quoted, in which
// case they keep embedded spaces and semicolons; quotes themselves are
// stripped. Keys are lowercased. A malformed pair yields ("", "") and stops
// the walk.
func WalkParams(params string) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for len(params) > 0 {
			eq := strings.IndexByte(params, '=')
			if eq < 1 {
				yield("", "")
				return
			}

			key := strings.ToLower(RStripWS(params[:eq]))
			params = params[eq+1:]

			var value string
			if len(params) > 0 && params[0] == '"' {
				closing := strings.IndexByte(params[1:], '"')
				if closing == -1 {
					yield("", "")
					return
				}

				value = params[1 : 1+closing]
				params = LStripWS(strings.TrimPrefix(LStripWS(params[2+closing:]), ";"))
			} else if sep := strings.IndexByte(params, ';'); sep != -1 {
				value, params = RStripWS(params[:sep]), LStripWS(params[sep+1:])
			} else {
				value, params = RStripWS(params), ""
			}

			if !yield(key, value) {
				return
			}
		}
	}
}
