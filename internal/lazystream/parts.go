package lazystream

// Parts walks the sub-streams of a boundary-delimited body. Each call to
// Next hands out a fresh Stream serving exactly one part; the caller must
// consume or drain it before asking for the next one, as all sub-streams
// share the same underlying cursor.
type Parts struct {
	stream    *Stream
	separator []byte
}

// NewParts expects the full delimiter, i.e. the boundary already prefixed
// with the leading dashes.
func NewParts(stream *Stream, separator []byte) *Parts {
	return &Parts{
		stream:    stream,
		separator: separator,
	}
}

// Next returns the next part's stream, or io.EOF once the body is over.
func (p *Parts) Next() (*Stream, error) {
	iter, err := NewBoundaryIter(p.stream, p.separator)
	if err != nil {
		return nil, err
	}

	return New(iter), nil
}
