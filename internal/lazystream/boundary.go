package lazystream

import (
	"bytes"
	"io"
)

// BoundaryIter is a Source sensitive to a multipart boundary. It yields
// bytes until the boundary is found, strips the CRLF preceding it, throws
// the boundary itself away and pushes everything past it back onto the
// underlying stream. Once the boundary has been located, further Retrieve
// calls return io.EOF.
type BoundaryIter struct {
	stream   *Stream
	boundary []byte
	// rollback covers a partially received delimiter: CRLF<boundary>[--CRLF]
	rollback int
	done     bool
}

// NewBoundaryIter probes the stream and returns io.EOF if it is already
// exhausted, so a caller can tell "no more parts" apart from an empty part.
func NewBoundaryIter(stream *Stream, boundary []byte) (*BoundaryIter, error) {
	probe, err := stream.Read(1)
	if err != nil {
		return nil, err
	}
	if len(probe) == 0 {
		return nil, io.EOF
	}
	if err := stream.Unget(probe); err != nil {
		return nil, err
	}

	return &BoundaryIter{
		stream:   stream,
		boundary: boundary,
		rollback: len(boundary) + 6,
	}, nil
}

func (b *BoundaryIter) Retrieve() ([]byte, error) {
	if b.done {
		return nil, io.EOF
	}

	var (
		joined    []byte
		exhausted = true
	)

	for {
		chunk, err := b.stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		joined = append(joined, chunk...)
		if len(joined) > b.rollback {
			exhausted = false
			break
		}
	}

	if exhausted {
		b.done = true
	}

	if len(joined) == 0 {
		return nil, io.EOF
	}

	if end, next, found := b.findBoundary(joined); found {
		if err := b.stream.Unget(joined[next:]); err != nil {
			return nil, err
		}

		b.done = true

		return joined[:end], nil
	}

	if len(joined) <= b.rollback {
		// a truncated final boundary: emit what's left instead of spinning
		// on it forever
		b.done = true
		return joined, nil
	}

	if err := b.stream.Unget(joined[len(joined)-b.rollback:]); err != nil {
		return nil, err
	}

	return joined[:len(joined)-b.rollback], nil
}

// findBoundary locates the delimiter in data. end is where the part's
// payload stops (the CRLF glued to the boundary excluded), next is the first
// byte past the delimiter.
func (b *BoundaryIter) findBoundary(data []byte) (end, next int, found bool) {
	index := bytes.Index(data, b.boundary)
	if index < 0 {
		return 0, 0, false
	}

	end = index
	next = index + len(b.boundary)

	if end > 0 && data[end-1] == '\n' {
		end--
	}
	if end > 0 && data[end-1] == '\r' {
		end--
	}

	return end, next, true
}
