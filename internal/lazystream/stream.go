package lazystream

import (
	"io"

	"github.com/bifrost-web/bifrost/http/status"
)

// Source produces successive chunks of bytes. A source signals exhaustion by
// returning io.EOF; any other error is a real failure and tears the parse
// down. The returned chunk stays valid only until the next Retrieve call.
type Source interface {
	Retrieve() ([]byte, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() ([]byte, error)

func (f SourceFunc) Retrieve() ([]byte, error) {
	return f()
}

// how many recent unget lengths are remembered, and how many repeats of the
// same length within that window indicate a scanner that stopped advancing.
const (
	ungetWindow   = 50
	ungetMaxEqual = 40
)

// Stream is a pull cursor over a Source that supports putting consumed bytes
// back. The logical position tracks bytes handed out minus bytes ungotten
// and may go negative after heavy pushback at the stream's start.
type Stream struct {
	src      Source
	leftover []byte
	pos      int
	history  []int
}

func New(src Source) *Stream {
	return &Stream{src: src}
}

// Tell reports the logical position.
func (s *Stream) Tell() int {
	return s.pos
}

// Next returns whatever chunk is most convenient: the pushback buffer if
// non-empty, otherwise a fresh chunk from the source. io.EOF signals
// exhaustion.
func (s *Stream) Next() ([]byte, error) {
	if len(s.leftover) > 0 {
		out := s.leftover
		s.leftover = nil
		s.pos += len(out)

		return out, nil
	}

	for {
		chunk, err := s.src.Retrieve()
		if err != nil {
			return nil, err
		}

		// an empty chunk is not exhaustion, only io.EOF is; sources backed
		// by message streams may yield empty non-final pieces
		if len(chunk) == 0 {
			continue
		}

		// a fresh chunk means the cursor advanced, so the stuck-guard
		// history starts over
		s.history = s.history[:0]
		s.pos += len(chunk)

		return chunk, nil
	}
}

// Retrieve makes Stream itself a Source, so layered streams and drains
// treat it uniformly.
func (s *Stream) Retrieve() ([]byte, error) {
	return s.Next()
}

// Read returns exactly size bytes, or fewer only if the stream ends first.
// A negative size consumes the stream to exhaustion. Real source failures
// are returned as-is; plain exhaustion is not an error.
func (s *Stream) Read(size int) ([]byte, error) {
	var out []byte

	for size != 0 {
		chunk, err := s.Next()
		switch err {
		case nil:
		case io.EOF:
			return out, nil
		default:
			return out, err
		}

		if size > 0 && len(chunk) > size {
			if err := s.Unget(chunk[size:]); err != nil {
				return out, err
			}

			chunk = chunk[:size]
		}

		out = append(out, chunk...)
		if size > 0 {
			size -= len(chunk)
		}
	}

	return out, nil
}

// Unget places bytes back onto the front of the stream; the next reads see
// them first, and the logical position rewinds. The guard over recent unget
// lengths fails the stream when a scanner keeps pushing back the same bytes
// without ever advancing, which a maliciously framed body can otherwise
// provoke into an infinite loop.
func (s *Stream) Unget(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if err := s.recordUnget(len(b)); err != nil {
		return err
	}

	s.pos -= len(b)
	merged := make([]byte, 0, len(b)+len(s.leftover))
	merged = append(merged, b...)
	s.leftover = append(merged, s.leftover...)

	return nil
}

// Detach hands out whatever was pushed back but never re-read and leaves
// the stream empty. Lets a consumer walk away from the stream without
// losing the tail it already pulled from the source.
func (s *Stream) Detach() []byte {
	leftover := s.leftover
	s.leftover = nil

	return leftover
}

// Close invalidates the stream: the source is replaced with an exhausted
// one, yet bytes already pushed back remain readable.
func (s *Stream) Close() {
	s.src = SourceFunc(func() ([]byte, error) {
		return nil, io.EOF
	})
}

func (s *Stream) recordUnget(n int) error {
	if len(s.history) >= ungetWindow {
		s.history = s.history[:ungetWindow-1]
	}

	s.history = append([]int{n}, s.history...)

	equal := 0
	for _, recorded := range s.history {
		if recorded == n {
			equal++
		}
	}

	if equal > ungetMaxEqual {
		return status.ErrParserStuck
	}

	return nil
}

// Exhaust drains a source, discarding everything it produces.
func Exhaust(src Source) error {
	for {
		if _, err := src.Retrieve(); err != nil {
			if err == io.EOF {
				return nil
			}

			return err
		}
	}
}
