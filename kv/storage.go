package kv

import (
	"iter"
	"slices"
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

type Pair struct {
	Key, Value string
}

// Storage is an associative structure for storing (string, string) pairs. It
// acts as a multimap but uses linear search instead of hashing, which proves
// to be more efficient on the relatively low entry counts seen in query
// strings, form fields and header metadata. Lookup is case-insensitive,
// insertion order is preserved.
type Storage struct {
	pairs []Pair
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// Add adds a new pair of key and value.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return s
}

// Value returns the first value corresponding to the key, otherwise an empty
// string.
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or the
// provided fallback.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool indicating whether the value was found. If
// it wasn't, the value is an empty string.
func (s *Storage) Get(key string) (value string, found bool) {
	for _, pair := range s.pairs {
		if strcomp.EqualFold(key, pair.Key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values iterates over all values stored under the key, in insertion order.
func (s *Storage) Values(key string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, pair := range s.pairs {
			if strcomp.EqualFold(pair.Key, key) && !yield(pair.Value) {
				return
			}
		}
	}
}

// Joined returns all values of the key folded into a single comma-separated
// string, the way repeated plain headers collapse per RFC 9110.
func (s *Storage) Joined(key string) string {
	var b strings.Builder

	for value := range s.Values(key) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}

		b.WriteString(value)
	}

	return b.String()
}

// Keys iterates over all unique keys.
func (s *Storage) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i, pair := range s.pairs {
			if seenBefore(s.pairs[:i], pair.Key) {
				continue
			}

			if !yield(pair.Key) {
				return
			}
		}
	}
}

// Iter iterates over all stored pairs, in insertion order.
func (s *Storage) Iter() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, pair := range s.pairs {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Has indicates whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	_, found := s.Get(key)
	return found
}

// Delete removes all entries of the key.
func (s *Storage) Delete(key string) *Storage {
	s.pairs = slices.DeleteFunc(s.pairs, func(p Pair) bool {
		return strcomp.EqualFold(p.Key, key)
	})
	return s
}

// Len returns the number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs)
}

func (s *Storage) Empty() bool {
	return s.Len() == 0
}

// Clone creates a deep copy which may be stored somewhere safely. Comes at
// the cost of an allocation.
func (s *Storage) Clone() *Storage {
	return &Storage{pairs: slices.Clone(s.pairs)}
}

// Expose exposes the underlying pairs slice.
func (s *Storage) Expose() []Pair {
	return s.pairs
}

// Clear all the entries, keeping the allocated space.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

func seenBefore(pairs []Pair, key string) bool {
	for _, pair := range pairs {
		if strcomp.EqualFold(pair.Key, key) {
			return true
		}
	}

	return false
}
