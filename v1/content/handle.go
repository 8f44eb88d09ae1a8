// Package content provides the immutable content handle stored by the registry
// and the digest functions that give content its identity.
//
// Two digests exist for every piece of content:
//
//   - the exact digest, a SHA-256 of the raw bytes (plus the reference list when
//     the content declares references), and
//   - the canonical digest, computed the same way over the canonical form produced
//     by the content type's canonicalizer.
//
// Exactly equal content shares an exact digest; semantically equal content
// (field order, whitespace, comments) shares a canonical digest.
package content

import (
	"bytes"
	"unicode/utf8"
)

// Handle is an immutable piece of schema content.
// The zero value is empty content.
type Handle struct {
	data []byte
}

// New returns a Handle holding a private copy of data.
func New(data []byte) Handle {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Handle{data: cp}
}

// FromString returns a Handle holding s.
func FromString(s string) Handle {
	return Handle{data: []byte(s)}
}

// Bytes returns a copy of the content bytes.
func (h Handle) Bytes() []byte {
	cp := make([]byte, len(h.data))
	copy(cp, h.data)
	return cp
}

// String returns the content as text.
func (h Handle) String() string {
	return string(h.data)
}

// Size returns the content length in bytes.
func (h Handle) Size() int64 {
	return int64(len(h.data))
}

// IsEmpty reports whether the content has no bytes.
func (h Handle) IsEmpty() bool {
	return len(h.data) == 0
}

// IsText reports whether the content is valid UTF-8.
func (h Handle) IsText() bool {
	return utf8.Valid(h.data)
}

// Equal reports whether both handles hold identical bytes.
func (h Handle) Equal(other Handle) bool {
	return bytes.Equal(h.data, other.data)
}

// raw exposes the backing slice to digest helpers without copying.
func (h Handle) raw() []byte {
	return h.data
}
