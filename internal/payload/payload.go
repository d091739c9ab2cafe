// Package payload models one logical clipboard or drag item offered in several
// byte encodings. Each encoding is keyed by a Format (a MIME type, optionally
// with parameters such as a charset).
//
// A Set keeps the producer's declaration order. Consumers that can handle more
// than one offered format should take the earliest acceptable entry, which is
// what Pick does. The set itself never ranks formats by meaning: producers put
// the richest representation first.
package payload

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	// ErrDuplicateFormat is returned by Build when two entries share a Format.
	ErrDuplicateFormat = errors.New("duplicate format")
	// ErrUnsupportedFormat is returned by Resolve for a Format not in the set.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrInvalidFormat is returned by ParseFormat for malformed identifiers.
	ErrInvalidFormat = errors.New("invalid format identifier")
)

// Well-known formats used by the bundled scenarios.
const (
	FormatHTML      Format = "text/html"
	FormatURIList   Format = "text/uri-list"
	FormatTextUTF8  Format = "text/plain;charset=utf-8"
	FormatTextPlain Format = "text/plain"
)

// Format names one encoding of a payload.
type Format string

// ParseFormat validates s as a media type (parameters allowed) and returns it
// as a Format. Surrounding whitespace is trimmed; the identifier is otherwise
// kept byte-for-byte, so "text/plain;charset=utf-8" and
// "text/plain; charset=utf-8" are distinct formats.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFormat)
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	if typ, sub, ok := strings.Cut(mt, "/"); !ok || typ == "" || sub == "" {
		return "", fmt.Errorf("%w: %q is not type/subtype", ErrInvalidFormat, s)
	}
	return Format(s), nil
}

// MediaType returns the lower-cased type/subtype without parameters.
func (f Format) MediaType() string {
	mt, _, err := mime.ParseMediaType(string(f))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(string(f), ";", 2)[0]))
	}
	return mt
}

// IsText reports whether the format is a text/* media type.
func (f Format) IsText() bool { return strings.HasPrefix(f.MediaType(), "text/") }

func (f Format) String() string { return string(f) }

// Producer materialises the bytes of one entry on demand.
type Producer func() ([]byte, error)

// Entry is one (Format, bytes) pair. Exactly one of data or produce is used.
type Entry struct {
	Format  Format
	data    []byte
	produce Producer
}

// Bytes returns an entry with pre-materialised content.
func Bytes(f Format, b []byte) Entry {
	return Entry{Format: f, data: append([]byte(nil), b...)}
}

// Text returns an entry holding s encoded as UTF-8.
func Text(f Format, s string) Entry {
	return Entry{Format: f, data: []byte(s)}
}

// Lazy returns an entry whose content is produced on request.
func Lazy(f Format, p Producer) Entry {
	return Entry{Format: f, produce: p}
}

// Set is an ordered, duplicate-free collection of entries. A Set is immutable
// once built and safe for concurrent use.
type Set struct {
	entries []Entry
	index   map[Format]int
}

// Build returns a Set holding entries in the given order.
func Build(entries ...Entry) (*Set, error) {
	s := &Set{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[Format]int, len(entries)),
	}
	for _, e := range entries {
		if e.Format == "" {
			return nil, fmt.Errorf("%w: empty", ErrInvalidFormat)
		}
		if _, dup := s.index[e.Format]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFormat, e.Format)
		}
		s.index[e.Format] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Len returns the number of entries.
func (s *Set) Len() int { return len(s.entries) }

// Formats returns the offered formats in producer order.
func (s *Set) Formats() []Format {
	out := make([]Format, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Format
	}
	return out
}

// Has reports whether f is offered.
func (s *Set) Has(f Format) bool {
	_, ok := s.index[f]
	return ok
}

// Resolve returns the bytes for f. Lazy producers run once per call and their
// result is not cached; the returned slice belongs to the caller.
func (s *Set) Resolve(f Format) ([]byte, error) {
	i, ok := s.index[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	e := s.entries[i]
	if e.produce == nil {
		return append([]byte(nil), e.data...), nil
	}
	b, err := e.produce()
	if err != nil {
		return nil, fmt.Errorf("producing %s: %w", f, err)
	}
	return b, nil
}

// Pick returns the earliest offered format for which accept returns true.
func (s *Set) Pick(accept func(Format) bool) (Format, bool) {
	for _, e := range s.entries {
		if accept(e.Format) {
			return e.Format, true
		}
	}
	return "", false
}
