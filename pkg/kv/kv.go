// Package kv provides a key-value store interface with hierarchical path-based
// keys. Keys are represented as string slices (e.g., ["pt", "4211986592"]) and
// encoded with ':' between segments.
//
// The package includes a BadgerDB-backed implementation for on-disk indexes
// and an in-memory implementation for testing. Key segments must not contain
// the separator; writers that build segments from external input (index terms,
// record ids) are expected to sanitize them first.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")
)

// Separator joins key segments in the encoded representation.
const Separator byte = ':'

// Key is a hierarchical path represented as a slice of string segments.
// For example, Key{"tm", "coffee", "42"} encodes to "tm:coffee:42".
//
// Segments must not contain the separator character; encode panics if one
// does, since a stray separator would silently corrupt the keyspace.
type Key []string

// String returns the key in its encoded form.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair. Overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given prefix.
	// The iteration order is lexicographic by encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple key-value pairs.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}

// encode converts a Key to its byte representation.
func encode(k Key) []byte {
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++ // separator
		}
		n += len(seg)
	}
	buf := make([]byte, n)
	pos := 0
	for i, seg := range k {
		if strings.IndexByte(seg, Separator) >= 0 {
			panic(fmt.Sprintf("kv: key segment %q contains separator", seg))
		}
		if i > 0 {
			buf[pos] = Separator
			pos++
		}
		pos += copy(buf[pos:], seg)
	}
	return buf
}

// decode converts a byte representation back to a Key.
func decode(b []byte) Key {
	parts := strings.Split(string(b), string(Separator))
	return Key(parts)
}
