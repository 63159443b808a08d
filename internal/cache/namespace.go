package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Namespace is a hierarchical cache key: an ordered sequence of string
// segments identifying one logical query and its parameters, e.g.
// ["orders","list",`{"limit":20,"status":"pending"}`]. Invalidating a
// namespace also invalidates every namespace it is a prefix of.
type Namespace []string

// NS builds a namespace from literal segments.
func NS(segments ...string) Namespace {
	return Namespace(segments)
}

// With appends a variable segment serialized from params. encoding/json
// sorts map keys and struct fields have a fixed order, so logically
// identical parameter sets always produce the same segment and collide to
// one cache entry.
func (n Namespace) With(params any) Namespace {
	out := make(Namespace, len(n), len(n)+1)
	copy(out, n)

	b, err := json.Marshal(params)
	if err != nil {
		// Unserializable params still need a stable segment.
		return append(out, fmt.Sprintf("%+v", params))
	}
	return append(out, string(b))
}

// Child appends literal segments, returning a new namespace.
func (n Namespace) Child(segments ...string) Namespace {
	out := make(Namespace, len(n), len(n)+len(segments))
	copy(out, n)
	return append(out, segments...)
}

// Key returns the canonical map key for this namespace. The separator is a
// control character that cannot appear in meaningful segment text, so two
// distinct segment sequences never collide.
func (n Namespace) Key() string {
	return strings.Join(n, "\x1f")
}

// HasPrefix reports whether n starts with the segments of prefix.
func (n Namespace) HasPrefix(prefix Namespace) bool {
	if len(prefix) > len(n) {
		return false
	}
	for i, seg := range prefix {
		if n[i] != seg {
			return false
		}
	}
	return true
}

// String renders the namespace for logs.
func (n Namespace) String() string {
	return strings.Join(n, "/")
}
