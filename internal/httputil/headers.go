// Package httputil provides HTTP-related utility types and functions.
package httputil

import (
	"iter"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/http/httpguts"
)

type field struct {
	name  string
	value string
}

// Header is an ordered multimap of header fields with case-insensitive keys.
// The zero value is an empty header ready to use.
type Header struct {
	fields []field
}

// NewHeader builds a header from name/value pairs. A trailing name without
// a value is ignored.
func NewHeader(pairs ...string) Header {
	var h Header
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// FromHTTP converts a net/http header. Keys are emitted in sorted order since
// http.Header carries no ordering.
func FromHTTP(src http.Header) Header {
	var h Header
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range src[k] {
			h.Add(k, v)
		}
	}
	return h
}

// Get returns the first value for name, or "" if absent.
func (h Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value
		}
	}
	return ""
}

// Lookup returns the first value for name and whether it exists.
func (h Header) Lookup(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return f.value, true
		}
	}
	return "", false
}

// Values returns all values for name in insertion order.
func (h Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Set replaces every value of name with value. The first existing field keeps
// its position, later duplicates are removed.
func (h *Header) Set(name, value string) {
	replaced := false
	kept := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			if replaced {
				continue
			}
			f.name = name
			f.value = value
			replaced = true
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if !replaced {
		h.fields = append(h.fields, field{name: name, value: value})
	}
}

// Add appends a value for name, keeping any existing values.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, field{name: name, value: value})
}

// Del removes every value of name and reports whether anything was removed.
func (h *Header) Del(name string) bool {
	before := len(h.fields)
	h.fields = slices.DeleteFunc(h.fields, func(f field) bool {
		return strings.EqualFold(f.name, name)
	})
	return len(h.fields) != before
}

// Len returns the number of fields, counting each value separately.
func (h Header) Len() int {
	return len(h.fields)
}

// Names returns the distinct header names in first-seen order.
func (h Header) Names() []string {
	var names []string
	for _, f := range h.fields {
		if !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, f.name) }) {
			names = append(names, f.name)
		}
	}
	return names
}

// All iterates over every field in insertion order.
func (h Header) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, f := range h.fields {
			if !yield(f.name, f.value) {
				return
			}
		}
	}
}

// Clone returns a deep copy so the original can be shared safely.
func (h Header) Clone() Header {
	return Header{fields: slices.Clone(h.fields)}
}

// HTTP converts the header to a net/http header, preserving value order.
func (h Header) HTTP() http.Header {
	out := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		out.Add(f.name, f.value)
	}
	return out
}

// ValidName reports whether name is a legal header field name.
func ValidName(name string) bool {
	return httpguts.ValidHeaderFieldName(name)
}

// ValidValue reports whether value is a legal header field value.
func ValidValue(value string) bool {
	return httpguts.ValidHeaderFieldValue(value)
}
