/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package header implements the ordered, case-insensitive header multimap
// a parsed or to-be-serialized message head needs: the narrow data
// structure the wire codec parses into and serializes from, generalizing
// a canonicalized map[string][]string into an insertion-order-preserving
// slice, since wire order must round-trip losslessly.
package header

import (
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Field is one name/value pair in wire order.
type Field struct {
	Name  string // as received or as set by the caller, not canonicalized
	Value string
}

// Header is an ordered multimap of header fields. Name comparisons are
// case-insensitive; the original case of each Name is preserved for
// serialization, matching the design's "case-insensitive names, insertion
// order preserved for serialization."
type Header struct {
	fields []Field
}

// New returns an empty Header with capacity hinted by n.
func New(n int) *Header {
	return &Header{fields: make([]Field, 0, n)}
}

func eqFold(a, b string) bool { return strings.EqualFold(a, b) }

// Add appends a field, preserving any existing field of the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces all fields named name with a single field, inserted at the
// position of the first existing match, or appended if absent.
func (h *Header) Set(name, value string) {
	for i := range h.fields {
		if eqFold(h.fields[i].Name, name) {
			h.fields[i].Value = value
			h.removeAllAfter(name, i)
			return
		}
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

func (h *Header) removeAllAfter(name string, from int) {
	out := h.fields[:from+1]
	for _, f := range h.fields[from+1:] {
		if !eqFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, or "".
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if eqFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name, in insertion order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if eqFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether any field matches name.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if eqFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !eqFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Len reports the number of fields, used against max_headers (the error taxonomy).
func (h *Header) Len() int { return len(h.fields) }

// Fields exposes the raw ordered slice for the encoder to walk; callers
// must not mutate the returned slice.
func (h *Header) Fields() []Field { return h.fields }

// HasToken reports whether name's comma-separated value list contains
// token, case-insensitively, per RFC 7230 list syntax. Used for
// Connection/Transfer-Encoding/Upgrade token checks.
func (h *Header) HasToken(name, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(name), token)
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	c := &Header{fields: make([]Field, len(h.fields))}
	copy(c.fields, h.fields)
	return c
}

// SortedNames returns the distinct field names (first spelling seen),
// sorted case-insensitively in stable order, useful for deterministic test assertions (and nothing on the hot path:
// the wire format never requires sorted headers).
func (h *Header) SortedNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, f := range h.fields {
		key := strings.ToLower(f.Name)
		if !seen[key] {
			seen[key] = true
			names = append(names, f.Name)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

// ValidName reports whether name is a valid RFC 7230 header field-name
// token. Delegates to golang.org/x/net/http/httpguts rather than a
// hand-rolled token table.
func ValidName(name string) bool { return httpguts.ValidHeaderFieldName(name) }

// ValidValue reports whether value is free of forbidden control
// characters for a header field value.
func ValidValue(value string) bool { return httpguts.ValidHeaderFieldValue(value) }
