// Package parse converts extracted DILA files into normalized Document
// records. Each fond family has its own XML layout, so parsing dispatches
// to a closed set of schema variants that all converge on the same shape.
package parse

import (
	"sort"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
)

// Document is the normalized record every parser variant produces and the
// only shape the index builder understands.
type Document struct {
	// UID is the DILA identifier, unique within a fond.
	UID string
	// Title as published. May be empty for some fonds.
	Title string
	// Content is the full concatenated text body.
	Content string
	// Date is the raw date string, usually YYYY-MM-DD. Only the year is
	// guaranteed meaningful.
	Date string
	// Year extracted from Date. Mandatory: documents without a parseable
	// year are skipped upstream.
	Year int
	// Fond the document came from.
	Fond fonds.Fond
	// Path of the extracted source file on local disk.
	Path string
	// Extra holds fond-specific attributes (jurisdiction, president, ...).
	Extra map[string]string
}

// ID returns the globally unique identifier "FOND:UID". Document ids sort
// lexicographically, which is the tie-break order everywhere downstream.
func (d *Document) ID() string {
	return d.Fond.String() + ":" + d.UID
}

// ExtraKeys returns the extra field names in sorted order.
func (d *Document) ExtraKeys() []string {
	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
