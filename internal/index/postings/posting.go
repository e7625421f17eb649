// Package postings defines the inverted-index posting types and the
// in-memory term buffer the builder fills between segment flushes.
package postings

// Posting records one document's occurrences of a term.
type Posting struct {
	DocID     string   `json:"d"`
	Frequency int      `json:"f"`
	Positions []uint32 `json:"p"`
}

// List is a set of postings sorted by ascending DocID.
type List []Posting

// TermEntry pairs a term with its postings, the unit flushed into segments.
type TermEntry struct {
	Term     string
	Postings List
}
