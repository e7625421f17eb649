package postings

import (
	"sort"

	"github.com/dilarxiv/dilarxiv/internal/analysis"
)

// Buffer is the in-memory term map bounded by the builder's byte budget.
// Size is tracked explicitly so the flush decision is made against bytes
// rather than a document count. The builder is the only writer, so the
// Buffer needs no locking.
type Buffer struct {
	index    map[string]map[string]*Posting
	docCount int
	size     int64
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		index: make(map[string]map[string]*Posting),
	}
}

// AddDocument records the token stream of one document.
func (b *Buffer) AddDocument(docID string, tokens []analysis.Token) {
	termData := make(map[string]*Posting)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Positions: make([]uint32, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}
	for term, posting := range termData {
		if _, exists := b.index[term]; !exists {
			b.index[term] = make(map[string]*Posting)
		}
		b.index[term][docID] = posting
		b.size += int64(len(term) + len(docID) + len(posting.Positions)*8 + 64)
	}
	b.docCount++
}

// Snapshot returns the buffer contents as term entries sorted by term, each
// postings list sorted by DocID.
func (b *Buffer) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(b.index))
	for term, docs := range b.index {
		plist := make(List, 0, len(docs))
		for _, posting := range docs {
			plist = append(plist, *posting)
		}
		sort.Slice(plist, func(i, j int) bool {
			return plist[i].DocID < plist[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: plist,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Size returns the tracked byte estimate of the buffer.
func (b *Buffer) Size() int64 { return b.size }

// DocCount returns the number of documents added since the last Reset.
func (b *Buffer) DocCount() int { return b.docCount }

// Reset empties the buffer after a flush.
func (b *Buffer) Reset() {
	b.index = make(map[string]map[string]*Posting)
	b.docCount = 0
	b.size = 0
}
