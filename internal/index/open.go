package index

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/dilarxiv/dilarxiv/internal/index/docstore"
	"github.com/dilarxiv/dilarxiv/internal/index/postings"
	"github.com/dilarxiv/dilarxiv/internal/index/segment"
	"github.com/dilarxiv/dilarxiv/internal/parse"
)

// Index is a read-only view of a sealed index. It is safe for unbounded
// concurrent readers: segments are immutable and searched with ReadAt.
type Index struct {
	dir      string
	manifest *Manifest
	readers  []*segment.Reader
	store    *docstore.Store
}

// Open validates the sealed marker and loads every segment listed in it.
// A missing marker yields an index-unavailable error; a format version
// mismatch is a hard error.
func Open(dir string) (*Index, error) {
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	idx := &Index{dir: dir, manifest: manifest}
	for _, name := range manifest.Segments {
		r, err := segment.Open(filepath.Join(dir, name))
		if err != nil {
			idx.Close()
			return nil, err
		}
		idx.readers = append(idx.readers, r)
	}
	store, err := docstore.Open(filepath.Join(dir, docstore.FileName))
	if err != nil {
		idx.Close()
		return nil, err
	}
	idx.store = store
	return idx, nil
}

// Postings returns the merged postings list for term across all segments,
// sorted by DocID. A document's postings for a term live in exactly one
// segment, so concatenation needs no deduplication.
func (idx *Index) Postings(term string) (postings.List, error) {
	var all postings.List
	for _, r := range idx.readers {
		plist, err := r.Search(term)
		if err != nil {
			return nil, err
		}
		all = append(all, plist...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].DocID < all[j].DocID
	})
	return all, nil
}

// Document materializes one stored document by id.
func (idx *Index) Document(ctx context.Context, id string) (*parse.Document, error) {
	return idx.store.Get(ctx, id)
}

// DocCount returns the sealed document count.
func (idx *Index) DocCount() int64 { return idx.manifest.DocCount }

// Fonds returns the fonds the index was built from.
func (idx *Index) Fonds() []string { return idx.manifest.Fonds }

// Close releases all segment readers and the document store.
func (idx *Index) Close() error {
	var firstErr error
	for _, r := range idx.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	idx.readers = nil
	if idx.store != nil {
		if err := idx.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		idx.store = nil
	}
	return firstErr
}
