package segment

import (
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dilarxiv/dilarxiv/internal/index/postings"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

// cursor walks one segment's dictionary in term order during a merge.
type cursor struct {
	reader *Reader
	pos    int
}

func (c *cursor) term() string { return c.reader.TermAt(c.pos) }
func (c *cursor) done() bool   { return c.pos >= c.reader.TermCount() }

// cursorHeap orders cursors by current term, tie-broken by segment path so
// merge output is deterministic.
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	if h[i].term() != h[j].term() {
		return h[i].term() < h[j].term()
	}
	return h[i].reader.Path() < h[j].reader.Path()
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge k-way merges the given segment files into one new segment in dir,
// deleting the inputs on success. A document contributes a term's postings
// from exactly one input segment, so merged postings lists are concatenated
// and re-sorted by DocID without deduplication.
func Merge(dir string, names []string, w *Writer) (string, error) {
	readers := make([]*Reader, 0, len(names))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	h := make(cursorHeap, 0, len(names))
	for _, name := range names {
		r, err := Open(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		readers = append(readers, r)
		if r.TermCount() > 0 {
			h = append(h, &cursor{reader: r})
		}
	}
	heap.Init(&h)

	var merged []postings.TermEntry
	for h.Len() > 0 {
		term := h[0].term()
		var plist postings.List
		for h.Len() > 0 && h[0].term() == term {
			c := h[0]
			entry, err := c.reader.EntryAt(c.pos)
			if err != nil {
				return "", err
			}
			plist = append(plist, entry.Postings...)
			c.pos++
			if c.done() {
				heap.Pop(&h)
			} else {
				heap.Fix(&h, 0)
			}
		}
		sort.Slice(plist, func(i, j int) bool {
			return plist[i].DocID < plist[j].DocID
		})
		merged = append(merged, postings.TermEntry{Term: term, Postings: plist})
	}

	name, err := w.Write(merged)
	if err != nil {
		return "", err
	}
	for _, r := range readers {
		r.Close()
		if err := os.Remove(r.Path()); err != nil {
			return "", fmt.Errorf("%w: removing merged input %s: %v", apperrors.ErrIndexIO, r.Path(), err)
		}
	}
	readers = nil
	return name, nil
}

// MergeToTarget repeatedly merges the smallest segments until at most
// target remain. It returns the surviving segment names in sorted order.
func MergeToTarget(dir string, names []string, target int, w *Writer) ([]string, error) {
	if target < 1 {
		target = 1
	}
	current := append([]string(nil), names...)
	if len(current) > target {
		bySize := make(map[string]int64, len(current))
		for _, name := range current {
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("%w: stat segment %s: %v", apperrors.ErrIndexIO, name, err)
			}
			bySize[name] = info.Size()
		}
		sort.Slice(current, func(i, j int) bool {
			if bySize[current[i]] != bySize[current[j]] {
				return bySize[current[i]] < bySize[current[j]]
			}
			return current[i] < current[j]
		})
		k := len(current) - target + 1
		mergedName, err := Merge(dir, current[:k], w)
		if err != nil {
			return nil, err
		}
		current = append([]string{mergedName}, current[k:]...)
	}
	sort.Strings(current)
	return current, nil
}
