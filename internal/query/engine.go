package query

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/dilarxiv/dilarxiv/internal/analysis"
	"github.com/dilarxiv/dilarxiv/internal/index"
	"github.com/dilarxiv/dilarxiv/internal/index/postings"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/metrics"
)

// Engine evaluates parsed queries against one sealed index. It holds no
// mutable state, so a single Engine serves concurrent callers.
type Engine struct {
	idx      *index.Index
	analyzer *analysis.Analyzer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates an Engine over a sealed index. m may be nil.
func New(idx *index.Index, analyzer *analysis.Analyzer, m *metrics.Metrics) *Engine {
	return &Engine{
		idx:      idx,
		analyzer: analyzer,
		logger:   slog.Default().With("component", "query-engine"),
		metrics:  m,
	}
}

// Results is the outcome of one query: the full sorted match set, exposed
// as a restartable sequence. Ranging over Seq repeatedly always replays
// the same ids in the same order.
type Results struct {
	ids []string
}

// Seq yields every matching document id in ascending order.
func (r *Results) Seq() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, id := range r.ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Len returns the total number of matches.
func (r *Results) Len() int { return len(r.ids) }

// Execute parses and evaluates the query. Matches come back sorted by
// document id, which orders ties lexicographically by fond then uid.
func (e *Engine) Execute(queryStr string) (*Results, error) {
	start := time.Now()
	root, err := Parse(queryStr, e.analyzer)
	if err != nil {
		return nil, err
	}
	set, err := e.eval(root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.QueryDuration.Observe(elapsed.Seconds())
		e.metrics.QueryMatches.Observe(float64(len(ids)))
	}
	e.logger.Info("query executed",
		"query", queryStr,
		"matches", len(ids),
		"elapsed", elapsed,
	)
	return &Results{ids: ids}, nil
}

// Documents materializes results from the document store, preserving
// result order. Like Results.Seq, the sequence restarts on every range.
func (e *Engine) Documents(ctx context.Context, r *Results) iter.Seq2[*parse.Document, error] {
	return func(yield func(*parse.Document, error) bool) {
		for id := range r.Seq() {
			doc, err := e.idx.Document(ctx, id)
			if err == nil && doc == nil {
				err = fmt.Errorf("%w: document %s missing from store", apperrors.ErrIndexIO, id)
			}
			if !yield(doc, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

func (e *Engine) eval(n node) (map[string]struct{}, error) {
	switch t := n.(type) {
	case *matchNoneNode:
		return map[string]struct{}{}, nil
	case *phraseNode:
		return e.evalPhrase(t)
	case *andNode:
		return e.evalAnd(t)
	case *orNode:
		result := make(map[string]struct{})
		for _, child := range t.children {
			set, err := e.eval(child)
			if err != nil {
				return nil, err
			}
			for id := range set {
				result[id] = struct{}{}
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unhandled query node %T", n)
	}
}

// evalAnd intersects the positive children, then subtracts every excluded
// child's match set.
func (e *Engine) evalAnd(n *andNode) (map[string]struct{}, error) {
	var result map[string]struct{}
	var excluded []node
	for _, child := range n.children {
		if not, ok := child.(*notNode); ok {
			excluded = append(excluded, not.child)
			continue
		}
		set, err := e.eval(child)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = set
			continue
		}
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
	}
	for _, child := range excluded {
		if len(result) == 0 {
			break
		}
		set, err := e.eval(child)
		if err != nil {
			return nil, err
		}
		for id := range set {
			delete(result, id)
		}
	}
	return result, nil
}

// evalPhrase matches a term sequence. Length one is a plain term lookup;
// longer phrases intersect position lists requiring consecutive offsets.
func (e *Engine) evalPhrase(n *phraseNode) (map[string]struct{}, error) {
	positionsPerTerm := make([]map[string][]uint32, len(n.terms))
	for i, term := range n.terms {
		plist, err := e.idx.Postings(term)
		if err != nil {
			return nil, err
		}
		if len(plist) == 0 {
			return map[string]struct{}{}, nil
		}
		positionsPerTerm[i] = byDoc(plist)
	}
	result := make(map[string]struct{})
	for id, firstPositions := range positionsPerTerm[0] {
		if phraseAt(id, firstPositions, positionsPerTerm) {
			result[id] = struct{}{}
		}
	}
	return result, nil
}

func byDoc(plist postings.List) map[string][]uint32 {
	m := make(map[string][]uint32, len(plist))
	for _, p := range plist {
		m[p.DocID] = p.Positions
	}
	return m
}

// phraseAt reports whether any occurrence of the first term in the given
// document is followed by the remaining terms at consecutive positions.
func phraseAt(id string, firstPositions []uint32, positionsPerTerm []map[string][]uint32) bool {
	for _, start := range firstPositions {
		matched := true
		for i := 1; i < len(positionsPerTerm); i++ {
			if !containsPosition(positionsPerTerm[i][id], start+uint32(i)) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func containsPosition(positions []uint32, want uint32) bool {
	i := sort.Search(len(positions), func(j int) bool { return positions[j] >= want })
	return i < len(positions) && positions[i] == want
}
