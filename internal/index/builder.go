package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/dilarxiv/dilarxiv/internal/analysis"
	"github.com/dilarxiv/dilarxiv/internal/index/docstore"
	"github.com/dilarxiv/dilarxiv/internal/index/postings"
	"github.com/dilarxiv/dilarxiv/internal/index/segment"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/metrics"
)

// lockName is the advisory lock file guarding single-writer construction.
const lockName = "write.lock"

// Builder consumes a stream of documents and produces a sealed index. It is
// single-writer: construction against a directory another Builder owns
// fails fast, and a directory that already holds a sealed index must be
// cleared before rebuilding.
type Builder struct {
	dir      string
	cfg      config.IndexerConfig
	analyzer *analysis.Analyzer
	lock     *flock.Flock
	buf      *postings.Buffer
	writer   *segment.Writer
	store    *docstore.Store
	segments []string
	batch    []*parse.Document
	fondSet  map[string]struct{}
	docCount int64
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewBuilder acquires the writer lock on dir and prepares an empty index.
// m may be nil when no metrics are collected.
func NewBuilder(dir string, cfg config.IndexerConfig, analyzer *analysis.Analyzer, m *metrics.Metrics) (*Builder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating index directory: %v", apperrors.ErrIndexIO, err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring writer lock: %v", apperrors.ErrIndexIO, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: another builder owns %s", apperrors.ErrIndexIO, dir)
	}
	if err := checkDirClear(dir); err != nil {
		lock.Unlock()
		return nil, err
	}
	store, err := docstore.Open(filepath.Join(dir, docstore.FileName))
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	return &Builder{
		dir:      dir,
		cfg:      cfg,
		analyzer: analyzer,
		lock:     lock,
		buf:      postings.NewBuffer(),
		writer:   segment.NewWriter(dir),
		store:    store,
		fondSet:  make(map[string]struct{}),
		logger:   slog.Default().With("component", "index-builder"),
		metrics:  m,
	}, nil
}

// checkDirClear rejects directories holding a previous index. A sealed
// index is immutable; rebuilding requires an explicitly cleared target.
func checkDirClear(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
		return fmt.Errorf("%w: %s already holds a sealed index, clear it to rebuild", apperrors.ErrIndexIO, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: reading index directory: %v", apperrors.ErrIndexIO, err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), segment.Ext) {
			return fmt.Errorf("%w: %s holds segments from an interrupted build, clear it to rebuild", apperrors.ErrIndexIO, dir)
		}
	}
	return nil
}

// Add ingests one document: its title and content are analyzed into the
// term buffer and its stored fields are queued for the document store.
// When the buffer reaches the memory budget it is flushed as a new segment.
func (b *Builder) Add(ctx context.Context, doc *parse.Document) error {
	tokens := b.analyzer.Analyze(doc.Title + " " + doc.Content)
	b.buf.AddDocument(doc.ID(), tokens)
	b.fondSet[doc.Fond.String()] = struct{}{}
	b.docCount++

	b.batch = append(b.batch, doc)
	if len(b.batch) >= b.cfg.DocBatchSize {
		if err := b.flushDocs(ctx); err != nil {
			return err
		}
	}
	if b.buf.Size() >= b.cfg.MemoryBudget {
		b.logger.Info("memory budget reached, flushing segment",
			"size", b.buf.Size(),
			"budget", b.cfg.MemoryBudget,
		)
		if err := b.flushSegment(); err != nil {
			return err
		}
	}
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Inc()
	}
	return nil
}

// Seal flushes remaining state, merges segments down to the configured
// target count, and writes the sealed marker. The Builder is unusable
// afterwards.
func (b *Builder) Seal(ctx context.Context) (*Manifest, error) {
	if err := b.flushDocs(ctx); err != nil {
		return nil, err
	}
	if err := b.flushSegment(); err != nil {
		return nil, err
	}
	if len(b.segments) > b.cfg.TargetSegments {
		b.logger.Info("merging segments",
			"have", len(b.segments),
			"target", b.cfg.TargetSegments,
		)
		merged, err := segment.MergeToTarget(b.dir, b.segments, b.cfg.TargetSegments, b.writer)
		if err != nil {
			return nil, err
		}
		b.segments = merged
		if b.metrics != nil {
			b.metrics.SegmentMergesTotal.Inc()
		}
	}
	fonds := make([]string, 0, len(b.fondSet))
	for f := range b.fondSet {
		fonds = append(fonds, f)
	}
	sort.Strings(fonds)
	manifest := &Manifest{
		FormatVersion: FormatVersion,
		Fonds:         fonds,
		DocCount:      b.docCount,
		Segments:      b.segments,
		SealedAt:      time.Now().UTC(),
	}
	if err := writeManifest(b.dir, manifest); err != nil {
		return nil, err
	}
	b.logger.Info("index sealed",
		"docs", manifest.DocCount,
		"segments", len(manifest.Segments),
		"fonds", manifest.Fonds,
	)
	return manifest, b.Close()
}

// Close releases the store and the writer lock without sealing. An
// unsealed directory is left behind; readers will refuse it.
func (b *Builder) Close() error {
	var firstErr error
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			firstErr = err
		}
		b.store = nil
	}
	if b.lock != nil {
		if err := b.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.lock = nil
	}
	return firstErr
}

func (b *Builder) flushDocs(ctx context.Context) error {
	if len(b.batch) == 0 {
		return nil
	}
	if err := b.store.PutBatch(ctx, b.batch); err != nil {
		return err
	}
	b.batch = b.batch[:0]
	return nil
}

func (b *Builder) flushSegment() error {
	snapshot := b.buf.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	name, err := b.writer.Write(snapshot)
	if err != nil {
		return err
	}
	b.segments = append(b.segments, name)
	b.buf.Reset()
	if b.metrics != nil {
		b.metrics.SegmentFlushesTotal.Inc()
	}
	b.logger.Info("segment flushed",
		"segment", name,
		"terms", len(snapshot),
		"active_segments", len(b.segments),
	)
	return nil
}
