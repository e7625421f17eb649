// Package ingest connects parallel parse workers to the single-writer
// index builder through a bounded queue. The queue provides backpressure:
// when the builder falls behind, workers block instead of buffering
// documents without limit.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/internal/index"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/metrics"
)

// Summary reports the outcome of one ingestion run.
type Summary struct {
	Parsed  int64
	Skipped int64
}

// Pipeline drives documents from the extracted tree into the builder.
type Pipeline struct {
	cfg     config.IngestConfig
	builder *index.Builder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Pipeline feeding builder. m may be nil.
func New(cfg config.IngestConfig, builder *index.Builder, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		builder: builder,
		logger:  slog.Default().With("component", "ingest"),
		metrics: m,
	}
}

// Run parses every extracted file of the requested fonds and indexes the
// results. Malformed documents are skipped and counted; index write
// failures abort the run.
func (p *Pipeline) Run(ctx context.Context, requested []fonds.Fond, extractedDir string) (*Summary, error) {
	summary := &Summary{}
	docs := make(chan *parse.Document, p.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)

	// Single writer: the builder owns segment flushes and the doc store.
	g.Go(func() error {
		for doc := range docs {
			if err := p.builder.Add(gctx, doc); err != nil {
				return err
			}
			if p.metrics != nil {
				p.metrics.IngestQueueDepth.Set(float64(len(docs)))
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(docs)
		workers, wctx := errgroup.WithContext(gctx)
		workers.SetLimit(p.cfg.ParseWorkers)
		for _, fond := range requested {
			root := filepath.Join(extractedDir, fond.String())
			parser, err := parse.ForFond(fond)
			if err != nil {
				return err
			}
			walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if wctx.Err() != nil {
					return wctx.Err()
				}
				if d.IsDir() || !strings.HasSuffix(d.Name(), ".xml") {
					return nil
				}
				workers.Go(func() error {
					return p.parseOne(wctx, parser, fond, path, docs, summary)
				})
				return nil
			})
			if os.IsNotExist(walkErr) {
				p.logger.Warn("no extracted documents for fond", "fond", fond.String())
				continue
			}
			if walkErr != nil {
				workers.Wait()
				return fmt.Errorf("walking %s: %w", root, walkErr)
			}
		}
		return workers.Wait()
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}
	p.logger.Info("ingestion complete",
		"parsed", summary.Parsed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// parseOne parses a single file and queues the document for indexing.
// Parse failures are local: counted, logged with the failing path, and
// never fatal for the batch.
func (p *Pipeline) parseOne(ctx context.Context, parser parse.Parser, fond fonds.Fond, path string, docs chan<- *parse.Document, summary *Summary) error {
	f, err := os.Open(path)
	if err != nil {
		p.skip(fond, path, err, summary)
		return nil
	}
	doc, err := parser.Parse(f, path)
	f.Close()
	if err != nil {
		if errors.Is(err, apperrors.ErrParse) {
			p.skip(fond, path, err, summary)
			return nil
		}
		return err
	}
	select {
	case docs <- doc:
		atomic.AddInt64(&summary.Parsed, 1)
		if p.metrics != nil {
			p.metrics.DocsParsedTotal.WithLabelValues(fond.String()).Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) skip(fond fonds.Fond, path string, err error, summary *Summary) {
	atomic.AddInt64(&summary.Skipped, 1)
	if p.metrics != nil {
		p.metrics.DocsSkippedTotal.WithLabelValues(fond.String()).Inc()
	}
	p.logger.Warn("document skipped",
		"fond", fond.String(),
		"path", path,
		"error", err,
	)
}
