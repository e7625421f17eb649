package dila

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/metrics"
)

// ExtractSummary reports the outcome of one extraction run.
type ExtractSummary struct {
	Archives int
	Files    int
	Skipped  int
}

// Extractor unpacks downloaded tarballs into the extracted document tree.
// Decompression is streamed entry by entry, so memory stays flat no matter
// how large the corpus is. Nested tarballs are unwrapped in place up to the
// configured depth.
type Extractor struct {
	cfg     config.ExtractConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExtractor creates an Extractor. m may be nil.
func NewExtractor(cfg config.ExtractConfig, m *metrics.Metrics) *Extractor {
	return &Extractor{
		cfg:     cfg,
		logger:  slog.Default().With("component", "extractor"),
		metrics: m,
	}
}

// Run extracts every archive under tarballDir/<fond>/ into
// extractedDir/<fond>/, one goroutine per fond. Corrupt entries are
// skipped and logged; extraction continues with the remaining entries.
func (e *Extractor) Run(ctx context.Context, requested []fonds.Fond, tarballDir, extractedDir string) (*ExtractSummary, error) {
	summary := &ExtractSummary{}
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*ExtractSummary, len(requested))
	for i, fond := range requested {
		g.Go(func() error {
			s, err := e.extractFond(gctx, fond, tarballDir, extractedDir)
			results[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for _, s := range results {
		if s == nil {
			continue
		}
		summary.Archives += s.Archives
		summary.Files += s.Files
		summary.Skipped += s.Skipped
	}
	e.logger.Info("extraction complete",
		"archives", summary.Archives,
		"files", summary.Files,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (e *Extractor) extractFond(ctx context.Context, fond fonds.Fond, tarballDir, extractedDir string) (*ExtractSummary, error) {
	srcDir := filepath.Join(tarballDir, fond.String())
	entries, err := os.ReadDir(srcDir)
	if os.IsNotExist(err) {
		e.logger.Warn("no tarballs for fond", "fond", fond.String())
		return &ExtractSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", srcDir, err)
	}
	destDir := filepath.Join(extractedDir, fond.String())
	summary := &ExtractSummary{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		path := filepath.Join(srcDir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			e.skip(fond, summary, path, err)
			continue
		}
		err = e.extractStream(ctx, fond, f, destDir, 0, summary)
		f.Close()
		if err != nil {
			if ctx.Err() != nil {
				return summary, err
			}
			e.skip(fond, summary, path, err)
			continue
		}
		summary.Archives++
		e.logger.Info("archive extracted", "fond", fond.String(), "archive", entry.Name())
	}
	return summary, nil
}

// extractStream unpacks one gzipped tarball from r. Nested tarballs found
// inside are recursed into rather than written out, until maxNestingDepth.
func (e *Extractor) extractStream(ctx context.Context, fond fonds.Fond, r io.Reader, destDir string, depth int, summary *ExtractSummary) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: opening gzip stream: %v", apperrors.ErrArchive, err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// The tar stream itself is broken; whatever came before is
			// kept, the rest of this archive is lost.
			return fmt.Errorf("%w: reading tar stream: %v", apperrors.ErrArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel, ok := sanitizePath(hdr.Name)
		if !ok {
			e.skip(fond, summary, hdr.Name, fmt.Errorf("%w: unsafe path", apperrors.ErrArchive))
			continue
		}
		if strings.HasSuffix(rel, ".tar.gz") && depth < e.cfg.MaxNestingDepth {
			if err := e.extractStream(ctx, fond, tr, destDir, depth+1, summary); err != nil {
				if ctx.Err() != nil {
					return err
				}
				e.skip(fond, summary, rel, err)
			}
			continue
		}
		if err := writeLeaf(filepath.Join(destDir, rel), tr, hdr.Size); err != nil {
			e.skip(fond, summary, rel, err)
			continue
		}
		summary.Files++
		if e.metrics != nil {
			e.metrics.EntriesExtractedTotal.WithLabelValues(fond.String()).Inc()
		}
	}
}

func (e *Extractor) skip(fond fonds.Fond, summary *ExtractSummary, name string, err error) {
	summary.Skipped++
	if e.metrics != nil {
		e.metrics.EntriesSkippedTotal.WithLabelValues(fond.String()).Inc()
	}
	e.logger.Warn("entry skipped",
		"fond", fond.String(),
		"entry", name,
		"error", err,
	)
}

// sanitizePath normalizes a tar entry name and rejects absolute paths and
// parent-directory escapes.
func sanitizePath(name string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return clean, true
}

// writeLeaf writes one extracted file. Re-extraction over an existing leaf
// of the same size skips it, so re-running extraction is idempotent.
func writeLeaf(path string, r io.Reader, size int64) error {
	if info, err := os.Stat(path); err == nil && info.Size() == size {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: creating directory for %s: %v", apperrors.ErrArchive, path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", apperrors.ErrArchive, path, err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: writing %s: %v", apperrors.ErrArchive, path, err)
	}
	return nil
}
