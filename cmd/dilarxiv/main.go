// Command dilarxiv drives the pipeline end to end: download the open-data
// dumps, extract them, build the local search index, and query it. A
// remote lookup mode answers small queries through the PISTE API without a
// local index.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dilarxiv/dilarxiv/internal/analysis"
	"github.com/dilarxiv/dilarxiv/internal/dila"
	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/internal/index"
	"github.com/dilarxiv/dilarxiv/internal/ingest"
	"github.com/dilarxiv/dilarxiv/internal/output"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	"github.com/dilarxiv/dilarxiv/internal/piste"
	"github.com/dilarxiv/dilarxiv/internal/query"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/logger"
	"github.com/dilarxiv/dilarxiv/pkg/metrics"
)

type options struct {
	configPath string
	fondList   string
	download   bool
	extract    bool
	build      bool
	queryStr   string
	remoteStr  string
	limit      int
	all        bool
	csv        bool
	extras     string
	outPath    string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&opts.fondList, "fond", "all", "comma-separated fonds, or 'all'")
	flag.BoolVar(&opts.download, "download", false, "download archives for the selected fonds")
	flag.BoolVar(&opts.extract, "extract", false, "extract downloaded archives")
	flag.BoolVar(&opts.build, "index", false, "build the search index from extracted documents")
	flag.StringVar(&opts.queryStr, "query", "", "query the local index")
	flag.StringVar(&opts.remoteStr, "remote", "", "query the remote lookup API instead of the local index")
	flag.IntVar(&opts.limit, "limit", 0, "maximum results to print (default from config)")
	flag.BoolVar(&opts.all, "all", false, "print every match")
	flag.BoolVar(&opts.csv, "csv", false, "write matches as metadata CSV instead of a path list")
	flag.StringVar(&opts.extras, "extras", "", "comma-separated extra fields to add as CSV columns")
	flag.StringVar(&opts.outPath, "out", "", "write results to this file instead of stdout")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperrors.ExitFatal)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	skipped, err := run(ctx, cfg, opts)
	if err != nil {
		slog.Error("run failed", "error", err)
	}
	os.Exit(apperrors.ExitCode(err, skipped))
}

func run(ctx context.Context, cfg *config.Config, opts options) (int, error) {
	requested, err := selectFonds(opts.fondList)
	if err != nil {
		return 0, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	skipped := 0
	if opts.download {
		client := dila.NewClient(cfg.Acquisition)
		manager := dila.NewManager(client, cfg.Acquisition, m)
		summary, err := manager.Run(ctx, requested, cfg.TarballDir())
		if err != nil {
			return skipped, err
		}
		skipped += len(summary.Failed)
	}
	if opts.extract {
		extractor := dila.NewExtractor(cfg.Extract, m)
		summary, err := extractor.Run(ctx, requested, cfg.TarballDir(), cfg.ExtractedDir())
		if err != nil {
			return skipped, err
		}
		skipped += summary.Skipped
	}
	if opts.build {
		n, err := buildIndex(ctx, cfg, requested, m)
		skipped += n
		if err != nil {
			return skipped, err
		}
	}
	if opts.queryStr != "" {
		if err := queryLocal(ctx, cfg, opts, m); err != nil {
			return skipped, err
		}
	}
	if opts.remoteStr != "" {
		if err := queryRemote(ctx, cfg, opts, requested); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

func selectFonds(list string) ([]fonds.Fond, error) {
	if strings.EqualFold(strings.TrimSpace(list), "all") {
		return fonds.All(), nil
	}
	var out []fonds.Fond
	for _, name := range strings.Split(list, ",") {
		f, err := fonds.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func newAnalyzer(cfg *config.Config) *analysis.Analyzer {
	if cfg.Search.Stemming {
		return analysis.New(analysis.WithStemming())
	}
	return analysis.New()
}

func buildIndex(ctx context.Context, cfg *config.Config, requested []fonds.Fond, m *metrics.Metrics) (int, error) {
	builder, err := index.NewBuilder(cfg.IndexDir(), cfg.Indexer, newAnalyzer(cfg), m)
	if err != nil {
		return 0, err
	}
	pipeline := ingest.New(cfg.Ingest, builder, m)
	summary, err := pipeline.Run(ctx, requested, cfg.ExtractedDir())
	if err != nil {
		builder.Close()
		return int(summary.Skipped), err
	}
	manifest, err := builder.Seal(ctx)
	if err != nil {
		builder.Close()
		return int(summary.Skipped), err
	}
	slog.Info("build complete",
		"docs", manifest.DocCount,
		"segments", len(manifest.Segments),
		"skipped", summary.Skipped,
	)
	return int(summary.Skipped), nil
}

func queryLocal(ctx context.Context, cfg *config.Config, opts options, m *metrics.Metrics) error {
	idx, err := index.Open(cfg.IndexDir())
	if err != nil {
		return err
	}
	defer idx.Close()
	engine := query.New(idx, newAnalyzer(cfg), m)
	results, err := engine.Execute(opts.queryStr)
	if err != nil {
		return err
	}
	slog.Info("matches found", "count", results.Len())
	return writeResults(engine.Documents(ctx, results), cfg, opts)
}

func queryRemote(ctx context.Context, cfg *config.Config, opts options, requested []fonds.Fond) error {
	client, err := piste.NewClient(ctx, cfg.Piste)
	if err != nil {
		return err
	}
	// The remote API searches one fond at a time; chain the requested ones.
	docs := func(yield func(*parse.Document, error) bool) {
		for _, fond := range requested {
			for doc, err := range client.Search(ctx, fond, opts.remoteStr) {
				if !yield(doc, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
	return writeResults(docs, cfg, opts)
}

func writeResults(docs iter.Seq2[*parse.Document, error], cfg *config.Config, opts options) error {
	var w io.Writer = os.Stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	limit := opts.limit
	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}
	if opts.all {
		limit = 0
	}
	if opts.csv {
		var extras []string
		if opts.extras != "" {
			extras = strings.Split(opts.extras, ",")
		}
		_, err := output.WriteCSV(w, docs, extras, limit)
		return err
	}
	_, err := output.WritePaths(w, docs, limit)
	return err
}
