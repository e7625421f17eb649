package dila

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	"github.com/dilarxiv/dilarxiv/pkg/metrics"
	"github.com/dilarxiv/dilarxiv/pkg/resilience"
)

// ArchiveState tracks one archive through the download state machine.
type ArchiveState int

const (
	StatePending ArchiveState = iota
	StateDownloading
	StateRetrying
	StateDone
	StateSkipped
	StateFailed
)

func (s ArchiveState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDownloading:
		return "downloading"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// archiveJob is the per-archive unit of work.
type archiveJob struct {
	fond     fonds.Fond
	name     string
	state    ArchiveState
	attempts int
	err      error
}

// Summary reports the outcome of one acquisition run.
type Summary struct {
	Done    int
	Skipped int
	Failed  []string
}

// Manager downloads the archives of the requested fonds with bounded
// parallelism. A failed archive is recorded and skipped; the run itself
// only fails on cancellation or listing errors.
type Manager struct {
	client  *Client
	cfg     config.AcquisitionConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewManager creates a Manager. m may be nil.
func NewManager(client *Client, cfg config.AcquisitionConfig, m *metrics.Metrics) *Manager {
	return &Manager{
		client:  client,
		cfg:     cfg,
		logger:  slog.Default().With("component", "acquisition"),
		metrics: m,
	}
}

// Run lists and downloads every archive for the requested fonds into
// tarballDir/<fond>/<archive>. Archives already on disk are skipped, which
// makes an interrupted run resumable at archive granularity.
func (m *Manager) Run(ctx context.Context, requested []fonds.Fond, tarballDir string) (*Summary, error) {
	var jobs []*archiveJob
	for _, fond := range requested {
		var names []string
		err := resilience.Retry(ctx, "list-"+fond.String(), m.retryConfig(), func(ctx context.Context) error {
			var listErr error
			names, listErr = m.client.ListArchives(ctx, fond)
			return listErr
		})
		if err != nil {
			return nil, fmt.Errorf("listing archives for %s: %w", fond, err)
		}
		if m.metrics != nil {
			m.metrics.ArchivesListedTotal.WithLabelValues(fond.String()).Add(float64(len(names)))
		}
		for _, name := range names {
			jobs = append(jobs, &archiveJob{fond: fond, name: name, state: StatePending})
		}
	}
	m.logger.Info("acquisition starting",
		"archives", len(jobs),
		"workers", m.cfg.MaxConcurrent,
	)

	var mu sync.Mutex
	summary := &Summary{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)
	for _, job := range jobs {
		g.Go(func() error {
			m.runJob(gctx, job, tarballDir)
			mu.Lock()
			defer mu.Unlock()
			switch job.state {
			case StateDone:
				summary.Done++
			case StateSkipped:
				summary.Skipped++
			case StateFailed:
				summary.Failed = append(summary.Failed, job.fond.String()+"/"+job.name)
			}
			// Only cancellation aborts the run; per-archive failures are
			// already recorded.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("acquisition interrupted: %w", err)
	}
	m.logger.Info("acquisition complete",
		"done", summary.Done,
		"skipped", summary.Skipped,
		"failed", len(summary.Failed),
	)
	return summary, nil
}

// runJob drives one archive through the state machine.
func (m *Manager) runJob(ctx context.Context, job *archiveJob, tarballDir string) {
	destPath := filepath.Join(tarballDir, job.fond.String(), job.name)
	if _, err := os.Stat(destPath); err == nil {
		job.state = StateSkipped
		m.observe(job)
		return
	}
	job.state = StateDownloading
	err := resilience.Retry(ctx, job.name, m.retryConfig(), func(ctx context.Context) error {
		job.attempts++
		if job.attempts > 1 {
			job.state = StateRetrying
			if m.metrics != nil {
				m.metrics.ArchiveRetriesTotal.Inc()
			}
		}
		return resilience.WithTimeout(ctx, m.cfg.ArchiveTimeout, job.name, func(ctx context.Context) error {
			written, err := m.client.Download(ctx, job.fond, job.name, destPath)
			if err == nil && m.metrics != nil {
				m.metrics.DownloadBytesTotal.Add(float64(written))
			}
			return err
		})
	})
	if err != nil {
		job.state = StateFailed
		job.err = err
		m.logger.Warn("archive failed, continuing",
			"fond", job.fond.String(),
			"archive", job.name,
			"attempts", job.attempts,
			"error", err,
		)
	} else {
		job.state = StateDone
		m.logger.Info("archive downloaded",
			"fond", job.fond.String(),
			"archive", job.name,
			"attempts", job.attempts,
		)
	}
	m.observe(job)
}

func (m *Manager) observe(job *archiveJob) {
	if m.metrics == nil {
		return
	}
	m.metrics.ArchivesDownloadedTotal.
		WithLabelValues(job.fond.String(), job.state.String()).
		Inc()
}

func (m *Manager) retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  m.cfg.MaxRetries,
		InitialDelay: m.cfg.RetryInitial,
		MaxDelay:     m.cfg.RetryMax,
	}
}
