package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Acquisition.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d", cfg.Acquisition.MaxConcurrent)
	}
	if cfg.Indexer.MemoryBudget != 50_000_000 {
		t.Errorf("MemoryBudget = %d", cfg.Indexer.MemoryBudget)
	}
	if cfg.Indexer.TargetSegments != 8 {
		t.Errorf("TargetSegments = %d", cfg.Indexer.TargetSegments)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("DefaultLimit = %d", cfg.Search.DefaultLimit)
	}
	if cfg.Extract.MaxNestingDepth != 3 {
		t.Errorf("MaxNestingDepth = %d", cfg.Extract.MaxNestingDepth)
	}
	if cfg.Piste.PageSize != 100 || cfg.Piste.MaxPages != 100 {
		t.Errorf("Piste paging = %d/%d", cfg.Piste.PageSize, cfg.Piste.MaxPages)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
dataDir: /srv/dila
acquisition:
  maxConcurrent: 3
  archiveTimeout: 5m
indexer:
  memoryBudget: 1000000
search:
  stemming: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/srv/dila" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Acquisition.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d", cfg.Acquisition.MaxConcurrent)
	}
	if cfg.Acquisition.ArchiveTimeout != 5*time.Minute {
		t.Errorf("ArchiveTimeout = %v", cfg.Acquisition.ArchiveTimeout)
	}
	if !cfg.Search.Stemming {
		t.Error("Stemming not loaded")
	}
	// Untouched fields keep their defaults.
	if cfg.Acquisition.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d", cfg.Acquisition.MaxRetries)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing explicit config file must fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DILA_DATA_DIR", "/tmp/corpus")
	t.Setenv("DILA_MAX_CONCURRENT_DOWNLOADS", "2")
	t.Setenv("DILA_MEMORY_BUDGET", "123456")
	t.Setenv("DILA_METRICS_ENABLED", "true")
	t.Setenv("DILA_METRICS_PORT", "9999")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/corpus" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Acquisition.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d", cfg.Acquisition.MaxConcurrent)
	}
	if cfg.Indexer.MemoryBudget != 123456 {
		t.Errorf("MemoryBudget = %d", cfg.Indexer.MemoryBudget)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9999 {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dataDir: /from/yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DILA_DATA_DIR", "/from/env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/from/env" {
		t.Errorf("DataDir = %q, environment must win", cfg.DataDir)
	}
}

func TestDerivedDirectories(t *testing.T) {
	cfg := &Config{DataDir: "/srv/dila"}
	if cfg.TarballDir() != "/srv/dila/tarball" {
		t.Errorf("TarballDir = %q", cfg.TarballDir())
	}
	if cfg.ExtractedDir() != "/srv/dila/extracted" {
		t.Errorf("ExtractedDir = %q", cfg.ExtractedDir())
	}
	if cfg.IndexDir() != "/srv/dila/index" {
		t.Errorf("IndexDir = %q", cfg.IndexDir())
	}
}
