// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every stage of the pipeline (Acquisition, Extract, Ingest, Indexer, Search,
// Piste, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	DataDir     string            `yaml:"dataDir"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Extract     ExtractConfig     `yaml:"extract"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Search      SearchConfig      `yaml:"search"`
	Piste       PisteConfig       `yaml:"piste"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// AcquisitionConfig controls archive listing and download behaviour against
// the DILA open-data server.
type AcquisitionConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryInitial   time.Duration `yaml:"retryInitial"`
	RetryMax       time.Duration `yaml:"retryMax"`
	ArchiveTimeout time.Duration `yaml:"archiveTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// ExtractConfig controls tarball extraction.
type ExtractConfig struct {
	MaxNestingDepth int `yaml:"maxNestingDepth"`
}

// IngestConfig controls the parse workers feeding the index builder.
type IngestConfig struct {
	ParseWorkers int `yaml:"parseWorkers"`
	QueueSize    int `yaml:"queueSize"`
}

// IndexerConfig controls the index builder's memory budget and segment merge
// policy.
type IndexerConfig struct {
	MemoryBudget   int64 `yaml:"memoryBudget"`
	TargetSegments int   `yaml:"targetSegments"`
	DocBatchSize   int   `yaml:"docBatchSize"`
}

// SearchConfig controls query execution defaults.
type SearchConfig struct {
	DefaultLimit int  `yaml:"defaultLimit"`
	Stemming     bool `yaml:"stemming"`
}

// PisteConfig holds the remote record-lookup API endpoints and credential
// file locations.
type PisteConfig struct {
	APIURL           string        `yaml:"apiUrl"`
	OAuthURL         string        `yaml:"oauthUrl"`
	ClientIDFile     string        `yaml:"clientIdFile"`
	ClientSecretFile string        `yaml:"clientSecretFile"`
	PageSize         int           `yaml:"pageSize"`
	MaxPages         int           `yaml:"maxPages"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TarballDir returns the directory holding raw downloaded archives.
func (c *Config) TarballDir() string { return filepath.Join(c.DataDir, "tarball") }

// ExtractedDir returns the directory holding extracted leaf documents.
func (c *Config) ExtractedDir() string { return filepath.Join(c.DataDir, "extracted") }

// IndexDir returns the index directory.
func (c *Config) IndexDir() string { return filepath.Join(c.DataDir, "index") }

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for a full corpus
// build on a single machine.
func defaultConfig() *Config {
	return &Config{
		DataDir: ".",
		Acquisition: AcquisitionConfig{
			BaseURL:        "https://echanges.dila.gouv.fr/OPENDATA",
			MaxConcurrent:  10,
			MaxRetries:     4,
			RetryInitial:   500 * time.Millisecond,
			RetryMax:       30 * time.Second,
			ArchiveTimeout: 30 * time.Minute,
			RequestTimeout: 30 * time.Second,
		},
		Extract: ExtractConfig{
			MaxNestingDepth: 3,
		},
		Ingest: IngestConfig{
			ParseWorkers: 8,
			QueueSize:    256,
		},
		Indexer: IndexerConfig{
			MemoryBudget:   50_000_000,
			TargetSegments: 8,
			DocBatchSize:   500,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			Stemming:     false,
		},
		Piste: PisteConfig{
			APIURL:           "https://api.piste.gouv.fr/dila/legifrance/lf-engine-app",
			OAuthURL:         "https://oauth.piste.gouv.fr/api",
			ClientIDFile:     "client-id.txt",
			ClientSecretFile: "client-secret.txt",
			PageSize:         100,
			MaxPages:         100,
			MaxConcurrent:    4,
			RequestTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DILA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DILA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DILA_BASE_URL"); v != "" {
		cfg.Acquisition.BaseURL = v
	}
	if v := os.Getenv("DILA_MAX_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Acquisition.MaxConcurrent = n
		}
	}
	if v := os.Getenv("DILA_PARSE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.ParseWorkers = n
		}
	}
	if v := os.Getenv("DILA_MEMORY_BUDGET"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.MemoryBudget = n
		}
	}
	if v := os.Getenv("DILA_TARGET_SEGMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.TargetSegments = n
		}
	}
	if v := os.Getenv("DILA_PISTE_CLIENT_ID_FILE"); v != "" {
		cfg.Piste.ClientIDFile = v
	}
	if v := os.Getenv("DILA_PISTE_CLIENT_SECRET_FILE"); v != "" {
		cfg.Piste.ClientSecretFile = v
	}
	if v := os.Getenv("DILA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DILA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DILA_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DILA_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
}
