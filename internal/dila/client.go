// Package dila acquires the open-data dumps: it lists the archives
// published for each fond, downloads them with bounded parallelism and
// retry, and extracts the (possibly nested) tarballs into a document tree.
package dila

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/go-resty/resty/v2"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/resilience"
)

// archivePattern matches dump file names like LEGI_20240301-120000.tar.gz
// in the server's HTML directory listing.
var archivePattern = regexp.MustCompile(`\w+-\w+\.tar\.gz`)

// Client talks to the DILA open-data server.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient builds a Client from the acquisition config. The per-request
// timeout covers listing only; downloads are bounded separately by the
// archive timeout.
func NewClient(cfg config.AcquisitionConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetRetryCount(0) // retries are handled by the caller's policy
	return &Client{
		http:    http,
		baseURL: cfg.BaseURL,
		logger:  slog.Default().With("component", "dila-client"),
	}
}

// ListArchives scrapes the fond's directory listing for archive names,
// deduplicated and sorted.
func (c *Client) ListArchives(ctx context.Context, fond fonds.Fond) ([]string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/" + fond.String() + "/")
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", apperrors.ErrNetwork, fond, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: listing %s: HTTP %d", apperrors.ErrNetwork, fond, resp.StatusCode())
	}
	seen := make(map[string]struct{})
	for _, name := range archivePattern.FindAllString(resp.String(), -1) {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	c.logger.Debug("listed archives", "fond", fond.String(), "count", len(names))
	return names, nil
}

// Download streams one archive to destPath. The transfer goes to a .part
// file renamed on success, so an interrupted download never masquerades as
// a complete archive. Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, fond fonds.Fond, name, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, resilience.Permanent(fmt.Errorf("creating tarball directory: %w", err))
	}
	partPath := destPath + ".part"
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/" + fond.String() + "/" + name)
	if err != nil {
		return 0, fmt.Errorf("%w: downloading %s: %v", apperrors.ErrNetwork, name, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		err := fmt.Errorf("%w: downloading %s: HTTP %d", apperrors.ErrNetwork, name, resp.StatusCode())
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return 0, resilience.Permanent(err)
		}
		return 0, err
	}
	f, err := os.Create(partPath)
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("creating %s: %w", partPath, err))
	}
	written, err := io.Copy(f, body)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("%w: writing %s: %v", apperrors.ErrNetwork, name, err)
	}
	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return 0, resilience.Permanent(fmt.Errorf("finalizing %s: %w", name, err))
	}
	return written, nil
}
