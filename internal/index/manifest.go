// Package index ties the segment files, the document store, and the sealed
// marker together: the Builder constructs an index under a single-writer
// lock and a memory budget, and Open gives read-only access to a sealed
// index for any number of concurrent readers.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

const (
	// ManifestName is the sealed marker file. An index directory without
	// it is not readable.
	ManifestName = "manifest.json"
	// FormatVersion is bumped on any incompatible change to the index
	// layout. Readers refuse other versions outright.
	FormatVersion = 1
)

// Manifest describes a sealed index.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	Fonds         []string  `json:"fonds"`
	DocCount      int64     `json:"doc_count"`
	Segments      []string  `json:"segments"`
	SealedAt      time.Time `json:"sealed_at"`
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding manifest: %v", apperrors.ErrIndexIO, err)
	}
	finalPath := filepath.Join(dir, ManifestName)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", apperrors.ErrIndexIO, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: sealing index: %v", apperrors.ErrIndexIO, err)
	}
	return nil
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no sealed index at %s", apperrors.ErrIndexUnavailable, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", apperrors.ErrIndexIO, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", apperrors.ErrIndexIO, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: index format version %d, this build reads %d",
			apperrors.ErrIndexIO, m.FormatVersion, FormatVersion)
	}
	return &m, nil
}
