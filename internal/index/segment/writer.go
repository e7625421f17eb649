// Package segment reads and writes the immutable .dilx segment files that
// make up the inverted index. A segment is a binary header, a block of
// per-term postings, a sorted term dictionary, and a checksummed footer.
// Segments are written once via a temp-file rename and never mutated.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/dilarxiv/dilarxiv/internal/index/postings"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

// MagicBytes identifies a valid .dilx segment file.
const (
	MagicBytes    uint32 = 0x44494C58 // "DILX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32

	// Ext is the segment file extension.
	Ext = ".dilx"
)

// Header is the 64-byte block written at the start of every segment.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

// DictEntry maps a term to its postings offset, length, and document
// frequency in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serializes term entries into new segment files.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that writes segments into dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write atomically creates a new segment file containing the given term
// entries, which must be sorted by term. It writes to a .tmp file first and
// renames on success. All failures are index-integrity errors: a build
// cannot continue past a half-written segment.
func (w *Writer) Write(entries []postings.TermEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: cannot write empty segment", apperrors.ErrIndexIO)
	}
	name := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), Ext)
	finalPath := filepath.Join(w.dir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating segment directory: %v", apperrors.ErrIndexIO, err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: creating temp segment file: %v", apperrors.ErrIndexIO, err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("%w: writing header: %v", apperrors.ErrIndexIO, err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	docIDs := make(map[string]struct{})
	for _, entry := range entries {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("%w: marshaling postings for term %q: %v", apperrors.ErrIndexIO, entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("%w: writing postings for term %q: %v", apperrors.ErrIndexIO, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(data),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(data))
		for _, p := range entry.Postings {
			docIDs[p.DocID] = struct{}{}
		}
	}

	postingsSize := offset - postingsStart
	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling dictionary: %v", apperrors.ErrIndexIO, err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("%w: writing dictionary: %v", apperrors.ErrIndexIO, err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("%w: writing footer: %v", apperrors.ErrIndexIO, err)
	}

	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("%w: updating header: %v", apperrors.ErrIndexIO, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("%w: syncing segment file: %v", apperrors.ErrIndexIO, err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: renaming segment file: %v", apperrors.ErrIndexIO, err)
	}
	return name, nil
}
