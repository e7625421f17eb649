package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/dilarxiv/dilarxiv/internal/index/postings"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

// Reader provides random access to one segment file. The dictionary is held
// in memory; postings are read on demand with ReadAt, so any number of
// goroutines may search the same Reader concurrently.
type Reader struct {
	file     *os.File
	filePath string
	header   Header
	dict     []DictEntry
}

// Open validates a segment file's magic, version, and dictionary checksum,
// then loads its term dictionary.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening segment file: %v", apperrors.ErrIndexIO, err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading segment header: %v", apperrors.ErrIndexIO, err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("%w: %s: bad magic bytes %x", apperrors.ErrIndexIO, path, magic)
	}
	header := Header{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("%w: %s: segment format version %d, want %d",
			apperrors.ErrIndexIO, path, header.Version, FormatVersion)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading dictionary: %v", apperrors.ErrIndexIO, err)
	}
	footer := make([]byte, FooterSize)
	footerOffset := header.DictOffset + header.DictSize
	if _, err := f.ReadAt(footer, footerOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading footer: %v", apperrors.ErrIndexIO, err)
	}
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(dictBytes) {
		f.Close()
		return nil, fmt.Errorf("%w: %s: dictionary checksum mismatch", apperrors.ErrIndexIO, path)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: parsing dictionary: %v", apperrors.ErrIndexIO, err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
	}, nil
}

// Search returns the postings list for term, or nil if the segment does not
// contain it.
func (r *Reader) Search(term string) (postings.List, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.postingsAt(idx)
}

// TermCount returns the number of distinct terms in the segment.
func (r *Reader) TermCount() int { return len(r.dict) }

// DocCount returns the number of distinct documents in the segment.
func (r *Reader) DocCount() uint32 { return r.header.DocCount }

// TermAt returns the i-th term in dictionary order.
func (r *Reader) TermAt(i int) string { return r.dict[i].Term }

// EntryAt returns the i-th term entry in dictionary order. Used by the
// merge pass to stream a segment in order.
func (r *Reader) EntryAt(i int) (postings.TermEntry, error) {
	plist, err := r.postingsAt(i)
	if err != nil {
		return postings.TermEntry{}, err
	}
	return postings.TermEntry{Term: r.dict[i].Term, Postings: plist}, nil
}

// Size returns the on-disk size of the segment in bytes.
func (r *Reader) Size() int64 {
	info, err := r.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Path returns the segment file path.
func (r *Reader) Path() string { return r.filePath }

// Close releases the underlying file.
func (r *Reader) Close() error { return r.file.Close() }

func (r *Reader) postingsAt(i int) (postings.List, error) {
	entry := r.dict[i]
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("%w: reading postings: %v", apperrors.ErrIndexIO, err)
	}
	var plist postings.List
	if err := json.Unmarshal(data, &plist); err != nil {
		return nil, fmt.Errorf("%w: parsing postings: %v", apperrors.ErrIndexIO, err)
	}
	return plist, nil
}
