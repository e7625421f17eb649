// Package output writes query matches to their final destination: a plain
// newline-delimited path list, or a metadata CSV.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"

	"github.com/dilarxiv/dilarxiv/internal/parse"
)

// csvColumns is the fixed leading column set of every metadata export.
var csvColumns = []string{"uid", "title", "date", "fond", "path"}

// WritePaths emits one source path per line. A positive limit caps the
// output; zero or negative drains the sequence. It returns the number of
// rows written.
func WritePaths(w io.Writer, docs iter.Seq2[*parse.Document, error], limit int) (int, error) {
	written := 0
	for doc, err := range docs {
		if err != nil {
			return written, err
		}
		if limit > 0 && written >= limit {
			break
		}
		if _, err := fmt.Fprintln(w, doc.Path); err != nil {
			return written, fmt.Errorf("writing path list: %w", err)
		}
		written++
	}
	return written, nil
}

// WriteCSV emits a header row followed by one row per document, columns
// uid, title, date, fond, path plus any requested extra fields in the
// given order. Quoting follows RFC 4180 via encoding/csv. A positive
// limit caps the data rows.
func WriteCSV(w io.Writer, docs iter.Seq2[*parse.Document, error], extraKeys []string, limit int) (int, error) {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, csvColumns...), extraKeys...)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing CSV header: %w", err)
	}
	written := 0
	for doc, err := range docs {
		if err != nil {
			cw.Flush()
			return written, err
		}
		if limit > 0 && written >= limit {
			break
		}
		row := []string{doc.UID, doc.Title, doc.Date, doc.Fond.String(), doc.Path}
		for _, key := range extraKeys {
			row = append(row, doc.Extra[key])
		}
		if err := cw.Write(row); err != nil {
			cw.Flush()
			return written, fmt.Errorf("writing CSV row for %s: %w", doc.ID(), err)
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("flushing CSV: %w", err)
	}
	return written, nil
}
