package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/internal/parse"
)

func docSeq(docs ...*parse.Document) iter.Seq2[*parse.Document, error] {
	return func(yield func(*parse.Document, error) bool) {
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

func outDoc(uid, title string) *parse.Document {
	return &parse.Document{
		UID:   uid,
		Title: title,
		Date:  "2022-03-15",
		Year:  2022,
		Fond:  fonds.JADE,
		Path:  "extracted/JADE/" + uid + ".xml",
		Extra: map[string]string{"juridiction": "Conseil d'Etat"},
	}
}

func TestWritePathsOnePerLine(t *testing.T) {
	var buf strings.Builder
	n, err := WritePaths(&buf, docSeq(outDoc("A1", "Un"), outDoc("A2", "Deux")), 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}
	want := "extracted/JADE/A1.xml\nextracted/JADE/A2.xml\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWritePathsHonorsLimit(t *testing.T) {
	docs := make([]*parse.Document, 25)
	for i := range docs {
		docs[i] = outDoc(fmt.Sprintf("A%02d", i), "titre")
	}
	var buf strings.Builder
	n, err := WritePaths(&buf, docSeq(docs...), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("written = %d, want 10", n)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 10 {
		t.Errorf("output has %d lines, want 10", lines)
	}
}

func TestWritePathsDrainsWithoutLimit(t *testing.T) {
	docs := make([]*parse.Document, 25)
	for i := range docs {
		docs[i] = outDoc(fmt.Sprintf("A%02d", i), "titre")
	}
	var buf strings.Builder
	n, err := WritePaths(&buf, docSeq(docs...), -1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 25 {
		t.Errorf("written = %d, want every match", n)
	}
}

func TestWriteCSVQuotesAndExtras(t *testing.T) {
	var buf strings.Builder
	docs := docSeq(
		outDoc("A1", `Arrêt n° 1234, "urbanisme"`),
		outDoc("A2", "Titre simple"),
	)
	n, err := WriteCSV(&buf, docs, []string{"juridiction"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	wantHeader := []string{"uid", "title", "date", "fond", "path", "juridiction"}
	if diff := cmp.Diff(wantHeader, records[0]); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header plus 2 rows", len(records))
	}
	if records[1][1] != `Arrêt n° 1234, "urbanisme"` {
		t.Errorf("title did not round-trip through quoting: %q", records[1][1])
	}
	if records[1][5] != "Conseil d'Etat" {
		t.Errorf("extra column = %q", records[1][5])
	}
}

func TestWriteCSVHeaderOnEmptyResults(t *testing.T) {
	var buf strings.Builder
	n, err := WriteCSV(&buf, docSeq(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("written = %d, want 0", n)
	}
	if got := strings.TrimSpace(buf.String()); got != "uid,title,date,fond,path" {
		t.Errorf("header row = %q", got)
	}
}

func TestWriteCSVMissingExtraIsEmptyCell(t *testing.T) {
	d := outDoc("A1", "titre")
	var buf strings.Builder
	if _, err := WriteCSV(&buf, docSeq(d), []string{"ecli"}, 0); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if records[1][5] != "" {
		t.Errorf("absent extra must be empty, got %q", records[1][5])
	}
}

func TestWritePathsStopsOnSequenceError(t *testing.T) {
	boom := errors.New("store read failed")
	seq := func(yield func(*parse.Document, error) bool) {
		if !yield(outDoc("A1", "ok"), nil) {
			return
		}
		yield(nil, boom)
	}
	var buf strings.Builder
	n, err := WritePaths(&buf, seq, 0)
	if !errors.Is(err, boom) {
		t.Errorf("want sequence error, got %v", err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1 row before the failure", n)
	}
}
