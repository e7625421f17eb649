package dila

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/pkg/config"
)

type tarEntry struct {
	name string
	body []byte
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name: e.name,
			Mode: 0o644,
			Size: int64(len(e.body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(e.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeArchive(t *testing.T, tarballDir string, fond fonds.Fond, name string, data []byte) {
	t.Helper()
	dir := filepath.Join(tarballDir, fond.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testExtractor() *Extractor {
	return NewExtractor(config.ExtractConfig{MaxNestingDepth: 3}, nil)
}

func TestExtractWritesLeafFiles(t *testing.T) {
	tarballDir := t.TempDir()
	extractedDir := t.TempDir()
	data := buildTarGz(t, []tarEntry{
		{name: "juri/JADE/A1.xml", body: []byte("<TEXTE_JURI_ADMIN/>")},
		{name: "juri/JADE/A2.xml", body: []byte("<TEXTE_JURI_ADMIN/>")},
	})
	writeArchive(t, tarballDir, fonds.JADE, "JADE_20240301-120000.tar.gz", data)

	summary, err := testExtractor().Run(context.Background(), []fonds.Fond{fonds.JADE}, tarballDir, extractedDir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Archives != 1 || summary.Files != 2 || summary.Skipped != 0 {
		t.Errorf("summary = %+v", summary)
	}
	leaf := filepath.Join(extractedDir, "JADE", "juri", "JADE", "A1.xml")
	if _, err := os.Stat(leaf); err != nil {
		t.Errorf("leaf not extracted: %v", err)
	}
}

func TestExtractSkipsUnsafePathsAndContinues(t *testing.T) {
	tarballDir := t.TempDir()
	extractedDir := t.TempDir()
	entries := []tarEntry{
		{name: "../escape.xml", body: []byte("evil")},
		{name: "/absolute.xml", body: []byte("evil")},
	}
	for i := 0; i < 8; i++ {
		entries = append(entries, tarEntry{
			name: filepath.Join("docs", string(rune('a'+i))+".xml"),
			body: []byte("<doc/>"),
		})
	}
	writeArchive(t, tarballDir, fonds.CNIL, "CNIL_20240301-120000.tar.gz", buildTarGz(t, entries))

	summary, err := testExtractor().Run(context.Background(), []fonds.Fond{fonds.CNIL}, tarballDir, extractedDir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Files != 8 {
		t.Errorf("Files = %d, want 8 safe entries", summary.Files)
	}
	if summary.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 unsafe entries", summary.Skipped)
	}
	if _, err := os.Stat(filepath.Join(extractedDir, "escape.xml")); err == nil {
		t.Error("escaped file was written outside the extraction root")
	}
}

func TestExtractUnwrapsNestedTarball(t *testing.T) {
	tarballDir := t.TempDir()
	extractedDir := t.TempDir()
	inner := buildTarGz(t, []tarEntry{
		{name: "legi/LEGI/TEXT01.xml", body: []byte("<TEXTE_LEGI/>")},
	})
	outer := buildTarGz(t, []tarEntry{
		{name: "freemium/inner.tar.gz", body: inner},
		{name: "liste.txt", body: []byte("inner.tar.gz")},
	})
	writeArchive(t, tarballDir, fonds.LEGI, "LEGI_20240301-120000.tar.gz", outer)

	summary, err := testExtractor().Run(context.Background(), []fonds.Fond{fonds.LEGI}, tarballDir, extractedDir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Files != 2 {
		t.Errorf("Files = %d, want nested leaf plus liste.txt", summary.Files)
	}
	leaf := filepath.Join(extractedDir, "LEGI", "legi", "LEGI", "TEXT01.xml")
	if _, err := os.Stat(leaf); err != nil {
		t.Errorf("nested leaf not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(extractedDir, "LEGI", "freemium", "inner.tar.gz")); err == nil {
		t.Error("nested tarball must be unwrapped, not written out")
	}
}

func TestExtractRerunIsIdempotent(t *testing.T) {
	tarballDir := t.TempDir()
	extractedDir := t.TempDir()
	data := buildTarGz(t, []tarEntry{
		{name: "doc.xml", body: []byte("<doc>contenu</doc>")},
	})
	writeArchive(t, tarballDir, fonds.JORF, "JORF_20240301-120000.tar.gz", data)

	e := testExtractor()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := e.Run(ctx, []fonds.Fond{fonds.JORF}, tarballDir, extractedDir); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	got, err := os.ReadFile(filepath.Join(extractedDir, "JORF", "doc.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<doc>contenu</doc>" {
		t.Errorf("leaf content drifted after re-extraction: %q", got)
	}
}

func TestExtractCorruptArchiveDoesNotAbortRun(t *testing.T) {
	tarballDir := t.TempDir()
	extractedDir := t.TempDir()
	writeArchive(t, tarballDir, fonds.CASS, "CASS_19000101-000000.tar.gz", []byte("not a gzip stream"))
	writeArchive(t, tarballDir, fonds.CASS, "CASS_20240301-120000.tar.gz", buildTarGz(t, []tarEntry{
		{name: "ok.xml", body: []byte("<doc/>")},
	}))

	summary, err := testExtractor().Run(context.Background(), []fonds.Fond{fonds.CASS}, tarballDir, extractedDir)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Archives != 1 || summary.Files != 1 {
		t.Errorf("healthy archive not extracted: %+v", summary)
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want the corrupt archive counted", summary.Skipped)
	}
}

func TestExtractMissingFondDirIsNotAnError(t *testing.T) {
	summary, err := testExtractor().Run(context.Background(), []fonds.Fond{fonds.INCA}, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Archives != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestSanitizePath(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"docs/a.xml", true},
		{"./docs/a.xml", true},
		{"a.xml", true},
		{"../a.xml", false},
		{"..", false},
		{"/etc/passwd", false},
		{"docs/../../a.xml", false},
	}
	for _, c := range cases {
		if _, ok := sanitizePath(c.in); ok != c.ok {
			t.Errorf("sanitizePath(%q) ok = %v, want %v", c.in, ok, c.ok)
		}
	}
}
