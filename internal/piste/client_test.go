package piste

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	"github.com/dilarxiv/dilarxiv/pkg/config"
)

func writeCredentials(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	idFile := filepath.Join(dir, "client-id.txt")
	secretFile := filepath.Join(dir, "client-secret.txt")
	if err := os.WriteFile(idFile, []byte("test-id\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secretFile, []byte("test-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return idFile, secretFile
}

func newTestClient(t *testing.T, handler http.Handler, pageSize, maxPages int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	idFile, secretFile := writeCredentials(t)
	cfg := config.PisteConfig{
		APIURL:           srv.URL,
		OAuthURL:         srv.URL,
		ClientIDFile:     idFile,
		ClientSecretFile: secretFile,
		PageSize:         pageSize,
		MaxPages:         maxPages,
		RequestTimeout:   5 * time.Second,
	}
	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func tokenHandler(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "test-id" {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
}

func resultJSON(id, title, date string) string {
	return fmt.Sprintf(`{"titles":[{"id":%q,"title":%q}],"date":%q,"origin":"CETAT","nature":"Texte"}`, id, title, date)
}

func TestSearchPaginatesAndNormalizes(t *testing.T) {
	var sawAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenHandler(t, w, r)
		case "/search":
			sawAuth = r.Header.Get("Authorization")
			var q searchQuery
			if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if q.Fond != "CETAT" {
				t.Errorf("Fond = %q, want CETAT for JADE", q.Fond)
			}
			w.Header().Set("Content-Type", "application/json")
			switch q.Recherche.PageNumber {
			case 1:
				fmt.Fprintf(w, `{"totalResultNumber":3,"results":[%s,%s]}`,
					resultJSON("CETATEXT01", "Premier arret", "2024-03-21"),
					resultJSON("CETATEXT02", "Deuxieme arret", "2023-01-10"))
			case 2:
				fmt.Fprintf(w, `{"totalResultNumber":3,"results":[%s]}`,
					resultJSON("CETATEXT03", "Troisieme arret", "2022-06-01"))
			default:
				t.Errorf("unexpected page %d", q.Recherche.PageNumber)
				fmt.Fprint(w, `{"totalResultNumber":3,"results":[]}`)
			}
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler, 2, 100)
	var docs []*parse.Document
	for doc, err := range c.Search(context.Background(), fonds.JADE, "permis de construire") {
		if err != nil {
			t.Fatal(err)
		}
		docs = append(docs, doc)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3 across two pages", len(docs))
	}
	if docs[0].ID() != "JADE:CETATEXT01" || docs[0].Year != 2024 {
		t.Errorf("first doc = %+v", docs[0])
	}
	if docs[0].Extra["origine"] != "CETAT" {
		t.Errorf("Extra[origine] = %q", docs[0].Extra["origine"])
	}
	if sawAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", sawAuth)
	}
}

func TestSearchStopsAtMaxPages(t *testing.T) {
	pages := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenHandler(t, w, r)
		case "/search":
			pages++
			w.Header().Set("Content-Type", "application/json")
			// Always claims more results than any page window covers.
			fmt.Fprintf(w, `{"totalResultNumber":1000000,"results":[%s]}`,
				resultJSON(fmt.Sprintf("CETATEXT%03d", pages), "arret", "2020-01-01"))
		default:
			http.NotFound(w, r)
		}
	})

	c := newTestClient(t, handler, 1, 3)
	count := 0
	for _, err := range c.Search(context.Background(), fonds.JADE, "permis") {
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if pages != 3 {
		t.Errorf("server saw %d pages, want the MaxPages cap", pages)
	}
	if count != 3 {
		t.Errorf("got %d documents", count)
	}
}

func TestSearchSurfacesServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenHandler(t, w, r)
		default:
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}
	})
	c := newTestClient(t, handler, 10, 10)
	var sawErr error
	for _, err := range c.Search(context.Background(), fonds.CNIL, "sanction") {
		if err != nil {
			sawErr = err
			break
		}
	}
	if sawErr == nil {
		t.Fatal("expected an error from the failing page fetch")
	}
}

func TestNewClientFailsWithoutCredentialFile(t *testing.T) {
	cfg := config.PisteConfig{
		ClientIDFile:     filepath.Join(t.TempDir(), "absent.txt"),
		ClientSecretFile: filepath.Join(t.TempDir(), "absent.txt"),
	}
	if _, err := NewClient(context.Background(), cfg); err == nil {
		t.Error("missing credential file must fail client construction")
	}
}

func TestApiFondMapping(t *testing.T) {
	cases := map[fonds.Fond]string{
		fonds.JADE: "CETAT",
		fonds.CASS: "JURI",
		fonds.INCA: "JURI",
		fonds.CAPP: "JURI",
		fonds.LEGI: "LODA_DATE",
		fonds.CNIL: "CNIL",
		fonds.JORF: "JORF",
	}
	for fond, want := range cases {
		if got := apiFond(fond); got != want {
			t.Errorf("apiFond(%s) = %q, want %q", fond, got, want)
		}
	}
}

func TestNormalizeDropsRecordsWithoutID(t *testing.T) {
	if doc := normalize(fonds.JADE, searchResult{}); doc != nil {
		t.Errorf("record without titles normalized to %+v", doc)
	}
	r := searchResult{}
	r.Titles = append(r.Titles, struct {
		ID    string `json:"id"`
		CID   string `json:"cid"`
		Title string `json:"title"`
	}{CID: "CID01", Title: "via cid"})
	doc := normalize(fonds.JADE, r)
	if doc == nil || doc.UID != "CID01" {
		t.Errorf("CID fallback failed: %+v", doc)
	}
}
