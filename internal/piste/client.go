// Package piste implements the remote record-lookup client against the
// PISTE / Légifrance API. It is the alternate document source: for small
// result sets a remote search avoids building the local index, and the
// records come back in the same normalized shape the materializer writes.
package piste

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/dilarxiv/dilarxiv/internal/fonds"
	"github.com/dilarxiv/dilarxiv/internal/parse"
	"github.com/dilarxiv/dilarxiv/pkg/config"
	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
	"github.com/dilarxiv/dilarxiv/pkg/resilience"
)

// apiFond maps a local fond to the name the search API expects. The API
// splits jurisprudence differently from the dump server.
func apiFond(f fonds.Fond) string {
	switch f {
	case fonds.JADE:
		return "CETAT"
	case fonds.CASS, fonds.INCA, fonds.CAPP:
		return "JURI"
	case fonds.LEGI:
		return "LODA_DATE"
	default:
		return f.String()
	}
}

// Client is an authenticated PISTE API client.
type Client struct {
	http    *resty.Client
	cfg     config.PisteConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewClient reads the credential files and authenticates. Tokens are valid
// for an hour, which covers any realistic lookup session.
func NewClient(ctx context.Context, cfg config.PisteConfig) (*Client, error) {
	clientID, err := readCredential(cfg.ClientIDFile)
	if err != nil {
		return nil, err
	}
	clientSecret, err := readCredential(cfg.ClientSecretFile)
	if err != nil {
		return nil, err
	}
	c := &Client{
		http:    resty.New().SetTimeout(cfg.RequestTimeout),
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("piste", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "piste"),
	}
	if err := c.authenticate(ctx, clientID, clientSecret); err != nil {
		return nil, err
	}
	return c, nil
}

func readCredential(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading credential file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) authenticate(ctx context.Context, clientID, clientSecret string) error {
	var auth authResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     clientID,
			"client_secret": clientSecret,
			"scope":         "openid",
		}).
		SetResult(&auth).
		Post(c.cfg.OAuthURL + "/oauth/token")
	if err != nil {
		return fmt.Errorf("%w: authenticating: %v", apperrors.ErrNetwork, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: authenticating: HTTP %d", apperrors.ErrNetwork, resp.StatusCode())
	}
	c.http.SetAuthToken(auth.AccessToken)
	c.logger.Info("authenticated", "expires_in", auth.ExpiresIn)
	return nil
}

// searchQuery mirrors the API's French-keyed request body.
type searchQuery struct {
	Recherche recherche `json:"recherche"`
	Fond      string    `json:"fond"`
}

type recherche struct {
	FromAdvanced   bool    `json:"fromAdvancedRecherche"`
	Champs         []champ `json:"champs"`
	PageSize       int     `json:"pageSize"`
	Operateur      string  `json:"operateur"`
	TypePagination string  `json:"typePagination"`
	PageNumber     int     `json:"pageNumber"`
	SecondSort     string  `json:"secondSort"`
}

type champ struct {
	Criteres  []critere `json:"criteres"`
	Operateur string    `json:"operateur"`
	TypeChamp string    `json:"typeChamp"`
}

type critere struct {
	Valeur        string `json:"valeur"`
	Proximite     int    `json:"proximite"`
	Operateur     string `json:"operateur"`
	TypeRecherche string `json:"typeRecherche"`
}

type searchResponse struct {
	TotalResultNumber int64          `json:"totalResultNumber"`
	Results           []searchResult `json:"results"`
}

type searchResult struct {
	Titles []struct {
		ID    string `json:"id"`
		CID   string `json:"cid"`
		Title string `json:"title"`
	} `json:"titles"`
	Date   string `json:"date"`
	Origin string `json:"origin"`
	Nature string `json:"nature"`
	Text   string `json:"text"`
}

// Search streams matching records page by page as normalized documents.
// The sequence restarts from page one on every range. Page fetches go
// through the circuit breaker, so a rate-limited API stops the stream
// instead of hammering it.
func (c *Client) Search(ctx context.Context, fond fonds.Fond, text string) iter.Seq2[*parse.Document, error] {
	return func(yield func(*parse.Document, error) bool) {
		for page := 1; page <= c.cfg.MaxPages; page++ {
			resp, err := c.searchPage(ctx, fond, text, page)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, result := range resp.Results {
				doc := normalize(fond, result)
				if doc == nil {
					continue
				}
				if !yield(doc, nil) {
					return
				}
			}
			if int64(page)*int64(c.cfg.PageSize) >= resp.TotalResultNumber || len(resp.Results) == 0 {
				return
			}
		}
	}
}

func (c *Client) searchPage(ctx context.Context, fond fonds.Fond, text string, page int) (*searchResponse, error) {
	query := searchQuery{
		Fond: apiFond(fond),
		Recherche: recherche{
			Champs: []champ{{
				Criteres: []critere{{
					Valeur:        text,
					Proximite:     2,
					Operateur:     "ET",
					TypeRecherche: "UN_DES_MOTS",
				}},
				Operateur: "ET",
				TypeChamp: "ALL",
			}},
			PageSize:       c.cfg.PageSize,
			Operateur:      "ET",
			TypePagination: "DEFAUT",
			PageNumber:     page,
			SecondSort:     "ID",
		},
	}
	var out searchResponse
	err := c.breaker.Execute(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(&query).
			SetResult(&out).
			Post(c.cfg.APIURL + "/search")
		if err != nil {
			return fmt.Errorf("%w: search page %d: %v", apperrors.ErrNetwork, page, err)
		}
		if resp.IsError() {
			return fmt.Errorf("%w: search page %d: HTTP %d", apperrors.ErrNetwork, page, resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("search page fetched",
		"page", page,
		"results", len(out.Results),
		"total", out.TotalResultNumber,
	)
	return &out, nil
}

// normalize converts one API result into the shared document shape.
// Records without an identifier are dropped.
func normalize(fond fonds.Fond, r searchResult) *parse.Document {
	if len(r.Titles) == 0 {
		return nil
	}
	t := r.Titles[0]
	uid := t.ID
	if uid == "" {
		uid = t.CID
	}
	if uid == "" {
		return nil
	}
	doc := &parse.Document{
		UID:   uid,
		Title: t.Title,
		Date:  r.Date,
		Fond:  fond,
		Extra: make(map[string]string),
	}
	if len(r.Date) >= 4 {
		if year, err := strconv.Atoi(r.Date[:4]); err == nil {
			doc.Year = year
		}
	}
	if r.Origin != "" {
		doc.Extra["origine"] = r.Origin
	}
	if r.Nature != "" {
		doc.Extra["nature"] = r.Nature
	}
	if r.Text != "" {
		doc.Content = r.Text
	}
	return doc
}
