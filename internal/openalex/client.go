// Package openalex reads authors and works from the OpenAlex REST API.
package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scholarsite/scholarsite/internal/metrics"
	"github.com/scholarsite/scholarsite/internal/model"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.openalex.org"
	// DefaultPerPage is the works page size.
	DefaultPerPage = 50
	// MaxPerPage is the API's page size ceiling.
	MaxPerPage = 200

	maxResponseSize = 8 << 20
)

// Source is the bibliographic lookup surface used by handlers.
type Source interface {
	SearchAuthors(ctx context.Context, q AuthorQuery) ([]model.Author, error)
	AuthorByORCID(ctx context.Context, orcid string) (*model.Author, error)
	ListWorks(ctx context.Context, authorID string, page int) (*WorksPage, error)
}

// AuthorQuery selects authors by ORCID or by name. ORCID wins when both are set.
type AuthorQuery struct {
	ORCID string
	Name  string
}

// WorksPage is one page of an author's works, newest first.
type WorksPage struct {
	Publications []model.Publication `json:"publications"`
	Count        int                 `json:"count"`
	Page         int                 `json:"page"`
	PerPage      int                 `json:"per_page"`
}

// Config holds client settings.
type Config struct {
	BaseURL     string
	Mailto      string
	Timeout     time.Duration
	PerPage     int
	MaxAttempts int
}

// Client calls the OpenAlex API.
type Client struct {
	http        *http.Client
	baseURL     string
	mailto      string
	perPage     int
	maxAttempts int
	logger      *slog.Logger
	metrics     metrics.Recorder
	sleep       func(context.Context, time.Duration) error
}

var _ Source = (*Client)(nil)

// NewClient creates a Client. Zero config fields take defaults.
func NewClient(cfg Config, logger *slog.Logger, rec metrics.Recorder) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.PerPage > MaxPerPage {
		cfg.PerPage = MaxPerPage
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Client{
		http:        NewHTTPClient(cfg.Timeout),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		mailto:      cfg.Mailto,
		perPage:     cfg.PerPage,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger.With("component", "openalex"),
		metrics:     rec,
		sleep:       sleepContext,
	}
}

// SearchAuthors finds authors by ORCID filter or free-text name search.
func (c *Client) SearchAuthors(ctx context.Context, q AuthorQuery) ([]model.Author, error) {
	params := url.Values{}
	switch {
	case q.ORCID != "":
		orcid, err := NormalizeORCID(q.ORCID)
		if err != nil {
			return nil, err
		}
		params.Set("filter", "orcid:"+orcid)
	case strings.TrimSpace(q.Name) != "":
		params.Set("search", strings.TrimSpace(q.Name))
		params.Set("per-page", "25")
	default:
		return nil, ErrInvalidQuery
	}

	var resp listResponse[author]
	if err := c.get(ctx, "authors.search", "/authors", params, &resp); err != nil {
		return nil, err
	}

	authors := make([]model.Author, 0, len(resp.Results))
	for _, a := range resp.Results {
		authors = append(authors, a.toModel())
	}
	return authors, nil
}

// AuthorByORCID fetches the single author registered under orcid.
func (c *Client) AuthorByORCID(ctx context.Context, orcid string) (*model.Author, error) {
	normalized, err := NormalizeORCID(orcid)
	if err != nil {
		return nil, err
	}

	var a author
	if err := c.get(ctx, "authors.get", "/authors/orcid:"+normalized, url.Values{}, &a); err != nil {
		return nil, err
	}
	m := a.toModel()
	return &m, nil
}

// ListWorks returns page (1-based) of an author's works sorted by year.
func (c *Client) ListWorks(ctx context.Context, authorID string, page int) (*WorksPage, error) {
	authorID = shortID(strings.TrimSpace(authorID))
	if authorID == "" {
		return nil, ErrInvalidQuery
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("filter", "author.id:"+authorID)
	params.Set("sort", "publication_year:desc")
	params.Set("per-page", strconv.Itoa(c.perPage))
	params.Set("page", strconv.Itoa(page))

	var resp listResponse[work]
	if err := c.get(ctx, "works.list", "/works", params, &resp); err != nil {
		return nil, err
	}

	out := &WorksPage{
		Publications: make([]model.Publication, 0, len(resp.Results)),
		Count:        resp.Meta.Count,
		Page:         page,
		PerPage:      c.perPage,
	}
	for _, w := range resp.Results {
		out.Publications = append(out.Publications, w.toPublication())
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, dst any) error {
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	start := time.Now()
	err := c.doWithRetry(ctx, op, endpoint, dst)
	c.metrics.ObserveProviderCall("openalex", op, time.Since(start), err)
	return err
}

func (c *Client) doWithRetry(ctx context.Context, op, endpoint string, dst any) error {
	var err error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if serr := c.sleep(ctx, nextRetryDelay(attempt-1)); serr != nil {
				return serr
			}
		}

		err = c.do(ctx, endpoint, dst)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !shouldRetry(apiErr.StatusCode) {
			return err
		}
		c.logger.Warn("openalex request failed, retrying",
			slog.String("op", op),
			slog.Int("status", apiErr.StatusCode),
			slog.Int("attempt", attempt+1),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("openalex: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "scholarsite/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openalex: request failed: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(body).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("openalex: decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type listMeta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type listResponse[T any] struct {
	Meta    listMeta `json:"meta"`
	Results []T      `json:"results"`
}

type named struct {
	DisplayName string `json:"display_name"`
}

type author struct {
	ID                    string  `json:"id"`
	DisplayName           string  `json:"display_name"`
	ORCID                 string  `json:"orcid"`
	WorksCount            int     `json:"works_count"`
	CitedByCount          int     `json:"cited_by_count"`
	LastKnownInstitutions []named `json:"last_known_institutions"`
}

type openAccess struct {
	IsOA bool `json:"is_oa"`
}

type location struct {
	Source *named `json:"source"`
}

type authorship struct {
	Author named `json:"author"`
}

type work struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	Type                  string           `json:"type"`
	DOI                   string           `json:"doi"`
	CitedByCount          int              `json:"cited_by_count"`
	OpenAccess            openAccess       `json:"open_access"`
	PrimaryLocation       *location        `json:"primary_location"`
	Authorships           []authorship     `json:"authorships"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}
