package openalex

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/scholarsite/scholarsite/internal/cache"
	"github.com/scholarsite/scholarsite/internal/metrics"
	"github.com/scholarsite/scholarsite/internal/model"
)

const (
	// CacheTTL bounds how stale cached bibliographic data may be.
	CacheTTL = time.Hour

	cachePrefix = "openalex:"
)

// JSONCache is the subset of the Redis cache used here.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Cached wraps a Source with a read-through cache. Cache failures fall
// through to the source.
type Cached struct {
	source  Source
	cache   JSONCache
	ttl     time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
}

var _ Source = (*Cached)(nil)

// NewCached creates a read-through cache over source.
func NewCached(source Source, cache JSONCache, logger *slog.Logger, rec metrics.Recorder) *Cached {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Cached{
		source:  source,
		cache:   cache,
		ttl:     CacheTTL,
		logger:  logger.With("component", "openalex_cache"),
		metrics: rec,
	}
}

// SearchAuthors implements Source.
func (c *Cached) SearchAuthors(ctx context.Context, q AuthorQuery) ([]model.Author, error) {
	key := cachePrefix + "authors:name:" + strings.ToLower(strings.TrimSpace(q.Name))
	if q.ORCID != "" {
		orcid, err := NormalizeORCID(q.ORCID)
		if err != nil {
			return nil, err
		}
		key = cachePrefix + "authors:orcid:" + orcid
	}

	var authors []model.Author
	if c.lookup(ctx, key, &authors) {
		return authors, nil
	}
	authors, err := c.source.SearchAuthors(ctx, q)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, authors)
	return authors, nil
}

// AuthorByORCID implements Source.
func (c *Cached) AuthorByORCID(ctx context.Context, orcid string) (*model.Author, error) {
	normalized, err := NormalizeORCID(orcid)
	if err != nil {
		return nil, err
	}
	key := cachePrefix + "author:" + normalized

	var a model.Author
	if c.lookup(ctx, key, &a) {
		return &a, nil
	}
	found, err := c.source.AuthorByORCID(ctx, normalized)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, found)
	return found, nil
}

// ListWorks implements Source.
func (c *Cached) ListWorks(ctx context.Context, authorID string, page int) (*WorksPage, error) {
	if page < 1 {
		page = 1
	}
	key := cachePrefix + "works:" + shortID(authorID) + ":" + strconv.Itoa(page)

	var wp WorksPage
	if c.lookup(ctx, key, &wp) {
		return &wp, nil
	}
	found, err := c.source.ListWorks(ctx, authorID, page)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, found)
	return found, nil
}

func (c *Cached) lookup(ctx context.Context, key string, dst any) bool {
	err := c.cache.GetJSON(ctx, key, dst)
	if err == nil {
		c.metrics.IncOpenAlexCacheHit()
		return true
	}
	c.metrics.IncOpenAlexCacheMiss()
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("openalex cache read failed", slog.String("error", err.Error()))
	}
	return false
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	if err := c.cache.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.logger.Warn("openalex cache write failed", slog.String("error", err.Error()))
	}
}
