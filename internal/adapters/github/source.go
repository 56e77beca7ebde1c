package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/ports"
)

// FetchMethod selects how repository lists are obtained.
type FetchMethod string

const (
	// MethodAPIWithFallback tries the API first and falls back to
	// scraping on rate limits or failures.
	MethodAPIWithFallback FetchMethod = "api_with_fallback"
	// MethodAPIOnly never scrapes.
	MethodAPIOnly FetchMethod = "api_only"
	// MethodWebOnly never touches the API.
	MethodWebOnly FetchMethod = "web_only"
)

// Valid reports whether m is a known fetch method.
func (m FetchMethod) Valid() bool {
	switch m {
	case MethodAPIWithFallback, MethodAPIOnly, MethodWebOnly:
		return true
	default:
		return false
	}
}

// Fetcher produces a repository list for an account. Both the API and the
// scrape paths implement it, normalizing into the same Repository shape so
// downstream code is source-agnostic.
type Fetcher interface {
	Fetch(ctx context.Context, account string, limit int) ([]repository.Repository, error)
}

// SourceConfig configures the composed source.
type SourceConfig struct {
	// Method selects the fetch strategy, default api_with_fallback.
	Method FetchMethod
	// CacheTTL is how long successful lists are kept, default 1h.
	CacheTTL time.Duration
}

func (c SourceConfig) withDefaults() SourceConfig {
	if c.Method == "" {
		c.Method = MethodAPIWithFallback
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	return c
}

// Source composes the primary and fallback fetchers behind a read-through
// cache. Staleness, not corruption, is the only cache risk; the TTL bounds
// it and Refresh bypasses it.
type Source struct {
	cfg    SourceConfig
	api    Fetcher
	web    Fetcher
	cache  *gocache.Cache
	logger ports.Logger
}

// NewSource creates a Source over the given fetchers.
func NewSource(cfg SourceConfig, api, web Fetcher, logger ports.Logger) *Source {
	cfg = cfg.withDefaults()
	return &Source{
		cfg:    cfg,
		api:    api,
		web:    web,
		cache:  gocache.New(cfg.CacheTTL, 10*time.Minute),
		logger: logger,
	}
}

func cacheKey(account string, limit int) string {
	return fmt.Sprintf("repos:%s:%d", account, limit)
}

// Repositories returns the repository list for account, serving from cache
// when fresh.
func (s *Source) Repositories(ctx context.Context, account string, limit int) ([]repository.Repository, error) {
	if cached, ok := s.cache.Get(cacheKey(account, limit)); ok {
		repos := cached.([]repository.Repository)
		s.logger.Debug(ctx, "repository list served from cache",
			ports.F("account", account),
			ports.F("count", len(repos)))
		return repos, nil
	}
	return s.fetch(ctx, account, limit)
}

// Refresh bypasses the cache, fetches fresh data and repopulates.
func (s *Source) Refresh(ctx context.Context, account string, limit int) ([]repository.Repository, error) {
	s.cache.Delete(cacheKey(account, limit))
	return s.fetch(ctx, account, limit)
}

// InvalidateAccount drops every cached list for the account.
func (s *Source) InvalidateAccount(account string) {
	prefix := "repos:" + account + ":"
	for key := range s.cache.Items() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.cache.Delete(key)
		}
	}
}

func (s *Source) fetch(ctx context.Context, account string, limit int) ([]repository.Repository, error) {
	var repos []repository.Repository
	var err error

	switch s.cfg.Method {
	case MethodWebOnly:
		repos, err = s.web.Fetch(ctx, account, limit)
	case MethodAPIOnly:
		repos, err = s.api.Fetch(ctx, account, limit)
	default:
		repos, err = s.api.Fetch(ctx, account, limit)
		if err != nil && s.fallbackWorthwhile(err) {
			s.logger.Warn(ctx, "api fetch failed, falling back to scraping",
				ports.F("account", account),
				ports.F("error", err))
			webRepos, webErr := s.web.Fetch(ctx, account, limit)
			// A partial API set is a degraded success already; only let
			// the fallback replace it when the fallback did better.
			if webErr == nil || !errors.Is(err, ErrPartialResults) {
				repos, err = webRepos, webErr
			}
		}
	}

	if err != nil && !errors.Is(err, ErrPartialResults) {
		return nil, err
	}

	// Partial results are a degraded success: return and cache nothing so
	// the next call tries for the full set.
	if errors.Is(err, ErrPartialResults) {
		return repos, err
	}

	s.cache.Set(cacheKey(account, limit), repos, s.cfg.CacheTTL)
	return repos, nil
}

// fallbackWorthwhile decides whether scraping could do better than the
// failed API call. An unknown account stays unknown on the web listing.
func (s *Source) fallbackWorthwhile(err error) bool {
	return !errors.Is(err, ErrInvalidAccount)
}
