// Package github fetches repository lists for an account, via the REST API
// with automatic fallback to scraping the public repository listing when
// the API is rate-limited or down.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/ports"
)

// Fetch errors, shared with the repository domain so callers can classify
// outcomes without importing this adapter.
var (
	ErrRateLimited    = repository.ErrRateLimited
	ErrInvalidAccount = repository.ErrInvalidAccount
	ErrNetwork        = repository.ErrNetwork
	ErrPartialResults = repository.ErrPartialResults
)

// APIConfig configures the REST fetcher.
type APIConfig struct {
	// BaseURL is the API host, default https://api.github.com.
	BaseURL string
	// Token is an optional bearer token raising the rate limit.
	Token string
	// Timeout bounds each request, default 10s.
	Timeout time.Duration
	// RetryCount is how many times transient failures are retried, default 2.
	// Rate-limit responses are never retried.
	RetryCount int
	// RetryDelay is the fixed wait between attempts, default 1s.
	RetryDelay time.Duration
	// UserAgent identifies us to the API.
	UserAgent string
}

func (c APIConfig) withDefaults() APIConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.github.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "gitplug/1.0"
	}
	return c
}

// APIFetcher lists repositories through the GitHub REST API.
type APIFetcher struct {
	cfg    APIConfig
	client *http.Client
	logger ports.Logger
}

// NewAPIFetcher creates an APIFetcher.
func NewAPIFetcher(cfg APIConfig, logger ports.Logger) *APIFetcher {
	cfg = cfg.withDefaults()
	return &APIFetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// apiRepo is the subset of the REST repository object we consume.
type apiRepo struct {
	FullName      string    `json:"full_name"`
	DefaultBranch string    `json:"default_branch"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	UpdatedAt     time.Time `json:"updated_at"`
	Fork          bool      `json:"fork"`
}

const apiPageSize = 100

// Fetch returns up to limit repositories for the account, newest first.
// When later pages fail after earlier ones succeeded, the fetched subset is
// returned with ErrPartialResults rather than nothing.
func (f *APIFetcher) Fetch(ctx context.Context, account string, limit int) ([]repository.Repository, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: empty account", ErrInvalidAccount)
	}
	if limit <= 0 {
		limit = apiPageSize
	}

	var repos []repository.Repository
	for page := 1; len(repos) < limit; page++ {
		perPage := apiPageSize
		if remaining := limit - len(repos); remaining < perPage {
			perPage = remaining
		}

		pageRepos, err := f.fetchPage(ctx, account, page, perPage)
		if err != nil {
			if len(repos) > 0 {
				f.logger.Warn(ctx, "repository page failed, returning partial set",
					ports.F("account", account),
					ports.F("page", page),
					ports.F("fetched", len(repos)),
					ports.F("error", err))
				return repos, fmt.Errorf("%w: page %d: %v", ErrPartialResults, page, err)
			}
			return nil, err
		}
		if len(pageRepos) == 0 {
			break
		}
		repos = append(repos, pageRepos...)
		if len(pageRepos) < perPage {
			break
		}
	}

	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

// fetchPage requests one page, retrying transient failures a fixed number
// of times with a fixed delay. Rate-limit and not-found responses return
// immediately.
func (f *APIFetcher) fetchPage(ctx context.Context, account string, page, perPage int) ([]repository.Repository, error) {
	endpoint := fmt.Sprintf("%s/users/%s/repos?sort=updated&per_page=%d&page=%d",
		f.cfg.BaseURL, url.PathEscape(account), perPage, page)

	var lastErr error
	for attempt := 0; attempt <= f.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			f.logger.Debug(ctx, "retrying repository page",
				ports.F("account", account),
				ports.F("page", page),
				ports.F("attempt", attempt))
			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			}
		}

		repos, err := f.doPage(ctx, endpoint)
		if err == nil {
			return repos, nil
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidAccount) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *APIFetcher) doPage(ctx context.Context, endpoint string) ([]repository.Repository, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: request creation failed", ErrNetwork)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case http.StatusNotFound:
		return nil, ErrInvalidAccount
	default:
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", ErrNetwork)
	}

	var raw []apiRepo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrNetwork, err)
	}

	repos := make([]repository.Repository, 0, len(raw))
	for _, r := range raw {
		if r.FullName == "" {
			continue
		}
		repos = append(repos, repository.Repository{
			FullName:      r.FullName,
			DefaultBranch: r.DefaultBranch,
			Description:   r.Description,
			Language:      r.Language,
			UpdatedAt:     r.UpdatedAt,
		})
	}
	return repos, nil
}
