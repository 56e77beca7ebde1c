package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/ports"
)

// ScrapeConfig configures the HTML fallback fetcher.
type ScrapeConfig struct {
	// BaseURL is the web host, default https://github.com.
	BaseURL string
	// Timeout bounds each page request, default 10s.
	Timeout time.Duration
	// PageDelay is the minimum spacing between page requests, default 1s,
	// to avoid hammering the host.
	PageDelay time.Duration
	// MaxEmptyPages stops pagination after this many consecutive pages
	// without repositories, default 2.
	MaxEmptyPages int
	// UserAgent identifies us to the host.
	UserAgent string
}

func (c ScrapeConfig) withDefaults() ScrapeConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://github.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.PageDelay <= 0 {
		c.PageDelay = time.Second
	}
	if c.MaxEmptyPages <= 0 {
		c.MaxEmptyPages = 2
	}
	if c.UserAgent == "" {
		c.UserAgent = "gitplug/1.0"
	}
	return c
}

// ScrapeFetcher lists repositories by scraping the paginated public
// repository listing. It is the fallback when the API is rate-limited; it
// cannot see default branches, so those are left for Repository.Branch to
// default.
type ScrapeFetcher struct {
	cfg     ScrapeConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  ports.Logger
}

// NewScrapeFetcher creates a ScrapeFetcher.
func NewScrapeFetcher(cfg ScrapeConfig, logger ports.Logger) *ScrapeFetcher {
	cfg = cfg.withDefaults()
	return &ScrapeFetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		logger:  logger,
	}
}

// Fetch returns up to limit repositories for the account from the HTML
// listing, honoring the inter-page delay and stopping early after
// MaxEmptyPages consecutive empty pages.
func (f *ScrapeFetcher) Fetch(ctx context.Context, account string, limit int) ([]repository.Repository, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: empty account", ErrInvalidAccount)
	}
	if limit <= 0 {
		limit = apiPageSize
	}

	var repos []repository.Repository
	emptyPages := 0
	for page := 1; len(repos) < limit && emptyPages < f.cfg.MaxEmptyPages; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return repos, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		pageRepos, err := f.fetchPage(ctx, account, page)
		if err != nil {
			if len(repos) > 0 {
				return repos, fmt.Errorf("%w: page %d: %v", ErrPartialResults, page, err)
			}
			return nil, err
		}

		if len(pageRepos) == 0 {
			emptyPages++
			continue
		}
		emptyPages = 0
		repos = append(repos, pageRepos...)
	}

	if len(repos) > limit {
		repos = repos[:limit]
	}
	f.logger.Debug(ctx, "scraped repository listing",
		ports.F("account", account),
		ports.F("count", len(repos)))
	return repos, nil
}

func (f *ScrapeFetcher) fetchPage(ctx context.Context, account string, page int) ([]repository.Repository, error) {
	endpoint := fmt.Sprintf("%s/%s?tab=repositories&page=%d", f.cfg.BaseURL, url.PathEscape(account), page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: request creation failed", ErrNetwork)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrInvalidAccount
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing: %v", ErrNetwork, err)
	}

	return f.parseListing(doc, account), nil
}

// parseListing extracts repositories from one listing page. The listing
// marks repository entries with itemprop attributes, which have been stable
// across profile and organization pages.
func (f *ScrapeFetcher) parseListing(doc *goquery.Document, account string) []repository.Repository {
	var repos []repository.Repository
	doc.Find(`a[itemprop='name codeRepository']`).Each(func(_ int, link *goquery.Selection) {
		name := strings.TrimSpace(link.Text())
		if name == "" {
			return
		}
		repo := repository.Repository{
			FullName: account + "/" + name,
		}

		if item := link.Closest("li"); item.Length() > 0 {
			repo.Description = strings.TrimSpace(item.Find(`p[itemprop='description']`).First().Text())
			repo.Language = strings.TrimSpace(item.Find(`[itemprop='programmingLanguage']`).First().Text())
			if raw, ok := item.Find("relative-time").First().Attr("datetime"); ok {
				if ts, err := time.Parse(time.RFC3339, raw); err == nil {
					repo.UpdatedAt = ts
				}
			}
		}
		repos = append(repos, repo)
	})
	return repos
}
