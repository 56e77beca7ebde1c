// Package detect decides whether a repository is an installable WordPress
// plugin by inspecting a candidate entry file's header, with strict timeout
// and response-size bounds so a slow host can never hang a batch.
package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/ports"
)

// Detection errors.
var (
	// ErrInvalidRepository means the identifier was empty or malformed.
	// Detection fails fast without a network call.
	ErrInvalidRepository = errors.New("invalid repository")
	// ErrFileNotFound means no candidate entry file exists. Callers should
	// treat this as a benign non-plugin outcome.
	ErrFileNotFound = errors.New("entry file not found")
	// ErrTimeout means the header fetch exceeded the configured bound.
	ErrTimeout = errors.New("detection timed out")
	// ErrNetwork covers other transport failures.
	ErrNetwork = errors.New("network error")
)

// Scan methods recorded on results.
const (
	// ScanMethodHeader is the normal path: the entry file header was read.
	ScanMethodHeader = "header_scan"
	// ScanMethodSkipped marks synthetic results produced when detection is
	// bypassed via configuration. Such results always report IsPlugin=true;
	// a skipped scan must never masquerade as "not a plugin".
	ScanMethodSkipped = "skipped_for_testing"
)

// Result is the ephemeral outcome of one detection pass.
type Result struct {
	// IsPlugin reports whether the repository carries a plugin header.
	IsPlugin bool
	// PluginData holds recognized header fields when IsPlugin is true.
	PluginData map[string]string
	// PluginFile is the entry file path in installed form, "slug/file.php".
	PluginFile string
	// ScanMethod names the detection path that produced this result.
	ScanMethod string
}

// Config configures a Detector. Zero values fall back to defaults.
type Config struct {
	// BaseURL is the raw-content host, default https://raw.githubusercontent.com.
	BaseURL string
	// Timeout bounds each header fetch, default 5s.
	Timeout time.Duration
	// MaxHeaderBytes caps how much of the entry file is read, default 4KiB.
	// The header block sits at the top of the file, so a truncated read is
	// sufficient regardless of file size.
	MaxHeaderBytes int64
	// SkipDetection bypasses detection entirely and reports every
	// repository as a plugin. Escape hatch for UI testing.
	SkipDetection bool
	// CacheTTL is how long results are kept, default 24h. Plugin headers
	// change infrequently.
	CacheTTL time.Duration
	// CacheSize bounds the result cache, default 512 entries.
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://raw.githubusercontent.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 4096
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	return c
}

// cached is one detection cache entry. Benign "no entry file" outcomes are
// cached too: they cost the same network probes as a hit, and rescanning a
// header-less repository every batch would defeat the cache.
type cached struct {
	res      Result
	notFound bool
}

// Detector inspects repositories for plugin headers.
type Detector struct {
	cfg    Config
	client *http.Client
	cache  *lru.LRU[string, cached]
	group  singleflight.Group
	logger ports.Logger
}

// NewDetector creates a Detector with the given configuration.
func NewDetector(cfg Config, logger ports.Logger) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  lru.NewLRU[string, cached](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: logger,
	}
}

// candidateFiles returns entry file names to probe, most likely first.
// WordPress convention names the entry file after the plugin directory.
func candidateFiles(repo repository.Repository) []string {
	return []string{
		repo.Slug() + ".php",
		"plugin.php",
		"index.php",
	}
}

// Detect determines whether the repository is an installable plugin.
//
// Benign outcomes (no header, no entry file) never abort a batch; only
// ErrTimeout and ErrNetwork indicate infrastructure failure. Concurrent
// detections of the same repository are collapsed into one fetch, and
// results are cached for Config.CacheTTL.
func (d *Detector) Detect(ctx context.Context, repo repository.Repository) (Result, error) {
	if d.cfg.SkipDetection {
		return Result{
			IsPlugin:   true,
			PluginData: map[string]string{"name": repo.Name()},
			PluginFile: repo.Slug() + "/" + repo.Slug() + ".php",
			ScanMethod: ScanMethodSkipped,
		}, nil
	}

	if err := repository.ValidateFullName(repo.FullName); err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidRepository, repo.FullName)
	}

	if c, ok := d.cache.Get(repo.FullName); ok {
		if c.notFound {
			return Result{}, fmt.Errorf("%w: %s", ErrFileNotFound, repo.FullName)
		}
		return c.res, nil
	}

	v, err, _ := d.group.Do(repo.FullName, func() (interface{}, error) {
		res, err := d.scan(ctx, repo)
		if err != nil {
			// Infrastructure failures stay uncached so the next pass
			// retries; a missing entry file is a stable fact worth
			// remembering for the TTL.
			if errors.Is(err, ErrFileNotFound) {
				d.cache.Add(repo.FullName, cached{notFound: true})
			}
			return Result{}, err
		}
		d.cache.Add(repo.FullName, cached{res: res})
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Invalidate drops the cached result for one repository.
func (d *Detector) Invalidate(fullName string) {
	d.cache.Remove(fullName)
}

func (d *Detector) scan(ctx context.Context, repo repository.Repository) (Result, error) {
	foundFile := false
	for _, candidate := range candidateFiles(repo) {
		content, err := d.fetchHead(ctx, repo, candidate)
		if errors.Is(err, ErrFileNotFound) {
			continue
		}
		if err != nil {
			return Result{}, err
		}
		foundFile = true

		fields := parseHeader(content)
		if fields["name"] == "" {
			// File exists but carries no plugin header; try the next
			// candidate before concluding.
			continue
		}

		d.logger.Debug(ctx, "plugin header found",
			ports.F("repo", repo.FullName),
			ports.F("file", candidate),
			ports.F("name", fields["name"]))

		return Result{
			IsPlugin:   true,
			PluginData: fields,
			PluginFile: repo.Slug() + "/" + candidate,
			ScanMethod: ScanMethodHeader,
		}, nil
	}

	if !foundFile {
		return Result{}, fmt.Errorf("%w: %s", ErrFileNotFound, repo.FullName)
	}

	return Result{IsPlugin: false, ScanMethod: ScanMethodHeader}, nil
}

// fetchHead reads at most MaxHeaderBytes from the top of one file.
func (d *Detector) fetchHead(ctx context.Context, repo repository.Repository, file string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/%s", d.cfg.BaseURL, repo.FullName, repo.Branch(), file)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: request creation failed", ErrNetwork)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", d.cfg.MaxHeaderBytes-1))

	resp, err := d.client.Do(req)
	if err != nil {
		return "", d.classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusNotFound:
		return "", ErrFileNotFound
	default:
		return "", fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxHeaderBytes))
	if err != nil {
		return "", d.classify(err)
	}
	return string(data), nil
}

func (d *Detector) classify(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w after %s", ErrTimeout, d.cfg.Timeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, d.cfg.Timeout)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
