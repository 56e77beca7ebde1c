package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitplug/gitplug/internal/adapters/github"
	"github.com/gitplug/gitplug/internal/adapters/logging"
)

func apiConfig(baseURL string) github.APIConfig {
	return github.APIConfig{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		RetryCount: 2,
		RetryDelay: 5 * time.Millisecond,
	}
}

func repoJSON(n int) []byte {
	repos := make([]map[string]interface{}, n)
	for i := range repos {
		repos[i] = map[string]interface{}{
			"full_name":      fmt.Sprintf("acme/repo-%d", i),
			"default_branch": "main",
			"description":    "a repo",
			"language":       "PHP",
			"updated_at":     "2026-02-01T10:00:00Z",
		}
	}
	data, _ := json.Marshal(repos)
	return data
}

func TestAPIFetcher_Fetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/acme/repos", r.URL.Path)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		_, _ = w.Write(repoJSON(3))
	}))
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	repos, err := f.Fetch(context.Background(), "acme", 10)

	require.NoError(t, err)
	require.Len(t, repos, 3)
	assert.Equal(t, "acme/repo-0", repos[0].FullName)
	assert.Equal(t, "main", repos[0].DefaultBranch)
	assert.Equal(t, "PHP", repos[0].Language)
}

func TestAPIFetcher_Fetch_HonorsLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		_, _ = w.Write(repoJSON(5))
	}))
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	repos, err := f.Fetch(context.Background(), "acme", 5)

	require.NoError(t, err)
	assert.Len(t, repos, 5)
}

func TestAPIFetcher_Fetch_RateLimitedNoRetry(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	_, err := f.Fetch(context.Background(), "acme", 10)

	assert.ErrorIs(t, err, github.ErrRateLimited)
	assert.Equal(t, int32(1), hits.Load(), "rate-limit responses must not be retried")
}

func TestAPIFetcher_Fetch_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(repoJSON(1))
	}))
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	repos, err := f.Fetch(context.Background(), "acme", 10)

	require.NoError(t, err)
	assert.Len(t, repos, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestAPIFetcher_Fetch_RetryCountBound(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	_, err := f.Fetch(context.Background(), "acme", 10)

	assert.ErrorIs(t, err, github.ErrNetwork)
	assert.Equal(t, int32(3), hits.Load(), "initial attempt plus RetryCount retries")
}

func TestAPIFetcher_Fetch_InvalidAccount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	_, err := f.Fetch(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, github.ErrInvalidAccount)

	_, err = f.Fetch(context.Background(), "", 10)
	assert.ErrorIs(t, err, github.ErrInvalidAccount)
}

func TestAPIFetcher_Fetch_PartialResults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write(repoJSON(100))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := github.NewAPIFetcher(apiConfig(server.URL), logging.NewNopLogger())
	repos, err := f.Fetch(context.Background(), "acme", 150)

	assert.ErrorIs(t, err, github.ErrPartialResults)
	assert.Len(t, repos, 100, "the fetched subset is returned, not discarded")
}

func TestAPIFetcher_Fetch_SendsToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write(repoJSON(1))
	}))
	defer server.Close()

	cfg := apiConfig(server.URL)
	cfg.Token = "secret"
	f := github.NewAPIFetcher(cfg, logging.NewNopLogger())
	_, err := f.Fetch(context.Background(), "acme", 1)
	require.NoError(t, err)
}
