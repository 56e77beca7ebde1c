package detect_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitplug/gitplug/internal/adapters/logging"
	"github.com/gitplug/gitplug/internal/domain/detect"
	"github.com/gitplug/gitplug/internal/domain/repository"
)

const pluginHeader = `<?php
/**
 * Plugin Name: Event Manager
 * Description: Manage events.
 * Version: 1.4.2
 */
`

func testRepo(t *testing.T) repository.Repository {
	t.Helper()
	repo, err := repository.New("acme/event-manager", "main")
	require.NoError(t, err)
	return repo
}

func newDetector(t *testing.T, baseURL string, mutate func(*detect.Config)) *detect.Detector {
	t.Helper()
	cfg := detect.Config{BaseURL: baseURL, Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	return detect.NewDetector(cfg, logging.NewNopLogger())
}

func TestDetector_Detect_PluginFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/event-manager/main/event-manager.php", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Range"))
		_, _ = w.Write([]byte(pluginHeader))
	}))
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	res, err := d.Detect(context.Background(), testRepo(t))

	require.NoError(t, err)
	assert.True(t, res.IsPlugin)
	assert.Equal(t, detect.ScanMethodHeader, res.ScanMethod)
	assert.Equal(t, "Event Manager", res.PluginData["name"])
	assert.Equal(t, "1.4.2", res.PluginData["version"])
	assert.Equal(t, "event-manager/event-manager.php", res.PluginFile)
}

func TestDetector_Detect_FallsBackThroughCandidates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/plugin.php") {
			_, _ = w.Write([]byte(pluginHeader))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	res, err := d.Detect(context.Background(), testRepo(t))

	require.NoError(t, err)
	assert.True(t, res.IsPlugin)
	assert.Equal(t, "event-manager/plugin.php", res.PluginFile)
}

func TestDetector_Detect_NoHeaderIsNotPlugin(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/index.php") {
			_, _ = w.Write([]byte("<?php // silence is golden\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	res, err := d.Detect(context.Background(), testRepo(t))

	require.NoError(t, err)
	assert.False(t, res.IsPlugin)
	assert.Equal(t, detect.ScanMethodHeader, res.ScanMethod)
}

func TestDetector_Detect_FileNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	_, err := d.Detect(context.Background(), testRepo(t))

	assert.ErrorIs(t, err, detect.ErrFileNotFound)
}

func TestDetector_Detect_InvalidRepositoryFailsFast(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	_, err := d.Detect(context.Background(), repository.Repository{FullName: "not-a-full-name"})

	assert.ErrorIs(t, err, detect.ErrInvalidRepository)
	assert.False(t, called)
}

func TestDetector_Detect_TimeoutBound(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	d := newDetector(t, server.URL, func(cfg *detect.Config) {
		cfg.Timeout = 200 * time.Millisecond
	})

	start := time.Now()
	_, err := d.Detect(context.Background(), testRepo(t))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, detect.ErrTimeout)
	assert.Less(t, elapsed, 2*time.Second, "detection must return within the timeout bound")
}

func TestDetector_Detect_ResponseSizeCap(t *testing.T) {
	t.Parallel()

	big := pluginHeader + strings.Repeat("x", 1<<20)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(big))
	}))
	defer server.Close()

	d := newDetector(t, server.URL, func(cfg *detect.Config) {
		cfg.MaxHeaderBytes = 2048
	})
	res, err := d.Detect(context.Background(), testRepo(t))

	require.NoError(t, err)
	assert.True(t, res.IsPlugin, "header within the cap must still be parsed")
}

func TestDetector_Detect_SkipMode(t *testing.T) {
	t.Parallel()

	// No server at all: skip mode must not touch the network, and must
	// never report is_plugin=false.
	d := newDetector(t, "http://127.0.0.1:0", func(cfg *detect.Config) {
		cfg.SkipDetection = true
	})

	res, err := d.Detect(context.Background(), testRepo(t))
	require.NoError(t, err)
	assert.True(t, res.IsPlugin)
	assert.Equal(t, detect.ScanMethodSkipped, res.ScanMethod)
}

func TestDetector_Detect_CachesResults(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(pluginHeader))
	}))
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	ctx := context.Background()
	repo := testRepo(t)

	_, err := d.Detect(ctx, repo)
	require.NoError(t, err)
	_, err = d.Detect(ctx, repo)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())

	d.Invalidate(repo.FullName)
	_, err = d.Detect(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDetector_Detect_CachesFileNotFound(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := newDetector(t, server.URL, nil)
	ctx := context.Background()
	repo := testRepo(t)

	_, err := d.Detect(ctx, repo)
	assert.ErrorIs(t, err, detect.ErrFileNotFound)
	probes := hits.Load()
	assert.Greater(t, probes, int32(0))

	// A repository without an entry file stays that way for the cache TTL;
	// rescanning it must not probe the candidates again.
	_, err = d.Detect(ctx, repo)
	assert.ErrorIs(t, err, detect.ErrFileNotFound)
	assert.Equal(t, probes, hits.Load())

	d.Invalidate(repo.FullName)
	_, err = d.Detect(ctx, repo)
	assert.ErrorIs(t, err, detect.ErrFileNotFound)
	assert.Equal(t, 2*probes, hits.Load())
}
