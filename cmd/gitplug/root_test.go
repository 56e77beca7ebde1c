package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitplug/gitplug/internal/domain/config"
	"github.com/gitplug/gitplug/internal/domain/detect"
	"github.com/gitplug/gitplug/internal/domain/reconcile"
	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/domain/state"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, buf.String(), "gitplug dev")
	assert.Contains(t, buf.String(), "commit: none")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantMsg        string
		wantSuggestion bool
	}{
		{"rate limited", fmt.Errorf("fetch: %w", repository.ErrRateLimited), "rate-limiting", true},
		{"invalid account", repository.ErrInvalidAccount, "does not exist", true},
		{"network", fmt.Errorf("fetch: %w", repository.ErrNetwork), "could not reach GitHub", true},
		{"no account", config.ErrNoAccount, "no GitHub account", true},
		{"plain error", errors.New("something else"), "something else", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, suggestion := classifyError(tt.err)
			assert.Contains(t, msg, tt.wantMsg)
			assert.Equal(t, tt.wantSuggestion, suggestion != "")
		})
	}
}

func TestPrintErrorTo(t *testing.T) {
	var buf bytes.Buffer
	printErrorTo(&buf, repository.ErrInvalidAccount)

	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "Suggestion:")
}

func TestResolveRepo(t *testing.T) {
	cfg := config.Default()
	cfg.Account = "acme"

	repo, err := resolveRepo(cfg, "widget")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", repo.FullName)

	repo, err = resolveRepo(cfg, "other/widget")
	require.NoError(t, err)
	assert.Equal(t, "other/widget", repo.FullName)

	cfg.Account = ""
	_, err = resolveRepo(cfg, "widget")
	assert.Error(t, err)

	_, err = resolveRepo(cfg, "other/widget")
	assert.NoError(t, err)
}

func TestToScanItemJSON(t *testing.T) {
	repo, err := repository.New("acme/widget", "main")
	require.NoError(t, err)

	res := reconcile.ItemResult{
		Repository: repo,
		State:      state.StateAvailable,
		PluginFile: "widget/widget.php",
		Detection: detect.Result{
			IsPlugin:   true,
			PluginData: map[string]string{"name": "Widget", "version": "1.2.0"},
		},
	}

	item := toScanItemJSON(res)
	assert.Equal(t, "acme/widget", item.Repository)
	assert.Equal(t, state.StateAvailable, item.State)
	assert.Equal(t, "Widget", item.PluginName)
	assert.Equal(t, "1.2.0", item.PluginVersion)
	assert.Empty(t, item.Error)

	res.Err = errors.New("boom")
	res.State = state.StateError
	item = toScanItemJSON(res)
	assert.Equal(t, "boom", item.Error)
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	accountFlag = "acme"
	limitFlag = 25
	wpPathFlag = "/var/www/html"
	t.Cleanup(func() {
		accountFlag = ""
		limitFlag = 0
		wpPathFlag = ""
	})

	cfg, err := loadConfig(true)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Account)
	assert.Equal(t, 25, cfg.Limit)
	assert.Equal(t, "/var/www/html", cfg.WordPress.Path)
}

func TestLoadConfigRequiresAccount(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := loadConfig(true)
	assert.ErrorIs(t, err, config.ErrNoAccount)

	_, err = loadConfig(false)
	assert.NoError(t, err)
}
