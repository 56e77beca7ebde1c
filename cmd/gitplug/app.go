package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gitplug/gitplug/internal/adapters/command"
	"github.com/gitplug/gitplug/internal/adapters/github"
	"github.com/gitplug/gitplug/internal/adapters/logging"
	"github.com/gitplug/gitplug/internal/adapters/statestore"
	"github.com/gitplug/gitplug/internal/adapters/wpcli"
	"github.com/gitplug/gitplug/internal/domain/config"
	"github.com/gitplug/gitplug/internal/domain/detect"
	"github.com/gitplug/gitplug/internal/domain/reconcile"
	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/domain/state"
	"github.com/gitplug/gitplug/internal/ports"
)

// app bundles the wired application for command handlers.
type app struct {
	cfg    config.Config
	logger ports.Logger
	orch   *reconcile.Orchestrator
	source *github.Source

	closers []func() error
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn(context.Background(), "close failed", ports.F("error", err.Error()))
		}
	}
}

// loadConfig loads the config file and overlays global flag values.
// requireAccount is set by commands that operate on a whole account;
// repository-scoped commands accept owner/name arguments instead.
func loadConfig(requireAccount bool) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if accountFlag != "" {
		cfg.Account = accountFlag
	}
	if limitFlag > 0 {
		cfg.Limit = limitFlag
	}
	if wpPathFlag != "" {
		cfg.WordPress.Path = wpPathFlag
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if requireAccount && cfg.Account == "" {
		return config.Config{}, config.ErrNoAccount
	}
	return cfg, nil
}

// buildApp wires the full application from configuration.
func buildApp(requireAccount bool) (*app, error) {
	cfg, err := loadConfig(requireAccount)
	if err != nil {
		return nil, err
	}

	logger := logging.NewConsoleLogger(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(parseLevel(cfg.LogLevel)),
	)

	a := &app{cfg: cfg, logger: logger}

	var store state.Store
	var events state.EventLog
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		path := cfg.Store.Path
		if path == "" {
			path = "gitplug.db"
		}
		db, err := statestore.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store, events = db, db
	default:
		mem := statestore.NewMemory(statestore.MemoryConfig{
			StateTTL: cfg.Store.StateTTL.Std(),
		})
		store, events = mem, mem
	}

	states := state.NewManager(store, events, logger)

	api := github.NewAPIFetcher(github.APIConfig{
		BaseURL:    cfg.GitHub.APIBaseURL,
		Token:      cfg.GitHub.Token,
		Timeout:    cfg.GitHub.Timeout.Std(),
		RetryCount: cfg.GitHub.RetryCount,
		RetryDelay: cfg.GitHub.RetryDelay.Std(),
	}, logger)
	web := github.NewScrapeFetcher(github.ScrapeConfig{
		BaseURL: cfg.GitHub.WebBaseURL,
		Timeout: cfg.GitHub.Timeout.Std(),
	}, logger)
	a.source = github.NewSource(github.SourceConfig{
		Method:   github.FetchMethod(cfg.FetchMethod),
		CacheTTL: cfg.GitHub.CacheTTL.Std(),
	}, api, web, logger)

	detector := detect.NewDetector(detect.Config{
		BaseURL:        cfg.Detection.BaseURL,
		Timeout:        cfg.Detection.Timeout.Std(),
		MaxHeaderBytes: cfg.Detection.MaxHeaderBytes,
		SkipDetection:  cfg.Detection.Skip,
		CacheTTL:       cfg.Detection.CacheTTL.Std(),
	}, logger)

	wp := wpcli.NewClient(wpcli.Config{
		Bin:  cfg.WordPress.Bin,
		Path: cfg.WordPress.Path,
	}, command.NewExecRunner(), logger)

	a.orch = reconcile.NewOrchestrator(reconcile.Config{
		ItemDelay: cfg.Batch.ItemDelay.Std(),
	}, a.source, detector, wp, wp, states, logger)

	return a, nil
}

func parseLevel(s string) ports.Level {
	switch s {
	case "debug":
		return ports.LevelDebug
	case "warn":
		return ports.LevelWarn
	case "error":
		return ports.LevelError
	default:
		return ports.LevelInfo
	}
}

// resolveRepo turns a command argument into a repository. A bare name is
// qualified with the configured account.
func resolveRepo(cfg config.Config, arg string) (repository.Repository, error) {
	fullName := arg
	if !strings.Contains(arg, "/") {
		if cfg.Account == "" {
			return repository.Repository{}, fmt.Errorf("repository %q needs an owner: use owner/name or set an account", arg)
		}
		fullName = cfg.Account + "/" + arg
	}
	return repository.New(fullName, "")
}
