// Package reconcile combines detection results and installed-registry
// facts into exactly one authoritative lifecycle state per repository, and
// drives that state through the transition engine. State derivation lives
// here and nowhere else: two code paths computing installation status
// independently is how columns end up disagreeing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"golang.org/x/time/rate"

	"github.com/gitplug/gitplug/internal/domain/detect"
	"github.com/gitplug/gitplug/internal/domain/repository"
	"github.com/gitplug/gitplug/internal/domain/state"
	"github.com/gitplug/gitplug/internal/ports"
)

// RepositoryLister produces repository lists for an account.
type RepositoryLister interface {
	Repositories(ctx context.Context, account string, limit int) ([]repository.Repository, error)
	Refresh(ctx context.Context, account string, limit int) ([]repository.Repository, error)
}

// Detector decides whether one repository is a plugin.
type Detector interface {
	Detect(ctx context.Context, repo repository.Repository) (detect.Result, error)
	Invalidate(fullName string)
}

// Config configures batch processing.
type Config struct {
	// ItemDelay spaces out per-repository processing to stay within
	// upstream rate limits, default 3s.
	ItemDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ItemDelay <= 0 {
		c.ItemDelay = 3 * time.Second
	}
	return c
}

// ItemResult is the per-repository outcome surfaced to the caller.
type ItemResult struct {
	Repository      repository.Repository
	Detection       detect.Result
	State           state.PluginState
	PluginFile      string
	UpdateAvailable bool
	// Err carries the infrastructure failure behind a StateError outcome.
	// Benign detection outcomes never set it.
	Err error
}

// Orchestrator coordinates fetching, detection, registry lookups and state
// transitions.
type Orchestrator struct {
	cfg       Config
	source    RepositoryLister
	detector  Detector
	registry  ports.InstalledRegistry
	installer ports.Installer
	states    *state.Manager
	limiter   *rate.Limiter
	logger    ports.Logger
}

// NewOrchestrator wires an Orchestrator together.
func NewOrchestrator(cfg Config, source RepositoryLister, detector Detector, registry ports.InstalledRegistry, installer ports.Installer, states *state.Manager, logger ports.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:       cfg,
		source:    source,
		detector:  detector,
		registry:  registry,
		installer: installer,
		states:    states,
		limiter:   rate.NewLimiter(rate.Every(cfg.ItemDelay), 1),
		logger:    logger,
	}
}

// States exposes the state manager for read paths (listing, events).
func (o *Orchestrator) States() *state.Manager {
	return o.states
}

// ProcessAccount fetches the account's repositories and reconciles each in
// order, emitting every item's result as soon as it is known. One failed
// repository never aborts the rest of the batch. Partial fetches are a
// degraded success: whatever was fetched gets processed.
func (o *Orchestrator) ProcessAccount(ctx context.Context, account string, limit int, emit func(ItemResult)) (*Summary, error) {
	batch, err := newBatch(account)
	if err != nil {
		return nil, err
	}
	defer batch.stop()

	batch.startFetch()
	repos, err := o.source.Repositories(ctx, account, limit)
	if err != nil && !errors.Is(err, repository.ErrPartialResults) {
		batch.fail(err)
		return batch.summary(), fmt.Errorf("fetch repositories for %s: %w", account, err)
	}
	degraded := err != nil
	batch.startProcessing(len(repos), degraded)

	o.logger.Info(ctx, "processing repository batch",
		ports.F("account", account),
		ports.F("count", len(repos)),
		ports.F("batch", batch.id))

	for _, repo := range repos {
		if err := o.limiter.Wait(ctx); err != nil {
			batch.fail(err)
			return batch.summary(), fmt.Errorf("batch canceled: %w", err)
		}

		res := o.ProcessRepository(ctx, repo)
		batch.recordItem(res)
		if emit != nil {
			emit(res)
		}
	}

	batch.complete()
	return batch.summary(), nil
}

// ProcessRepository runs one reconciliation pass: detect, look up the
// installed registry, derive the single target state and transition to it.
func (o *Orchestrator) ProcessRepository(ctx context.Context, repo repository.Repository) ItemResult {
	return o.reconcile(ctx, repo, "scan", false)
}

// Refresh drops the cached detection result for the repository and re-runs
// reconciliation with force: a refresh may need to reset state regardless
// of what the table allows from the current state, for example after the
// plugin was removed outside our control.
func (o *Orchestrator) Refresh(ctx context.Context, repo repository.Repository) ItemResult {
	o.detector.Invalidate(repo.FullName)
	return o.reconcile(ctx, repo, "refresh", true)
}

// Install installs the repository's plugin through the host installer and
// reconciles afterwards. The state only changes once the host confirms
// success; nothing is assumed preemptively.
func (o *Orchestrator) Install(ctx context.Context, repo repository.Repository) (ItemResult, error) {
	if _, err := o.installer.Install(ctx, repo.FullName, repo.Branch()); err != nil {
		return ItemResult{Repository: repo}, fmt.Errorf("install %s: %w", repo.FullName, err)
	}
	return o.reconcile(ctx, repo, "install", false), nil
}

// Activate activates the installed plugin and reconciles afterwards.
func (o *Orchestrator) Activate(ctx context.Context, repo repository.Repository) (ItemResult, error) {
	if err := o.registry.Activate(ctx, repo.Slug()); err != nil {
		return ItemResult{Repository: repo}, fmt.Errorf("activate %s: %w", repo.FullName, err)
	}
	return o.reconcile(ctx, repo, "activate", false), nil
}

// Deactivate deactivates the installed plugin and reconciles afterwards.
func (o *Orchestrator) Deactivate(ctx context.Context, repo repository.Repository) (ItemResult, error) {
	if err := o.registry.Deactivate(ctx, repo.Slug()); err != nil {
		return ItemResult{Repository: repo}, fmt.Errorf("deactivate %s: %w", repo.FullName, err)
	}
	return o.reconcile(ctx, repo, "deactivate", false), nil
}

func (o *Orchestrator) reconcile(ctx context.Context, repo repository.Repository, trigger string, force bool) ItemResult {
	res := ItemResult{Repository: repo}

	// Mark the repository as being checked. From states with no path to
	// checking this is blocked and merely logged, which is fine: the
	// derived target below is what matters.
	if _, err := o.states.Transition(ctx, repo.FullName, state.StateChecking,
		map[string]string{"trigger": trigger}, force); err != nil {
		res.State = state.StateError
		res.Err = err
		return res
	}

	det, detErr := o.detector.Detect(ctx, repo)
	res.Detection = det

	var installed ports.InstalledPlugin
	found := false
	if detErr == nil && det.IsPlugin {
		var err error
		installed, found, err = o.registry.Lookup(ctx, repo.Slug())
		if err != nil {
			detErr = fmt.Errorf("registry lookup: %w", err)
		}
	}

	target := deriveState(det, detErr, installed, found)
	if target == state.StateError {
		res.Err = detErr
	}

	opts := transitionOptions(det, installed, found)
	transCtx := map[string]string{
		"trigger":          trigger,
		"detection_method": det.ScanMethod,
	}
	if _, err := o.states.Transition(ctx, repo.FullName, target, transCtx, force, opts...); err != nil {
		res.State = state.StateError
		res.Err = err
		return res
	}

	// Blocked transitions leave the persisted state untouched; report
	// what is actually recorded rather than what was attempted.
	final, err := o.states.State(ctx, repo.FullName)
	if err != nil {
		res.State = state.StateError
		res.Err = err
		return res
	}
	res.State = final
	res.PluginFile = o.states.PluginFile(ctx, repo.FullName)
	res.UpdateAvailable = updateAvailable(det, installed, found)
	return res
}

// deriveState is the single source of truth mapping detection and registry
// facts onto one lifecycle state.
func deriveState(det detect.Result, detErr error, installed ports.InstalledPlugin, found bool) state.PluginState {
	switch {
	case detErr != nil && benignDetectionError(detErr):
		return state.StateNotPlugin
	case detErr != nil:
		return state.StateError
	case !det.IsPlugin:
		return state.StateNotPlugin
	case !found:
		return state.StateAvailable
	case installed.Active:
		return state.StateInstalledActive
	default:
		return state.StateInstalledInactive
	}
}

// benignDetectionError reports whether a detection failure is an expected
// non-plugin outcome rather than an infrastructure problem.
func benignDetectionError(err error) bool {
	return errors.Is(err, detect.ErrFileNotFound) || errors.Is(err, detect.ErrInvalidRepository)
}

func transitionOptions(det detect.Result, installed ports.InstalledPlugin, found bool) []state.TransitionOption {
	var opts []state.TransitionOption
	if found && installed.File != "" {
		opts = append(opts, state.WithPluginFile(installed.File))
	} else if det.PluginFile != "" {
		// Retain the detected entry file so a later install can reuse it.
		opts = append(opts, state.WithPluginFile(det.PluginFile))
	}

	meta := make(map[string]string)
	if name := det.PluginData["name"]; name != "" {
		meta["name"] = name
	}
	if version := det.PluginData["version"]; version != "" {
		meta["version"] = version
	}
	if found && installed.Version != "" {
		meta["installed_version"] = installed.Version
	}
	if len(meta) > 0 {
		opts = append(opts, state.WithMetadata(meta))
	}
	return opts
}

// updateAvailable compares the detected header version against the
// installed version when both are present and well-formed.
func updateAvailable(det detect.Result, installed ports.InstalledPlugin, found bool) bool {
	if !found {
		return false
	}
	detected := canonicalVersion(det.PluginData["version"])
	current := canonicalVersion(installed.Version)
	if detected == "" || current == "" {
		return false
	}
	return semver.Compare(detected, current) > 0
}

func canonicalVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	v := "v" + strings.TrimPrefix(raw, "v")
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
