package state

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gitplug/gitplug/internal/ports"
)

// shardCount sizes the per-key mutex striping. Transitions for the same
// repository must be strictly sequential so the read-decide-write step
// stays atomic; transitions for different repositories are independent.
const shardCount = 32

// Result reports the outcome of a Transition call. A blocked transition is
// a normal outcome, not an error: callers that care must check Accepted
// (or re-read the state) rather than rely on an error being returned.
type Result struct {
	From     PluginState
	To       PluginState
	Accepted bool
	Forced   bool
}

// Manager is the single source of truth for repository lifecycle state.
// All production state changes flow through Transition.
type Manager struct {
	store  Store
	events EventLog
	logger ports.Logger

	locks [shardCount]sync.Mutex

	// now is swapped out by tests.
	now func() time.Time
}

// NewManager creates a Manager over the given persistence.
func NewManager(store Store, events EventLog, logger ports.Logger) *Manager {
	return &Manager{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) lock(repo string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(repo))
	return &m.locks[h.Sum32()%shardCount]
}

// State returns the last persisted state for repo, or StateUnknown when the
// repository has never been seen. Absence is a valid, typed value, not an
// error; only persistence failures return a non-nil error.
func (m *Manager) State(ctx context.Context, repo string) (PluginState, error) {
	rec, ok, err := m.store.Get(ctx, repo)
	if err != nil {
		return StateUnknown, fmt.Errorf("read state for %s: %w", repo, err)
	}
	if !ok {
		return StateUnknown, nil
	}
	return rec.State, nil
}

// BatchStates is the bulk form of State, with the same per-key no-fail
// semantics.
func (m *Manager) BatchStates(ctx context.Context, repos []string) (map[string]PluginState, error) {
	out := make(map[string]PluginState, len(repos))
	for _, repo := range repos {
		st, err := m.State(ctx, repo)
		if err != nil {
			return nil, err
		}
		out[repo] = st
	}
	return out, nil
}

// Record returns the full persisted record for repo.
func (m *Manager) Record(ctx context.Context, repo string) (Record, bool, error) {
	return m.store.Get(ctx, repo)
}

// PluginFile returns the recorded entry file path for repo, or "".
func (m *Manager) PluginFile(ctx context.Context, repo string) string {
	rec, ok, err := m.store.Get(ctx, repo)
	if err != nil || !ok {
		return ""
	}
	return rec.PluginFile
}

// SetState writes a state unconditionally, without table validation or
// event logging. It exists for initialization and tests; production code
// paths must use Transition.
func (m *Manager) SetState(ctx context.Context, repo string, st PluginState, metadata map[string]string) error {
	if !st.Valid() {
		return fmt.Errorf("set state for %s: unknown plugin state %q", repo, st)
	}
	mu := m.lock(repo)
	mu.Lock()
	defer mu.Unlock()

	rec, _, err := m.store.Get(ctx, repo)
	if err != nil {
		return fmt.Errorf("read state for %s: %w", repo, err)
	}
	rec.State = st
	if metadata != nil {
		rec.Metadata = metadata
	}
	if err := m.store.Put(ctx, repo, rec); err != nil {
		return fmt.Errorf("write state for %s: %w", repo, err)
	}
	return nil
}

// TransitionOption mutates the record alongside an accepted transition.
type TransitionOption func(*Record)

// WithPluginFile records the plugin entry file path.
func WithPluginFile(file string) TransitionOption {
	return func(rec *Record) {
		if file != "" {
			rec.PluginFile = file
		}
	}
}

// WithMetadata merges descriptive plugin facts into the record.
func WithMetadata(meta map[string]string) TransitionOption {
	return func(rec *Record) {
		if len(meta) == 0 {
			return
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			rec.Metadata[k] = v
		}
	}
}

// Transition validates and applies a state change for repo.
//
// When force is false and the allowed-transition table does not permit the
// change, the transition is rejected without error: the state is left
// untouched and a blocked event is appended. When the change is permitted
// (or force is true) the new state is persisted and a transition event is
// appended. Errors are returned only for infrastructure failures, which
// are distinct from a blocked transition.
func (m *Manager) Transition(ctx context.Context, repo string, to PluginState, trigger map[string]string, force bool, opts ...TransitionOption) (Result, error) {
	if !to.Valid() {
		return Result{}, fmt.Errorf("transition for %s: unknown plugin state %q", repo, to)
	}

	mu := m.lock(repo)
	mu.Lock()
	defer mu.Unlock()

	rec, _, err := m.store.Get(ctx, repo)
	if err != nil {
		return Result{}, fmt.Errorf("read state for %s: %w", repo, err)
	}
	from := rec.State
	if from == "" {
		from = StateUnknown
	}

	res := Result{From: from, To: to, Forced: force}

	if !force && !CanTransition(from, to) {
		m.logger.Debug(ctx, "transition blocked",
			ports.F("repo", repo),
			ports.F("from", from.String()),
			ports.F("to", to.String()))
		if err := m.appendEvent(ctx, repo, Event{
			Type:    EventTransitionBlocked,
			From:    from,
			To:      to,
			Context: trigger,
			Reason:  ReasonInvalidTransition,
		}); err != nil {
			return Result{}, err
		}
		return res, nil
	}

	rec.State = to
	for _, opt := range opts {
		opt(&rec)
	}
	if err := m.store.Put(ctx, repo, rec); err != nil {
		return Result{}, fmt.Errorf("write state for %s: %w", repo, err)
	}

	if err := m.appendEvent(ctx, repo, Event{
		Type:    EventTransition,
		From:    from,
		To:      to,
		Context: trigger,
		Forced:  force,
	}); err != nil {
		return Result{}, err
	}

	m.logger.Debug(ctx, "transition applied",
		ports.F("repo", repo),
		ports.F("from", from.String()),
		ports.F("to", to.String()),
		ports.F("forced", force))

	res.Accepted = true
	return res, nil
}

func (m *Manager) appendEvent(ctx context.Context, repo string, ev Event) error {
	ev.ID = uuid.NewString()
	ev.Timestamp = m.now()
	if err := m.events.Append(ctx, repo, ev); err != nil {
		return fmt.Errorf("append event for %s: %w", repo, err)
	}
	return nil
}

// Events returns up to limit of the newest events for repo, oldest-first
// within that subset.
func (m *Manager) Events(ctx context.Context, repo string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}
	return m.events.List(ctx, repo, limit)
}

// ClearRepository drops the persisted state and event log for one
// repository. Refresh flows use this before re-running reconciliation.
func (m *Manager) ClearRepository(ctx context.Context, repo string) error {
	mu := m.lock(repo)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.Delete(ctx, repo); err != nil {
		return fmt.Errorf("clear state for %s: %w", repo, err)
	}
	if err := m.events.Purge(ctx, repo); err != nil {
		return fmt.Errorf("clear events for %s: %w", repo, err)
	}
	return nil
}

// Clear drops all persisted state and event logs.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear states: %w", err)
	}
	if err := m.events.PurgeAll(ctx); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	return nil
}
