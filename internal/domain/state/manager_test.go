package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitplug/gitplug/internal/adapters/logging"
)

// memStore is an in-memory Store for manager tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]Record
	fail    error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]Record)}
}

func (s *memStore) Get(_ context.Context, repo string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return Record{}, false, s.fail
	}
	rec, ok := s.records[repo]
	return rec, ok, nil
}

func (s *memStore) Put(_ context.Context, repo string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records[repo] = rec
	return nil
}

func (s *memStore) Delete(_ context.Context, repo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, repo)
	return nil
}

func (s *memStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

// memEvents is an in-memory EventLog enforcing the cap, mirroring what the
// real adapters do.
type memEvents struct {
	mu   sync.Mutex
	logs map[string][]Event
}

func newMemEvents() *memEvents {
	return &memEvents{logs: make(map[string][]Event)}
}

func (e *memEvents) Append(_ context.Context, repo string, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := append(e.logs[repo], ev)
	if len(log) > EventCap {
		log = log[len(log)-EventCap:]
	}
	e.logs[repo] = log
	return nil
}

func (e *memEvents) List(_ context.Context, repo string, limit int) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := e.logs[repo]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]Event, len(log))
	copy(out, log)
	return out, nil
}

func (e *memEvents) Purge(_ context.Context, repo string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.logs, repo)
	return nil
}

func (e *memEvents) PurgeAll(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logs = make(map[string][]Event)
	return nil
}

func newTestManager() (*Manager, *memStore, *memEvents) {
	store := newMemStore()
	events := newMemEvents()
	return NewManager(store, events, logging.NewNopLogger()), store, events
}

func TestManager_State_UnseenIsUnknown(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	st, err := m.State(context.Background(), "acme/never-seen")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, st)
}

func TestManager_BatchStates(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.SetState(ctx, "acme/a", StateAvailable, nil))

	states, err := m.BatchStates(ctx, []string{"acme/a", "acme/b"})
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, states["acme/a"])
	assert.Equal(t, StateUnknown, states["acme/b"])
}

func TestManager_Transition_Accepted(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()

	res, err := m.Transition(ctx, "acme/a", StateChecking, map[string]string{"trigger": "scan"}, false)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, StateUnknown, res.From)
	assert.Equal(t, StateChecking, res.To)

	st, err := m.State(ctx, "acme/a")
	require.NoError(t, err)
	assert.Equal(t, StateChecking, st)

	events, err := m.Events(ctx, "acme/a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTransition, events[0].Type)
	assert.Equal(t, "scan", events[0].Context["trigger"])
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestManager_Transition_BlockedLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()

	// unknown -> installed_active is not in the table.
	res, err := m.Transition(ctx, "acme/a", StateInstalledActive, nil, false)
	require.NoError(t, err)
	assert.False(t, res.Accepted)

	st, err := m.State(ctx, "acme/a")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, st)

	events, err := m.Events(ctx, "acme/a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTransitionBlocked, events[0].Type)
	assert.Equal(t, ReasonInvalidTransition, events[0].Reason)
}

func TestManager_Transition_TableEnforcement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, from := range All() {
		for _, to := range All() {
			m, _, _ := newTestManager()
			require.NoError(t, m.SetState(ctx, "acme/a", from, nil))

			res, err := m.Transition(ctx, "acme/a", to, nil, false)
			require.NoError(t, err)

			st, err := m.State(ctx, "acme/a")
			require.NoError(t, err)

			if CanTransition(from, to) {
				assert.True(t, res.Accepted, "%s -> %s", from, to)
				assert.Equal(t, to, st)
			} else {
				assert.False(t, res.Accepted, "%s -> %s", from, to)
				assert.Equal(t, from, st)

				events, err := m.Events(ctx, "acme/a", 100)
				require.NoError(t, err)
				require.Len(t, events, 1)
				assert.Equal(t, EventTransitionBlocked, events[0].Type)
			}
		}
	}
}

func TestManager_Transition_Force(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.SetState(ctx, "acme/a", StateNotPlugin, nil))

	// Refresh may need to reset regardless of prior state.
	res, err := m.Transition(ctx, "acme/a", StateChecking, map[string]string{"trigger": "refresh"}, true)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Forced)

	st, err := m.State(ctx, "acme/a")
	require.NoError(t, err)
	assert.Equal(t, StateChecking, st)

	events, err := m.Events(ctx, "acme/a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Forced)
}

func TestManager_Transition_Idempotence(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.SetState(ctx, "acme/a", StateChecking, nil))

	first, err := m.Transition(ctx, "acme/a", StateAvailable, nil, false)
	require.NoError(t, err)
	second, err := m.Transition(ctx, "acme/a", StateAvailable, nil, false)
	require.NoError(t, err)

	assert.True(t, first.Accepted)
	assert.False(t, second.Accepted) // available -> available is not in the table

	st, err := m.State(ctx, "acme/a")
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, st)

	events, err := m.Events(ctx, "acme/a", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestManager_EventCap(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()

	// Bounce between two installed states well past the cap.
	require.NoError(t, m.SetState(ctx, "acme/a", StateInstalledInactive, nil))
	for i := 0; i < 25; i++ {
		_, err := m.Transition(ctx, "acme/a", StateInstalledActive, nil, false)
		require.NoError(t, err)
		_, err = m.Transition(ctx, "acme/a", StateInstalledInactive, nil, false)
		require.NoError(t, err)
	}

	events, err := m.Events(ctx, "acme/a", 100)
	require.NoError(t, err)
	assert.Len(t, events, EventCap)

	// The retained entries are the most recent: the final transition ends
	// on installed_inactive.
	last := events[len(events)-1]
	assert.Equal(t, StateInstalledInactive, last.To)
}

func TestManager_Transition_MetadataAndPluginFile(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.SetState(ctx, "acme/a", StateChecking, nil))

	_, err := m.Transition(ctx, "acme/a", StateAvailable, nil, false,
		WithPluginFile("event-manager/event-manager.php"),
		WithMetadata(map[string]string{"name": "Event Manager", "version": "1.2.0"}))
	require.NoError(t, err)

	assert.Equal(t, "event-manager/event-manager.php", m.PluginFile(ctx, "acme/a"))

	rec, ok, err := m.Record(ctx, "acme/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Event Manager", rec.Metadata["name"])
}

func TestManager_Transition_StoreFailureIsError(t *testing.T) {
	t.Parallel()

	m, store, _ := newTestManager()
	store.fail = errors.New("persistence unavailable")

	_, err := m.Transition(context.Background(), "acme/a", StateChecking, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence unavailable")
}

func TestManager_Transition_InvalidTargetState(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	_, err := m.Transition(context.Background(), "acme/a", PluginState("bogus"), nil, false)
	require.Error(t, err)
}

func TestManager_ClearRepository(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()
	_, err := m.Transition(ctx, "acme/a", StateChecking, nil, false)
	require.NoError(t, err)

	require.NoError(t, m.ClearRepository(ctx, "acme/a"))

	st, err := m.State(ctx, "acme/a")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, st)

	events, err := m.Events(ctx, "acme/a", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestManager_ConcurrentTransitionsSameKey(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	ctx := context.Background()
	require.NoError(t, m.SetState(ctx, "acme/a", StateInstalledInactive, nil))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Transition(ctx, "acme/a", StateInstalledActive, nil, false)
			_, _ = m.Transition(ctx, "acme/a", StateInstalledInactive, nil, false)
		}()
	}
	wg.Wait()

	st, err := m.State(ctx, "acme/a")
	require.NoError(t, err)
	assert.True(t, st == StateInstalledActive || st == StateInstalledInactive)
}

func TestManager_EventTimestamps(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	ctx := context.Background()
	_, err := m.Transition(ctx, "acme/a", StateChecking, nil, false)
	require.NoError(t, err)

	events, err := m.Events(ctx, "acme/a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}
