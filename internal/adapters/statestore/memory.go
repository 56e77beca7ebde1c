// Package statestore provides persistence for repository lifecycle state:
// an in-memory TTL store for single-run use and tests, and a SQLite store
// for durability across runs. Both implement state.Store and state.EventLog.
package statestore

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/gitplug/gitplug/internal/domain/state"
)

// MemoryConfig configures the in-memory store.
type MemoryConfig struct {
	// StateTTL is how long state records live without being touched,
	// default 7 days. State is re-derivable from a fresh scan, so expiry
	// costs a re-check, not data loss.
	StateTTL time.Duration
	// EventTTL bounds event log retention, default state.EventRetention.
	EventTTL time.Duration
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.StateTTL <= 0 {
		c.StateTTL = 7 * 24 * time.Hour
	}
	if c.EventTTL <= 0 {
		c.EventTTL = state.EventRetention
	}
	return c
}

// Memory is a TTL-keyed in-memory store.
type Memory struct {
	cfg    MemoryConfig
	states *gocache.Cache
	events *gocache.Cache
}

// NewMemory creates an in-memory store.
func NewMemory(cfg MemoryConfig) *Memory {
	cfg = cfg.withDefaults()
	return &Memory{
		cfg:    cfg,
		states: gocache.New(cfg.StateTTL, 10*time.Minute),
		events: gocache.New(cfg.EventTTL, 10*time.Minute),
	}
}

// Get returns the record for repo.
func (m *Memory) Get(_ context.Context, repo string) (state.Record, bool, error) {
	v, ok := m.states.Get(repo)
	if !ok {
		return state.Record{}, false, nil
	}
	return v.(state.Record), true, nil
}

// Put writes the record for repo, refreshing its TTL.
func (m *Memory) Put(_ context.Context, repo string, rec state.Record) error {
	m.states.Set(repo, rec, m.cfg.StateTTL)
	return nil
}

// Delete removes the record for repo.
func (m *Memory) Delete(_ context.Context, repo string) error {
	m.states.Delete(repo)
	return nil
}

// Clear removes every record.
func (m *Memory) Clear(_ context.Context) error {
	m.states.Flush()
	return nil
}

// Append adds one event to repo's log, enforcing the cap and retention
// window on write. The stored slice is treated as immutable: readers copy
// from it without a shared lock, so compaction always builds a fresh slice
// instead of rewriting the backing array in place.
func (m *Memory) Append(_ context.Context, repo string, ev state.Event) error {
	var stored []state.Event
	if v, ok := m.events.Get(repo); ok {
		stored = v.([]state.Event)
	}

	cutoff := time.Now().Add(-state.EventRetention)
	log := make([]state.Event, 0, len(stored)+1)
	for _, e := range stored {
		if e.Timestamp.After(cutoff) {
			log = append(log, e)
		}
	}
	log = append(log, ev)
	if len(log) > state.EventCap {
		log = log[len(log)-state.EventCap:]
	}

	m.events.Set(repo, log, m.cfg.EventTTL)
	return nil
}

// List returns up to limit of the newest events for repo, oldest-first
// within that subset.
func (m *Memory) List(_ context.Context, repo string, limit int) ([]state.Event, error) {
	v, ok := m.events.Get(repo)
	if !ok {
		return nil, nil
	}
	log := v.([]state.Event)
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]state.Event, len(log))
	copy(out, log)
	return out, nil
}

// Purge removes repo's event log.
func (m *Memory) Purge(_ context.Context, repo string) error {
	m.events.Delete(repo)
	return nil
}

// PurgeAll removes every event log.
func (m *Memory) PurgeAll(_ context.Context) error {
	m.events.Flush()
	return nil
}

var (
	_ state.Store    = (*Memory)(nil)
	_ state.EventLog = (*Memory)(nil)
)
