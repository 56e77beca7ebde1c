package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/gitplug/gitplug/internal/domain/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS plugin_states (
	repo        TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	plugin_file TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS state_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	repo       TEXT NOT NULL,
	type       TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	context    TEXT NOT NULL DEFAULT '{}',
	reason     TEXT NOT NULL DEFAULT '',
	forced     INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_events_repo ON state_events(repo, seq);
`

// SQLite persists state records and event logs in a single database file,
// surviving process restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the record for repo.
func (s *SQLite) Get(ctx context.Context, repo string) (state.Record, bool, error) {
	var (
		rec  state.Record
		raw  string
		meta string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, plugin_file, metadata FROM plugin_states WHERE repo = ?`, repo,
	).Scan(&raw, &rec.PluginFile, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Record{}, false, nil
	}
	if err != nil {
		return state.Record{}, false, fmt.Errorf("query state: %w", err)
	}

	st, err := state.Parse(raw)
	if err != nil {
		return state.Record{}, false, fmt.Errorf("corrupt state row for %s: %w", repo, err)
	}
	rec.State = st

	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return state.Record{}, false, fmt.Errorf("corrupt metadata for %s: %w", repo, err)
		}
	}
	return rec, true, nil
}

// Put writes the record for repo.
func (s *SQLite) Put(ctx context.Context, repo string, rec state.Record) error {
	meta := "{}"
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_states (repo, state, plugin_file, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			state = excluded.state,
			plugin_file = excluded.plugin_file,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		repo, rec.State.String(), rec.PluginFile, meta, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Delete removes the record for repo.
func (s *SQLite) Delete(ctx context.Context, repo string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugin_states WHERE repo = ?`, repo); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Clear removes every record.
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugin_states`); err != nil {
		return fmt.Errorf("clear states: %w", err)
	}
	return nil
}

// Append adds one event to repo's log and prunes beyond the cap and
// retention window.
func (s *SQLite) Append(ctx context.Context, repo string, ev state.Event) error {
	ctxJSON := "{}"
	if len(ev.Context) > 0 {
		data, err := json.Marshal(ev.Context)
		if err != nil {
			return fmt.Errorf("encode event context: %w", err)
		}
		ctxJSON = string(data)
	}

	forced := 0
	if ev.Forced {
		forced = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_events (id, repo, type, from_state, to_state, context, reason, forced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, repo, ev.Type, ev.From.String(), ev.To.String(), ctxJSON, ev.Reason, forced, ev.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	cutoff := time.Now().Add(-state.EventRetention).UnixNano()
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM state_events
		WHERE repo = ? AND (created_at < ? OR seq NOT IN (
			SELECT seq FROM state_events WHERE repo = ? ORDER BY seq DESC LIMIT ?
		))`,
		repo, cutoff, repo, state.EventCap)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}

// List returns up to limit of the newest events for repo, oldest-first
// within that subset.
func (s *SQLite) List(ctx context.Context, repo string, limit int) ([]state.Event, error) {
	if limit <= 0 {
		limit = state.EventCap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, from_state, to_state, context, reason, forced, created_at
		FROM state_events WHERE repo = ? ORDER BY seq DESC LIMIT ?`,
		repo, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []state.Event
	for rows.Next() {
		var (
			ev      state.Event
			from    string
			to      string
			ctxJSON string
			forced  int
			nanos   int64
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &from, &to, &ctxJSON, &ev.Reason, &forced, &nanos); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.From = state.PluginState(from)
		ev.To = state.PluginState(to)
		ev.Forced = forced != 0
		ev.Timestamp = time.Unix(0, nanos)
		if ctxJSON != "" && ctxJSON != "{}" {
			if err := json.Unmarshal([]byte(ctxJSON), &ev.Context); err != nil {
				return nil, fmt.Errorf("corrupt event context: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// Reverse into oldest-first order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Purge removes repo's event log.
func (s *SQLite) Purge(ctx context.Context, repo string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state_events WHERE repo = ?`, repo); err != nil {
		return fmt.Errorf("purge events: %w", err)
	}
	return nil
}

// PurgeAll removes every event log.
func (s *SQLite) PurgeAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state_events`); err != nil {
		return fmt.Errorf("purge events: %w", err)
	}
	return nil
}

var (
	_ state.Store    = (*SQLite)(nil)
	_ state.EventLog = (*SQLite)(nil)
)
