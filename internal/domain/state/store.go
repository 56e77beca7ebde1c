package state

import "context"

// Record is the persisted association between a repository and its state.
// It is owned exclusively by the Manager and mutated only through
// Transition (or SetState for initialization).
type Record struct {
	// State is the current lifecycle state.
	State PluginState `json:"state"`
	// PluginFile is the detected or installed entry file path, if known.
	PluginFile string `json:"plugin_file,omitempty"`
	// Metadata carries descriptive plugin facts (name, version).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store persists one Record per repository full name. Absence of a record
// is a normal condition, not an error: state for an unseen repository is
// StateUnknown by definition.
type Store interface {
	// Get returns the record for repo. The second return value is false
	// when no record exists.
	Get(ctx context.Context, repo string) (Record, bool, error)

	// Put writes the record for repo, replacing any existing one.
	Put(ctx context.Context, repo string, rec Record) error

	// Delete removes the record for repo, if present.
	Delete(ctx context.Context, repo string) error

	// Clear removes every record.
	Clear(ctx context.Context) error
}

// EventLog persists the capped per-repository transition log. The cap
// (EventCap) and retention window (EventRetention) are enforced by the
// implementation on write.
type EventLog interface {
	// Append adds one event to repo's log, evicting the oldest entries
	// once the cap is exceeded.
	Append(ctx context.Context, repo string, ev Event) error

	// List returns up to limit of the newest events for repo, ordered
	// oldest-first within that subset.
	List(ctx context.Context, repo string, limit int) ([]Event, error)

	// Purge removes repo's log.
	Purge(ctx context.Context, repo string) error

	// PurgeAll removes every log.
	PurgeAll(ctx context.Context) error
}
