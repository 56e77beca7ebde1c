package state

import "time"

// Event types recorded in the per-repository transition log.
const (
	// EventTransition records an accepted state change.
	EventTransition = "transition"
	// EventTransitionBlocked records an attempted change outside the
	// allowed table. The state is left untouched.
	EventTransitionBlocked = "transition_blocked"
)

// ReasonInvalidTransition is the reason attached to blocked events.
const ReasonInvalidTransition = "invalid_transition"

// Event log bounds. The log is a best-effort diagnostic trail, not durable
// storage: once the cap is exceeded the oldest entries are dropped first,
// and entries older than the retention window may be pruned at any time.
const (
	// EventCap is the maximum number of retained events per repository.
	EventCap = 30
	// EventRetention bounds how long events are kept.
	EventRetention = 24 * time.Hour
)

// Event is one append-only entry in a repository's transition log.
type Event struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`
	// Type is EventTransition or EventTransitionBlocked.
	Type string `json:"type"`
	// From and To are the states involved in the (attempted) change.
	From PluginState `json:"from"`
	To   PluginState `json:"to"`
	// Context carries free-form key/value pairs describing the trigger.
	Context map[string]string `json:"context,omitempty"`
	// Reason is set on blocked events.
	Reason string `json:"reason,omitempty"`
	// Forced marks transitions applied with the force flag.
	Forced bool `json:"forced,omitempty"`
	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
}
