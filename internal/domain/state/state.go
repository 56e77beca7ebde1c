// Package state owns the plugin lifecycle state machine: the closed set of
// states, the allowed-transition table and the Manager that guards every
// state mutation behind a validated, logged transition function.
package state

import "fmt"

// PluginState represents the lifecycle stage of a repository with respect
// to installation.
type PluginState string

const (
	// StateUnknown means the repository has never been examined.
	StateUnknown PluginState = "unknown"
	// StateChecking means detection is in flight.
	StateChecking PluginState = "checking"
	// StateAvailable means the repository is a plugin and not yet installed.
	StateAvailable PluginState = "available"
	// StateNotPlugin means the repository is not an installable plugin.
	StateNotPlugin PluginState = "not_plugin"
	// StateInstalledInactive means the plugin is installed but not active.
	StateInstalledInactive PluginState = "installed_inactive"
	// StateInstalledActive means the plugin is installed and active.
	StateInstalledActive PluginState = "installed_active"
	// StateError means the last examination failed for infrastructure reasons.
	StateError PluginState = "error"
)

// All lists every valid state, in lifecycle order.
func All() []PluginState {
	return []PluginState{
		StateUnknown,
		StateChecking,
		StateAvailable,
		StateNotPlugin,
		StateInstalledInactive,
		StateInstalledActive,
		StateError,
	}
}

// Valid reports whether s is one of the seven defined states.
func (s PluginState) Valid() bool {
	switch s {
	case StateUnknown, StateChecking, StateAvailable, StateNotPlugin,
		StateInstalledInactive, StateInstalledActive, StateError:
		return true
	default:
		return false
	}
}

// Installed reports whether s is one of the two installed states.
func (s PluginState) Installed() bool {
	return s == StateInstalledInactive || s == StateInstalledActive
}

// String returns the wire form of the state.
func (s PluginState) String() string {
	return string(s)
}

// Parse converts a stored string into a PluginState, failing on values
// outside the closed set.
func Parse(raw string) (PluginState, error) {
	s := PluginState(raw)
	if !s.Valid() {
		return StateUnknown, fmt.Errorf("unknown plugin state %q", raw)
	}
	return s, nil
}
