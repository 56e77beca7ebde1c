package state

// allowedTransitions is the full transition table. Any pair not listed here
// is disallowed; force is the only way around it. NotPlugin is terminal for
// normal flows: a repository that stopped being "not a plugin" only comes
// back through a forced refresh.
var allowedTransitions = map[PluginState][]PluginState{
	StateUnknown:  {StateChecking},
	StateChecking: {StateAvailable, StateNotPlugin, StateInstalledInactive, StateInstalledActive, StateError},
	StateAvailable: {
		StateInstalledInactive, // post-install
		StateChecking,          // re-scan
	},
	StateInstalledInactive: {
		StateInstalledActive, // activate
		StateChecking,        // refresh
	},
	StateInstalledActive: {
		StateInstalledInactive, // deactivate
		StateChecking,
	},
	StateError:     {StateChecking}, // retry
	StateNotPlugin: {},
}

// CanTransition reports whether the table allows moving from one state to
// another.
func CanTransition(from, to PluginState) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the set of states reachable from the given state.
func AllowedFrom(from PluginState) []PluginState {
	allowed := allowedTransitions[from]
	out := make([]PluginState, len(allowed))
	copy(out, allowed)
	return out
}
