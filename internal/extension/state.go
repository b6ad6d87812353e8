package extension

// State represents the progress of a single load request.
type State int

// Load states, in the only order they may be entered.
const (
	// StateUnstarted - the request exists but nothing has run yet.
	StateUnstarted State = iota

	// StateConfigMerging - the module configuration manifest is being merged.
	StateConfigMerging

	// StateModuleFetching - the main module is being resolved and executed.
	StateModuleFetching

	// StateInitializing - the init hook is running under the time budget.
	StateInitializing

	// StateReady - the extension loaded and initialized successfully.
	StateReady

	// StateFailed - the load failed; a diagnostic has been reported.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateConfigMerging:
		return "config-merging"
	case StateModuleFetching:
		return "module-fetching"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Ready and Failed.
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

// canAdvance reports whether a request may move from s to next.
// Transitions only move forward; Ready requires a fetched module.
func (s State) canAdvance(next State) bool {
	if s.IsTerminal() || next <= s || next > StateFailed {
		return false
	}
	if next == StateReady {
		return s == StateModuleFetching || s == StateInitializing
	}
	return true
}
