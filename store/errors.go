package store

import "fmt"

// ConfigError reports a construction-time problem with the backend
// descriptor itself: an unknown kind, a missing required field, or a
// malformed option such as an invalid SQL identifier. Never retryable.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "store: invalid config: " + e.Reason
	}
	return fmt.Sprintf("store: invalid config: %s: %s", e.Field, e.Reason)
}

// EnvError reports that the descriptor is well-formed but the environment
// cannot satisfy it: a missing or unwritable path, an unreachable service.
// Fatal at construction.
type EnvError struct {
	Target string
	Reason string
	Err    error
}

func (e *EnvError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: environment check failed for %s: %s: %v", e.Target, e.Reason, e.Err)
	}
	return fmt.Sprintf("store: environment check failed for %s: %s", e.Target, e.Reason)
}

func (e *EnvError) Unwrap() error { return e.Err }
