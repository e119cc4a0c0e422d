package sim

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCapacityExceeded is matched by every *CapacityError. Capacity failures
// are expected and handled inside the coordinator that hit them.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ConfigurationError reports a scenario that cannot be simulated. It is
// raised before the first event runs and is never recovered.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigurationError.
func Configf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CapacityError reports a placement that would break a track's
// occupied + buffer <= length invariant.
type CapacityError struct {
	Track     string
	Requested float64
	Occupied  float64
	Buffer    float64
	Length    float64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("track %s: placing %.1fm with %.1fm occupied and %.1fm buffer exceeds %.1fm",
		e.Track, e.Requested, e.Occupied, e.Buffer, e.Length)
}

// Is lets errors.Is(err, ErrCapacityExceeded) match.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// InvalidTransitionError reports an illegal state change. It always means
// the simulator's own bookkeeping is wrong.
type InvalidTransitionError struct {
	Entity  string
	Current string
	Target  string
	Detail  string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition for %s: %s -> %s", e.Entity, e.Current, e.Target)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// ResourceLeakError lists assignments still open when a run finished.
type ResourceLeakError struct {
	Open []string
}

func (e *ResourceLeakError) Error() string {
	return fmt.Sprintf("%d assignment(s) never released: %s", len(e.Open), strings.Join(e.Open, ", "))
}
