package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Strategy-level errors only ever reach the caller inside a
// *RaceFailure; ErrConfiguration is returned before any strategy starts.
var (
	ErrConfiguration       = errors.New("engine: invalid configuration")
	ErrStrategyTransport   = errors.New("strategy transport error")
	ErrStrategyValidation  = errors.New("strategy validation error")
	ErrStrategyTimeout     = errors.New("strategy timeout")
	ErrOverallTimeout      = errors.New("overall timeout")
	ErrExternallyCancelled = errors.New("externally cancelled")
	ErrAllFailed           = errors.New("all strategies failed")

	// errRaceWon is the cancellation cause handed to losing strategies.
	errRaceWon = errors.New("another strategy won the race")

	// errRaceDone releases anything still attached once Race returns.
	errRaceDone = errors.New("race finished")
)

// FailureCause classifies why a race produced no winner.
type FailureCause string

const (
	CauseAllFailed           FailureCause = "all-failed"
	CauseOverallTimeout      FailureCause = "overall-timeout"
	CauseExternallyCancelled FailureCause = "externally-cancelled"
)

// sentinel maps a cause to the error matched by errors.Is.
func (c FailureCause) sentinel() error {
	switch c {
	case CauseOverallTimeout:
		return ErrOverallTimeout
	case CauseExternallyCancelled:
		return ErrExternallyCancelled
	default:
		return ErrAllFailed
	}
}

// Reason is one strategy's diagnostic inside a RaceFailure.
type Reason struct {
	Strategy string
	Kind     OutcomeKind
	Reason   string
}

// RaceFailure is returned when no strategy produced a valid document.
type RaceFailure struct {
	Target  string
	Cause   FailureCause
	Reasons []Reason

	// Err carries the caller's cancellation cause, if any.
	Err error
}

func (f *RaceFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "race for %s failed (%s)", f.Target, f.Cause)
	if len(f.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(joinReasons(f.Reasons))
	}
	return b.String()
}

// Is matches the sentinel for the failure cause.
func (f *RaceFailure) Is(target error) bool {
	return target == f.Cause.sentinel()
}

func (f *RaceFailure) Unwrap() error { return f.Err }

// Message is the aggregated per-strategy diagnostic.
func (f *RaceFailure) Message() string { return joinReasons(f.Reasons) }
