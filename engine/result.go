package engine

import "time"

// OutcomeKind is the terminal state of one strategy within a race.
type OutcomeKind int

const (
	OutcomeValid OutcomeKind = iota + 1
	OutcomeInvalid
	OutcomeFailed
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Outcome is produced exactly once per strategy and never mutated.
type Outcome struct {
	Strategy string
	Kind     OutcomeKind

	// Text is set only for OutcomeValid.
	Text string

	// Reason is the human-readable diagnostic for non-valid outcomes.
	Reason string

	// Err wraps one of ErrStrategyTransport, ErrStrategyValidation,
	// ErrStrategyTimeout or context.Canceled.
	Err error

	Elapsed time.Duration
}

// RaceResult is the winning strategy's document.
type RaceResult struct {
	Strategy string
	Text     string

	// Elapsed is measured from race start to winner declaration.
	Elapsed time.Duration

	// Outcomes lists the losing outcomes recorded before the win.
	Outcomes []Outcome
}

// RaceConfig bounds a race. Zero values fall back to defaults.
type RaceConfig struct {
	PerStrategyTimeout time.Duration
	OverallTimeout     time.Duration

	// Describe explains rejected text in diagnostics. Optional.
	Describe Describer
}

const (
	DefaultPerStrategyTimeout = 8 * time.Second
	DefaultOverallTimeout     = 20 * time.Second

	// MinPerStrategyTimeout is the floor applied to PerStrategyTimeout.
	MinPerStrategyTimeout = 50 * time.Millisecond
)

// clamp raises misconfigured timeouts to usable values.
func (c RaceConfig) clamp() RaceConfig {
	if c.PerStrategyTimeout <= 0 {
		c.PerStrategyTimeout = DefaultPerStrategyTimeout
	}
	if c.PerStrategyTimeout < MinPerStrategyTimeout {
		c.PerStrategyTimeout = MinPerStrategyTimeout
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = DefaultOverallTimeout
	}
	if c.OverallTimeout < c.PerStrategyTimeout {
		c.OverallTimeout = c.PerStrategyTimeout
	}
	return c
}
