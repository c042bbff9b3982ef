package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type fetchReply struct {
	text string
	err  error
}

// invoke runs one strategy under its own deadline. A transport-level success
// comes back as OutcomeValid with Text set; the gate is applied by settle.
//
// The strategy runs in its own goroutine so invoke returns at the deadline
// even when the strategy ignores ctx. The reply channel is buffered so a
// straggler can always deliver and exit.
func invoke(shared context.Context, s Strategy, target string, timeout time.Duration) Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeoutCause(shared, timeout, ErrStrategyTimeout)
	defer cancel()

	replies := make(chan fetchReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- fetchReply{err: fmt.Errorf("strategy panicked: %v", r)}
			}
		}()
		text, err := s.Fetch(ctx, target)
		replies <- fetchReply{text: text, err: err}
	}()

	var out Outcome
	select {
	case r := <-replies:
		if r.err != nil {
			out = classifyError(ctx, r.err, timeout)
		} else {
			out = Outcome{Kind: OutcomeValid, Text: r.text}
		}
	case <-ctx.Done():
		out = interrupted(ctx, timeout)
	}

	out.Strategy = s.Name()
	out.Elapsed = time.Since(start)
	return out
}

// settle invokes the strategy and applies the gate to a transport success.
func settle(shared context.Context, s Strategy, target string, timeout time.Duration, v Validator, d Describer) Outcome {
	slog.Debug("strategy starting", "strategy", s.Name(), "target", target)

	out := invoke(shared, s, target, timeout)
	if out.Kind == OutcomeValid {
		if ok, reason := check(v, d, out.Text); !ok {
			out = Outcome{
				Strategy: out.Strategy,
				Kind:     OutcomeInvalid,
				Reason:   reason,
				Err:      fmt.Errorf("%w: %s", ErrStrategyValidation, reason),
				Elapsed:  out.Elapsed,
			}
		}
	}

	slog.Debug("strategy settled",
		"strategy", out.Strategy,
		"outcome", out.Kind.String(),
		"reason", out.Reason,
		"elapsed", out.Elapsed,
	)
	return out
}

// classifyError maps a strategy error to Failed or Cancelled. An error
// returned after our own deadline or a sibling win is reported the same way
// as if we had stopped waiting first.
func classifyError(ctx context.Context, err error, timeout time.Duration) Outcome {
	if ctx.Err() != nil {
		return interrupted(ctx, timeout)
	}
	if errors.Is(err, context.Canceled) {
		return Outcome{
			Kind:   OutcomeCancelled,
			Reason: "cancelled",
			Err:    err,
		}
	}
	return Outcome{
		Kind:   OutcomeFailed,
		Reason: err.Error(),
		Err:    fmt.Errorf("%w: %w", ErrStrategyTransport, err),
	}
}

func interrupted(ctx context.Context, timeout time.Duration) Outcome {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrStrategyTimeout) {
		return Outcome{
			Kind:   OutcomeFailed,
			Reason: fmt.Sprintf("timeout after %s", timeout),
			Err:    fmt.Errorf("%w after %s", ErrStrategyTimeout, timeout),
		}
	}
	reason := "cancelled"
	if cause != nil {
		reason = "cancelled: " + cause.Error()
	}
	return Outcome{
		Kind:   OutcomeCancelled,
		Reason: reason,
		Err:    fmt.Errorf("%w: %w", context.Canceled, cause),
	}
}
