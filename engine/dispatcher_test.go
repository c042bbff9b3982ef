package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTarget = "https://example.com/sitemap.xml"

// after returns a strategy that settles with text/err after d unless ctx ends first.
func after(name string, d time.Duration, text string, err error) Strategy {
	return StrategyFunc{ID: name, Fn: func(ctx context.Context, _ string) (string, error) {
		select {
		case <-time.After(d):
			return text, err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
}

// never returns a strategy that only settles when cancelled.
func never(name string) Strategy {
	return StrategyFunc{ID: name, Fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func isOK(text string) bool { return strings.HasPrefix(text, "ok") }

func raceFailure(t *testing.T, err error) *RaceFailure {
	t.Helper()
	var f *RaceFailure
	require.ErrorAs(t, err, &f)
	return f
}

func TestRace_FirstValidWins(t *testing.T) {
	strategies := []Strategy{
		after("a", 0, "", errors.New("403")),
		after("b", 50*time.Millisecond, "<html>blocked</html>", nil),
		after("c", 200*time.Millisecond, "ok: document", nil),
	}

	start := time.Now()
	res, err := Race(context.Background(), testTarget, strategies, isOK, RaceConfig{
		PerStrategyTimeout: time.Second,
		OverallTimeout:     2 * time.Second,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "c", res.Strategy)
	assert.Equal(t, "ok: document", res.Text)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "a", res.Outcomes[0].Strategy)
	assert.Equal(t, OutcomeFailed, res.Outcomes[0].Kind)
	assert.Equal(t, "403", res.Outcomes[0].Reason)
	assert.ErrorIs(t, res.Outcomes[0].Err, ErrStrategyTransport)
	assert.Equal(t, "b", res.Outcomes[1].Strategy)
	assert.Equal(t, OutcomeInvalid, res.Outcomes[1].Kind)
	assert.ErrorIs(t, res.Outcomes[1].Err, ErrStrategyValidation)
}

func TestRace_InvalidDoesNotEndRace(t *testing.T) {
	res, err := Race(context.Background(), testTarget, []Strategy{
		after("fast-invalid", 0, "nope", nil),
		after("slow-valid", 80*time.Millisecond, "ok", nil),
	}, isOK, RaceConfig{PerStrategyTimeout: time.Second})

	require.NoError(t, err)
	assert.Equal(t, "slow-valid", res.Strategy)
}

func TestRace_PerStrategyTimeouts(t *testing.T) {
	start := time.Now()
	_, err := Race(context.Background(), testTarget, []Strategy{never("a"), never("b")}, isOK, RaceConfig{
		PerStrategyTimeout: 100 * time.Millisecond,
		OverallTimeout:     2 * time.Second,
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "per-strategy timeouts end the race long before the overall deadline")

	f := raceFailure(t, err)
	assert.Equal(t, CauseAllFailed, f.Cause)
	require.Len(t, f.Reasons, 2)
	for _, r := range f.Reasons {
		assert.Equal(t, OutcomeFailed, r.Kind)
		assert.Equal(t, "timeout after 100ms", r.Reason)
	}
}

func TestRace_TimeoutWhenStrategyIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubborn := StrategyFunc{ID: "stubborn", Fn: func(context.Context, string) (string, error) {
		<-release
		return "ok", nil
	}}

	start := time.Now()
	_, err := Race(context.Background(), testTarget, []Strategy{stubborn}, isOK, RaceConfig{
		PerStrategyTimeout: 60 * time.Millisecond,
		OverallTimeout:     time.Second,
	})

	assert.ErrorIs(t, err, ErrAllFailed)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, err.Error(), "stubborn: timeout after 60ms")
}

func TestRace_AllInvalidNamesEveryStrategy(t *testing.T) {
	_, err := Race(context.Background(), testTarget, []Strategy{
		after("direct", 0, "<html>", nil),
		after("relay", 10*time.Millisecond, "", nil),
		after("render", 20*time.Millisecond, "garbage", nil),
	}, isOK, RaceConfig{Describe: func(text string) string {
		if text == "" {
			return "empty response"
		}
		return "unexpected HTML page"
	}})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.NotErrorIs(t, err, ErrOverallTimeout)
	for _, name := range []string{"direct", "relay", "render"} {
		assert.Contains(t, err.Error(), name)
	}
	assert.Contains(t, err.Error(), "relay: empty response")

	f := raceFailure(t, err)
	assert.Equal(t, testTarget, f.Target)
	assert.Equal(t, "direct: unexpected HTML page | relay: empty response | render: unexpected HTML page", f.Message())
}

func TestRace_LosersAreCancelledOnWin(t *testing.T) {
	loserCtx := make(chan context.Context, 1)
	loser := StrategyFunc{ID: "loser", Fn: func(ctx context.Context, _ string) (string, error) {
		loserCtx <- ctx
		<-ctx.Done()
		return "", ctx.Err()
	}}

	res, err := Race(context.Background(), testTarget, []Strategy{
		loser,
		after("winner", 20*time.Millisecond, "ok", nil),
	}, isOK, RaceConfig{PerStrategyTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "winner", res.Strategy)

	ctx := <-loserCtx
	// The signal is delivered before Race returns.
	require.Error(t, ctx.Err())
	assert.ErrorIs(t, context.Cause(ctx), errRaceWon)
}

func TestRace_WinnerIsNotExternalCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Race(parent, testTarget, []Strategy{after("a", 0, "ok", nil)}, isOK, RaceConfig{})
	require.NoError(t, err)
	assert.NoError(t, parent.Err(), "the caller's context is never cancelled by the race")
}

func TestRace_ExternalCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := Race(ctx, testTarget, []Strategy{never("a"), never("b")}, isOK, RaceConfig{
		PerStrategyTimeout: 2 * time.Second,
		OverallTimeout:     5 * time.Second,
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, ErrExternallyCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	f := raceFailure(t, err)
	assert.Equal(t, CauseExternallyCancelled, f.Cause)
	assert.Contains(t, f.Message(), "a: ")
	assert.Contains(t, f.Message(), "b: ")
}

func TestRace_ExternalCancellationKeepsCause(t *testing.T) {
	shutdown := errors.New("server shutting down")
	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(20*time.Millisecond, func() { cancel(shutdown) })

	_, err := Race(ctx, testTarget, []Strategy{never("a")}, isOK, RaceConfig{})
	assert.ErrorIs(t, err, ErrExternallyCancelled)
	assert.ErrorIs(t, err, shutdown)
}

func TestRace_ValidResultAfterCallerCancelled(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		s := StrategyFunc{ID: "a", Fn: func(context.Context, string) (string, error) {
			cancel()
			return "ok late", nil
		}}

		res, err := Race(ctx, testTarget, []Strategy{s, never("b")}, isOK, RaceConfig{})
		require.Nil(t, res, "a result arriving after the caller cancelled never wins")
		assert.ErrorIs(t, err, ErrExternallyCancelled)
		assert.Equal(t, CauseExternallyCancelled, raceFailure(t, err).Cause)
	}
}

func TestRaceState_DiscardAfterCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	link := Link(ctx)

	r := &raceState{target: testTarget, set: StrategySet{never("a"), never("b")}}
	r.discard(Outcome{Strategy: "a", Kind: OutcomeValid, Text: "ok"})
	f := r.callerCancelled(ctx, link)

	assert.Equal(t, CauseExternallyCancelled, f.Cause)
	assert.ErrorIs(t, f, context.Canceled)
	require.Len(t, f.Reasons, 2)
	assert.Equal(t, Reason{Strategy: "a", Kind: OutcomeCancelled, Reason: "result discarded: caller cancelled"}, f.Reasons[0])
	assert.Equal(t, "still running when caller cancelled", f.Reasons[1].Reason)
	assert.ErrorIs(t, link.Cause(), ErrExternallyCancelled)
}

func TestRaceState_DeadlineYieldsToCallerCancellation(t *testing.T) {
	set := StrategySet{never("a")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &raceState{target: testTarget, set: set}
	f := r.deadline(ctx, Link(ctx), time.Second)
	assert.Equal(t, CauseExternallyCancelled, f.Cause, "a pending caller cancellation outranks the overall deadline")

	live := context.Background()
	link := Link(live)
	r = &raceState{target: testTarget, set: set}
	f = r.deadline(live, link, time.Second)
	assert.Equal(t, CauseOverallTimeout, f.Cause)
	assert.Equal(t, "a: still running at overall deadline (1s)", f.Message())
	assert.ErrorIs(t, link.Cause(), ErrOverallTimeout)
}

func TestRace_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s := StrategyFunc{ID: "a", Fn: func(context.Context, string) (string, error) {
		calls.Add(1)
		return "ok", nil
	}}

	_, err := Race(ctx, testTarget, []Strategy{s}, isOK, RaceConfig{})
	assert.ErrorIs(t, err, ErrExternallyCancelled)
	assert.Zero(t, calls.Load(), "no strategy starts after the caller cancelled")
	assert.Contains(t, err.Error(), "a: cancelled before start")
}

func TestRace_OverallTimeout(t *testing.T) {
	slowGate := func(text string) bool {
		time.Sleep(400 * time.Millisecond)
		return false
	}

	start := time.Now()
	_, err := Race(context.Background(), testTarget, []Strategy{after("a", 0, "x", nil)}, slowGate, RaceConfig{
		PerStrategyTimeout: 100 * time.Millisecond,
		OverallTimeout:     150 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 350*time.Millisecond)
	assert.ErrorIs(t, err, ErrOverallTimeout)
	assert.NotErrorIs(t, err, ErrAllFailed)
	assert.Contains(t, err.Error(), "a: still running at overall deadline (150ms)")
}

func TestRace_ConfigurationErrors(t *testing.T) {
	ok := after("a", 0, "ok", nil)
	tests := []struct {
		name       string
		target     string
		strategies []Strategy
		validate   Validator
	}{
		{"empty target", "  ", []Strategy{ok}, isOK},
		{"nil validator", testTarget, []Strategy{ok}, nil},
		{"no strategies", testTarget, nil, isOK},
		{"nil strategy", testTarget, []Strategy{ok, nil}, isOK},
		{"empty name", testTarget, []Strategy{after("", 0, "ok", nil)}, isOK},
		{"duplicate name", testTarget, []Strategy{ok, after("a", 0, "ok", nil)}, isOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Race(context.Background(), tt.target, tt.strategies, tt.validate, RaceConfig{})
			assert.ErrorIs(t, err, ErrConfiguration)
			var f *RaceFailure
			assert.False(t, errors.As(err, &f))
		})
	}
}

func TestRace_PanickingValidatorIsInvalid(t *testing.T) {
	boom := func(string) bool { panic("boom") }

	_, err := Race(context.Background(), testTarget, []Strategy{after("a", 0, "ok", nil)}, boom, RaceConfig{})
	assert.ErrorIs(t, err, ErrAllFailed)
	f := raceFailure(t, err)
	require.Len(t, f.Reasons, 1)
	assert.Equal(t, OutcomeInvalid, f.Reasons[0].Kind)
	assert.Contains(t, f.Reasons[0].Reason, "validator panicked: boom")
}

func TestRace_PanickingStrategyIsFailed(t *testing.T) {
	bad := StrategyFunc{ID: "bad", Fn: func(context.Context, string) (string, error) {
		panic("nil map")
	}}

	res, err := Race(context.Background(), testTarget, []Strategy{bad, after("good", 30*time.Millisecond, "ok", nil)}, isOK, RaceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "good", res.Strategy)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeFailed, res.Outcomes[0].Kind)
	assert.Contains(t, res.Outcomes[0].Reason, "strategy panicked")
}

func TestRace_StrategyReportingCancellation(t *testing.T) {
	s := StrategyFunc{ID: "a", Fn: func(context.Context, string) (string, error) {
		return "", context.Canceled
	}}

	_, err := Race(context.Background(), testTarget, []Strategy{s}, isOK, RaceConfig{})
	f := raceFailure(t, err)
	assert.Equal(t, CauseAllFailed, f.Cause)
	assert.Equal(t, OutcomeCancelled, f.Reasons[0].Kind)
}

func TestRace_SimultaneousWinners(t *testing.T) {
	res, err := Race(context.Background(), testTarget, []Strategy{
		after("a", 0, "ok-a", nil),
		after("b", 0, "ok-b", nil),
	}, isOK, RaceConfig{})

	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b"}, res.Strategy)
	assert.Equal(t, "ok-"+res.Strategy, res.Text)
}

func TestDispatcher_DefaultsAndMemory(t *testing.T) {
	mem := NewDomainMemory(time.Minute, time.Minute)
	defer mem.Stop()

	d, err := NewDispatcher([]Strategy{
		never("slow"),
		after("fast", 10*time.Millisecond, "ok", nil),
	}, RaceConfig{PerStrategyTimeout: 80 * time.Millisecond}, mem)
	require.NoError(t, err)
	assert.Equal(t, []string{"slow", "fast"}, d.Strategies())
	assert.Same(t, mem, d.Memory())

	res, err := d.Dispatch(context.Background(), testTarget, isOK, RaceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Strategy)
	assert.Equal(t, "fast", mem.Get("example.com"))

	_, err = d.Dispatch(context.Background(), "https://other.example/", func(string) bool { return false }, RaceConfig{})
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.Contains(t, err.Error(), "slow: timeout after 80ms")
	assert.Empty(t, mem.Get("other.example"), "failures are not remembered")
}

func TestDispatcher_DefaultDescriber(t *testing.T) {
	d, err := NewDispatcher([]Strategy{after("a", 0, "x", nil)}, RaceConfig{
		Describe: func(string) string { return "bot challenge page" },
	}, nil)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), testTarget, isOK, RaceConfig{})
	assert.Contains(t, err.Error(), "a: bot challenge page")
}

func TestNewDispatcher_RejectsBadSet(t *testing.T) {
	_, err := NewDispatcher(nil, RaceConfig{}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestStrategySet_Promote(t *testing.T) {
	set, err := NewStrategySet(never("a"), never("b"), never("c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, set.promote("c").Names())
	assert.Equal(t, []string{"a", "b", "c"}, set.promote("missing").Names())
	assert.Equal(t, []string{"a", "b", "c"}, set.Names(), "promote does not mutate the set")
}
