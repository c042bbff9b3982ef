package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Race runs every strategy concurrently against target and returns the first
// result accepted by validate. Losing strategies are cancelled as soon as a
// winner is declared. ctx is the caller's cancellation signal.
//
// On failure the error is a *RaceFailure whose cause is all-failed,
// overall-timeout or externally-cancelled. Invalid input yields an error
// wrapping ErrConfiguration and no strategy is started.
func Race(ctx context.Context, target string, strategies []Strategy, validate Validator, cfg RaceConfig) (*RaceResult, error) {
	// ── 1. Validate input ───────────────────────────────────────────
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("%w: target must not be empty", ErrConfiguration)
	}
	if validate == nil {
		return nil, fmt.Errorf("%w: validator is required", ErrConfiguration)
	}
	set, err := NewStrategySet(strategies...)
	if err != nil {
		return nil, err
	}

	// ── 2. Clamp timeouts ───────────────────────────────────────────
	cfg = cfg.clamp()
	start := time.Now()

	// ── 3. Link cancellation ────────────────────────────────────────
	link := Link(ctx)
	defer link.Cancel(errRaceDone)

	if link.Cancelled() {
		reasons := make([]Reason, len(set))
		for i, s := range set {
			reasons[i] = Reason{Strategy: s.Name(), Kind: OutcomeCancelled, Reason: "cancelled before start"}
		}
		return nil, &RaceFailure{Target: target, Cause: CauseExternallyCancelled, Reasons: reasons, Err: context.Cause(ctx)}
	}

	// ── 4. Launch every strategy ────────────────────────────────────
	shared := withValidator(link.Context(), validate)
	results := make(chan Outcome, len(set))
	for _, s := range set {
		go func(s Strategy) {
			results <- settle(shared, s, target, cfg.PerStrategyTimeout, validate, cfg.Describe)
		}(s)
	}

	// ── 5. Overall deadline ─────────────────────────────────────────
	overall := time.NewTimer(cfg.OverallTimeout)
	defer overall.Stop()

	// ── 6-9. React to settlements ───────────────────────────────────
	// This loop is the only reader of results and the only place a winner
	// is declared, so the first Valid outcome it receives wins.
	r := &raceState{target: target, set: set, settled: make([]Outcome, 0, len(set))}
	for len(r.settled) < len(set) {
		select {
		case o := <-results:
			if link.ExternallyCancelled() {
				r.discard(o)
				return nil, r.callerCancelled(ctx, link)
			}
			if o.Kind == OutcomeValid {
				link.Detach()
				link.Cancel(errRaceWon)
				slog.Info("strategy won race",
					"strategy", o.Strategy,
					"target", target,
					"elapsed", time.Since(start),
					"losers_settled", len(r.settled),
				)
				return &RaceResult{
					Strategy: o.Strategy,
					Text:     o.Text,
					Elapsed:  time.Since(start),
					Outcomes: r.settled,
				}, nil
			}
			r.settled = append(r.settled, o)

		case <-overall.C:
			return nil, r.deadline(ctx, link, cfg.OverallTimeout)

		case <-link.External():
			return nil, r.callerCancelled(ctx, link)
		}
	}

	if link.ExternallyCancelled() {
		return nil, r.fail(CauseExternallyCancelled, "", context.Cause(ctx))
	}
	return nil, r.fail(CauseAllFailed, "", nil)
}

type raceState struct {
	target  string
	set     StrategySet
	settled []Outcome
}

// discard records an outcome received after the caller cancelled. A valid
// result arriving then never wins.
func (r *raceState) discard(o Outcome) {
	if o.Kind == OutcomeValid {
		o = Outcome{Strategy: o.Strategy, Kind: OutcomeCancelled, Reason: "result discarded: caller cancelled", Elapsed: o.Elapsed}
	}
	r.settled = append(r.settled, o)
}

// callerCancelled ends the race on the caller's cancellation.
func (r *raceState) callerCancelled(ctx context.Context, link *CancelLink) *RaceFailure {
	link.Cancel(externalCause(ctx))
	return r.fail(CauseExternallyCancelled, "still running when caller cancelled", context.Cause(ctx))
}

// deadline ends the race at the overall deadline. A caller cancellation that
// is already pending takes precedence over the timeout.
func (r *raceState) deadline(ctx context.Context, link *CancelLink, overall time.Duration) *RaceFailure {
	if link.ExternallyCancelled() {
		return r.callerCancelled(ctx, link)
	}
	link.Cancel(ErrOverallTimeout)
	return r.fail(CauseOverallTimeout, fmt.Sprintf("still running at overall deadline (%s)", overall), nil)
}

// fail builds the RaceFailure: settled outcomes in settlement order, then
// every strategy still in flight with pendingReason.
func (r *raceState) fail(cause FailureCause, pendingReason string, err error) *RaceFailure {
	reasons := reasonsOf(r.settled)
	if len(r.settled) < len(r.set) {
		done := make(map[string]struct{}, len(r.settled))
		for _, o := range r.settled {
			done[o.Strategy] = struct{}{}
		}
		for _, s := range r.set {
			if _, ok := done[s.Name()]; !ok {
				reasons = append(reasons, Reason{Strategy: s.Name(), Reason: pendingReason})
			}
		}
	}
	f := &RaceFailure{Target: r.target, Cause: cause, Reasons: reasons, Err: err}
	slog.Debug("race failed", "target", r.target, "cause", string(cause), "reasons", f.Message())
	return f
}

// Dispatcher binds a static strategy set to race defaults and remembers which
// strategy won for each host.
type Dispatcher struct {
	strategies StrategySet
	defaults   RaceConfig
	memory     *DomainMemory
}

// NewDispatcher creates a Dispatcher. memory may be nil.
func NewDispatcher(strategies []Strategy, defaults RaceConfig, memory *DomainMemory) (*Dispatcher, error) {
	set, err := NewStrategySet(strategies...)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		strategies: set,
		defaults:   defaults,
		memory:     memory,
	}, nil
}

// Dispatch races the dispatcher's strategies for target. Zero fields in cfg
// take the dispatcher defaults.
//
// A strategy remembered for the target's host is launched first. Launch
// order is not priority: the first valid settlement still wins.
func (d *Dispatcher) Dispatch(ctx context.Context, target string, validate Validator, cfg RaceConfig) (*RaceResult, error) {
	if cfg.PerStrategyTimeout == 0 {
		cfg.PerStrategyTimeout = d.defaults.PerStrategyTimeout
	}
	if cfg.OverallTimeout == 0 {
		cfg.OverallTimeout = d.defaults.OverallTimeout
	}
	if cfg.Describe == nil {
		cfg.Describe = d.defaults.Describe
	}

	set := d.strategies
	domain := extractDomain(target)
	if d.memory != nil && domain != "" {
		if remembered := d.memory.Get(domain); remembered != "" {
			slog.Debug("domain memory hit", "domain", domain, "strategy", remembered)
			set = set.promote(remembered)
		}
	}

	result, err := Race(ctx, target, set, validate, cfg)
	if err != nil {
		return nil, err
	}
	if d.memory != nil && domain != "" {
		d.memory.Set(domain, result.Strategy)
	}
	return result, nil
}

// Strategies returns the registered strategy names in order.
func (d *Dispatcher) Strategies() []string { return d.strategies.Names() }

// Memory returns the dispatcher's domain memory, or nil.
func (d *Dispatcher) Memory() *DomainMemory { return d.memory }

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
