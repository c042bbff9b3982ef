package engine

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is one independent way of acquiring the document behind a target.
// Implementations own their transport details and must honor ctx.
type Strategy interface {
	// Name returns the strategy identifier (e.g. "direct", "relay", "render").
	Name() string

	// Fetch retrieves the raw text for target.
	Fetch(ctx context.Context, target string) (string, error)
}

// StrategyFunc adapts a plain function into a Strategy.
type StrategyFunc struct {
	ID string
	Fn func(ctx context.Context, target string) (string, error)
}

func (s StrategyFunc) Name() string { return s.ID }

func (s StrategyFunc) Fetch(ctx context.Context, target string) (string, error) {
	return s.Fn(ctx, target)
}

// StrategySet is an ordered list of strategies with unique names.
type StrategySet []Strategy

// NewStrategySet validates the strategies and returns them as a set.
func NewStrategySet(strategies ...Strategy) (StrategySet, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies registered", ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(strategies))
	set := make(StrategySet, 0, len(strategies))
	for i, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("%w: strategy %d is nil", ErrConfiguration, i)
		}
		name := strings.TrimSpace(s.Name())
		if name == "" {
			return nil, fmt.Errorf("%w: strategy %d has an empty name", ErrConfiguration, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate strategy name %q", ErrConfiguration, name)
		}
		seen[name] = struct{}{}
		set = append(set, s)
	}
	return set, nil
}

// Names returns the strategy names in registration order.
func (s StrategySet) Names() []string {
	names := make([]string, len(s))
	for i, st := range s {
		names[i] = st.Name()
	}
	return names
}

// promote returns a copy of the set with the named strategy moved to the
// front. The set is returned unchanged if name is not registered.
func (s StrategySet) promote(name string) StrategySet {
	out := make(StrategySet, 0, len(s))
	for _, st := range s {
		if st.Name() == name {
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return s
	}
	for _, st := range s {
		if st.Name() != name {
			out = append(out, st)
		}
	}
	return out
}
