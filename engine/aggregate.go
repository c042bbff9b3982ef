package engine

import "strings"

// ReasonSeparator joins per-strategy diagnostics in aggregated messages.
const ReasonSeparator = " | "

// Aggregate renders one "name: reason" entry per non-winning outcome, in the
// order given.
func Aggregate(outcomes []Outcome) string {
	return joinReasons(reasonsOf(outcomes))
}

func reasonsOf(outcomes []Outcome) []Reason {
	reasons := make([]Reason, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Kind == OutcomeValid {
			continue
		}
		reason := o.Reason
		if reason == "" {
			reason = o.Kind.String()
		}
		reasons = append(reasons, Reason{Strategy: o.Strategy, Kind: o.Kind, Reason: reason})
	}
	return reasons
}

func joinReasons(reasons []Reason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = r.Strategy + ": " + r.Reason
	}
	return strings.Join(parts, ReasonSeparator)
}
