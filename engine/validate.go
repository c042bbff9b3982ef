package engine

import (
	"context"
	"fmt"
)

// Validator decides whether a strategy's text counts as a win. It must be
// pure; a panicking validator is treated as a rejection.
type Validator func(text string) bool

// Describer explains why text was rejected. Optional.
type Describer func(text string) string

// check runs v on text and never panics.
func check(v Validator, describe Describer, text string) (ok bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			reason = fmt.Sprintf("validator panicked: %v", r)
		}
	}()
	if v(text) {
		return true, ""
	}
	if describe != nil {
		return false, describe(text)
	}
	return false, "not the expected format"
}

type validatorKey struct{}

// withValidator attaches the race's gate to the context handed to strategies.
func withValidator(ctx context.Context, v Validator) context.Context {
	return context.WithValue(ctx, validatorKey{}, v)
}

// Accepts reports whether the gate of the race that ctx belongs to accepts
// text. Outside a race every text is accepted.
func Accepts(ctx context.Context, text string) bool {
	v, _ := ctx.Value(validatorKey{}).(Validator)
	if v == nil {
		return true
	}
	ok, _ := check(v, nil, text)
	return ok
}
