package engine

import (
	"context"
	"sync"
)

// CancelLink owns the cancellation signal shared by every strategy in a race.
//
// The internal context does not inherit the caller's cancellation directly:
// it is linked one-way with context.AfterFunc so the race can cancel its own
// strategies on a win without that ever looking like a caller cancellation,
// and so the link can be detached once the race has settled.
type CancelLink struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	stop     func() bool
	detached bool
}

// Link creates the internal cancellation signal for a race and links it to
// parent. If parent is already cancelled the internal signal is cancelled
// before Link returns.
func Link(parent context.Context) *CancelLink {
	// Keep request-scoped values but not the parent's cancellation.
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	l := &CancelLink{
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
	}

	if parent.Err() != nil {
		cancel(externalCause(parent))
		l.stop = func() bool { return false }
		return l
	}

	l.stop = context.AfterFunc(parent, func() {
		l.mu.Lock()
		detached := l.detached
		l.mu.Unlock()
		if !detached {
			cancel(externalCause(parent))
		}
	})
	return l
}

// Context returns the internal signal handed to strategies.
func (l *CancelLink) Context() context.Context { return l.ctx }

// Done is closed once the internal signal is cancelled.
func (l *CancelLink) Done() <-chan struct{} { return l.ctx.Done() }

// Cancelled reports whether the internal signal has been triggered.
func (l *CancelLink) Cancelled() bool { return l.ctx.Err() != nil }

// OnCancel registers fn to run once the internal signal is triggered. The
// returned function unregisters fn if it has not run yet.
func (l *CancelLink) OnCancel(fn func()) (stop func() bool) {
	return context.AfterFunc(l.ctx, fn)
}

// Cancel triggers the internal signal. Only the first call has an effect;
// the caller's context is never touched.
func (l *CancelLink) Cancel(cause error) {
	l.cancel(cause)
}

// Detach stops forwarding the caller's cancellation. After Detach,
// ExternallyCancelled always reports false.
func (l *CancelLink) Detach() {
	l.mu.Lock()
	l.detached = true
	l.mu.Unlock()
	l.stop()
}

// External is closed when the caller's signal fires.
func (l *CancelLink) External() <-chan struct{} { return l.parent.Done() }

// ExternallyCancelled reports whether the caller cancelled while the link
// was attached. It reads the parent directly so it never lags behind the
// AfterFunc goroutine.
func (l *CancelLink) ExternallyCancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.detached && l.parent.Err() != nil
}

// Cause returns why the internal signal was cancelled, or nil.
func (l *CancelLink) Cause() error { return context.Cause(l.ctx) }

func externalCause(parent context.Context) error {
	if cause := context.Cause(parent); cause != nil {
		return &externalError{err: cause}
	}
	return ErrExternallyCancelled
}

// externalError marks an internal cancellation that originated from the caller.
type externalError struct{ err error }

func (e *externalError) Error() string { return "externally cancelled: " + e.err.Error() }

func (e *externalError) Unwrap() []error { return []error{ErrExternallyCancelled, e.err} }
