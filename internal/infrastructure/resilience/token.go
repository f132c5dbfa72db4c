package resilience

import "sync"

// Token signals cooperative cancellation to retry loops and pending
// timers. Cancel is idempotent and safe from any goroutine; callbacks
// registered with OnCancel run exactly once.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
	callbacks []func()
}

// NewToken creates an active (not yet cancelled) token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel marks the token cancelled and runs registered callbacks.
// Subsequent calls are no-ops.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	cbs := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	// Callbacks run outside the lock so they may touch the token.
	for _, fn := range cbs {
		fn()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel closed on cancellation, for use in select
// alongside timers.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to run when the token is cancelled. If the
// token is already cancelled fn runs immediately, so a cancellation
// that raced registration is never lost.
func (t *Token) OnCancel(fn func()) {
	if fn == nil {
		return
	}

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}
