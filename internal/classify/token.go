package classify

import (
	"context"
	"sync"
)

// CancelToken is a one-shot cancellation signal shared between the caller
// and a running classification.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken returns an unsignalled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Signal marks the token. Repeated calls are no-ops.
func (t *CancelToken) Signal() {
	t.once.Do(func() { close(t.done) })
}

// Signalled reports whether Signal has been called.
func (t *CancelToken) Signalled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed once the token is signalled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Context returns a context cancelled when the token is signalled or the
// returned cancel func is called.
func (t *CancelToken) Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
