package cancel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is the process-wide cancellation signal of one pipeline run.
// It is set at most once and never reset; a fresh run gets a fresh Token.
// ⭐ SSOT: 파이프라인 취소 신호는 이 타입으로만 전달
type Token struct {
	once sync.Once
	done chan struct{}
	set  atomic.Bool
}

// New creates an unset token
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the token. It reports whether this call was the one that set it;
// later calls are no-ops.
func (t *Token) Cancel() bool {
	first := false
	t.once.Do(func() {
		t.set.Store(true)
		close(t.done)
		first = true
	})
	return first
}

// Cancelled reports whether the token is set
func (t *Token) Cancelled() bool {
	return t.set.Load()
}

// Done is closed when the token is set
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Watch cancels the token when ctx is done (operator abort, signal handler).
// The returned stop func releases the watcher without cancelling and returns
// once the watcher goroutine has exited.
func (t *Token) Watch(ctx context.Context) (stop func()) {
	release := make(chan struct{})
	exited := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			t.Cancel()
		case <-release:
		case <-t.done:
		}
	}()

	return func() {
		once.Do(func() { close(release) })
		<-exited
	}
}

// Context derives a context that is cancelled when the token is set or parent is done.
// Blocking I/O inside a run (series fetches, cache reads) uses it.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
