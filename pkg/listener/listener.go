// Package listener drains a channel into a handler on its own goroutine.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Job is a background worker owned by the runtime.
type Job interface {
	Start(ctx context.Context)
	Stop()
}

// Listener hands every value received on a channel to a handler until the
// context is cancelled, the channel is closed or Stop is called. Handler
// errors are logged with the listener's name and do not stop it.
type Listener[T any] struct {
	name    string
	in      <-chan T
	handler func(T) error

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
}

func New[T any](name string, in <-chan T, handler func(T) error) *Listener[T] {
	return &Listener[T]{
		name:    name,
		in:      in,
		handler: handler,
		cancel:  func() {},
		done:    make(chan struct{}),
	}
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.started.Store(true)
	go l.loop(ctx)
}

func (l *Listener[T]) loop(ctx context.Context) {
	defer close(l.done)
	logger := slog.With("listener", l.name)
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-l.in:
			if !ok {
				logger.Debug("input closed")
				return
			}
			if err := l.handler(v); err != nil {
				logger.Warn("listener handler failed", "error", err)
			}
		}
	}
}

// Done is closed once the loop has returned.
func (l *Listener[T]) Done() <-chan struct{} { return l.done }

// Stop cancels the loop and waits for the running handler. Stopping a
// listener that was never started returns immediately.
func (l *Listener[T]) Stop() {
	l.once.Do(func() {
		l.cancel()
		if l.started.Load() {
			<-l.done
		}
	})
}
