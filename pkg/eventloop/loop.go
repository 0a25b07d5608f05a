// Package eventloop confines mutable state to a single goroutine. Callers
// post closures onto the loop; blocking work runs elsewhere and posts its
// completion back.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gustavodarosa/KidGo/pkg/async"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// ErrClosed is returned when work is submitted to a closed loop.
var ErrClosed = errors.New("event loop closed")

// Loop runs posted tasks one at a time, in submission order.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts a loop whose lifetime is bound to parent. The loop's context is
// handed to every dispatched operation and is cancelled by Close.
func New(parent context.Context) *Loop {
	ctx, cancel := context.WithCancel(parent)
	l := &Loop{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Context returns the loop's context.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post enqueues fn without waiting. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from a task already running on the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-ran:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop, drops queued tasks and cancels in-flight operations.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	l.cancel()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
		}

		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			if l.ctx.Err() != nil {
				return
			}
			l.runTask(fn)
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(l.ctx, "event loop task panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

// Dispatch runs op off the loop with the loop's context and posts done back
// onto the loop with its outcome. A panic in op is delivered to done as an
// error so that callers always observe a completion.
func Dispatch[T any](l *Loop, name string, op func(ctx context.Context) (T, error), done func(T, error)) {
	async.GoAttached(l.ctx, name, func(ctx context.Context) {
		v, err := op(ctx)
		l.Post(func() { done(v, err) })
	}, func(recovered interface{}) {
		var zero T
		err := fmt.Errorf("%s panicked: %v", name, recovered)
		l.Post(func() { done(zero, err) })
	})
}
