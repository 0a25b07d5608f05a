package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// TaskContext holds context values that should be propagated to async tasks
type TaskContext struct {
	CorrelationID string
	SessionID     string
	StartTime     time.Time
	TaskName      string
}

// CaptureContext captures the current context values for async propagation
func CaptureContext(ctx context.Context, taskName string) TaskContext {
	return TaskContext{
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		SessionID:     logger.SessionIDFromContext(ctx),
		StartTime:     time.Now(),
		TaskName:      taskName,
	}
}

// NewContext creates a new background context with the captured values
func (tc TaskContext) NewContext() context.Context {
	return tc.decorate(context.Background())
}

func (tc TaskContext) decorate(ctx context.Context) context.Context {
	if tc.CorrelationID != "" {
		ctx = logger.ContextWithCorrelationID(ctx, tc.CorrelationID)
	}
	if tc.SessionID != "" {
		ctx = logger.ContextWithSessionID(ctx, tc.SessionID)
	}
	return ctx
}

// Go runs fn in a goroutine detached from the caller's cancellation, with
// context propagation and panic recovery. Use it for work that must outlive
// the request that started it, such as publishing a confirmed ride.
//
// Usage:
//
//	async.Go(ctx, "publish-ride", func(ctx context.Context) {
//	    bus.Publish(ctx, subject, event)
//	})
func Go(ctx context.Context, taskName string, fn func(ctx context.Context)) {
	tc := CaptureContext(ctx, taskName)

	go func() {
		defer recoverWithLogging(tc)

		newCtx := tc.NewContext()
		fn(newCtx)

		logger.DebugContext(newCtx, "async task completed",
			zap.String("task", tc.TaskName),
			zap.Duration("duration", time.Since(tc.StartTime)),
		)
	}()
}

// GoAttached runs fn in a goroutine that shares ctx, so cancelling ctx
// cancels the task. Panics are recovered and reported to onPanic, if set, so
// that the caller still observes a completion.
func GoAttached(ctx context.Context, taskName string, fn func(ctx context.Context), onPanic func(recovered interface{})) {
	tc := CaptureContext(ctx, taskName)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logPanic(tc, r)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()

		fn(ctx)
	}()
}

// recoverWithLogging recovers from panics and logs them with context
func recoverWithLogging(tc TaskContext) {
	if r := recover(); r != nil {
		logPanic(tc, r)
	}
}

func logPanic(tc TaskContext, r interface{}) {
	logger.ErrorContext(tc.NewContext(), "async task panicked",
		zap.String("task", tc.TaskName),
		zap.Any("panic", r),
		zap.String("stack", string(debug.Stack())),
	)
}
