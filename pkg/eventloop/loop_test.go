package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}

	var snapshot []int
	require.NoError(t, l.Call(context.Background(), func() {
		snapshot = append(snapshot, got...)
	}))

	require.Len(t, snapshot, 100)
	for i, v := range snapshot {
		assert.Equal(t, i, v)
	}
}

func TestLoopSerializesConcurrentPosts(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, l.Call(context.Background(), func() { final = counter }))
	assert.Equal(t, 1000, final)
}

func TestLoopTaskMayPostFromLoop(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post did not run")
	}
}

func TestLoopRecoversPanickingTask(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	l.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopClose(t *testing.T) {
	l := New(context.Background())
	l.Close()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrClosed)
	assert.ErrorIs(t, l.Context().Err(), context.Canceled)

	// idempotent
	l.Close()
}

func TestDispatchPostsCompletionOnLoop(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	result := make(chan string, 1)
	Dispatch(l, "echo", func(ctx context.Context) (string, error) {
		return "pong", nil
	}, func(v string, err error) {
		assert.NoError(t, err)
		result <- v
	})

	select {
	case v := <-result:
		assert.Equal(t, "pong", v)
	case <-time.After(time.Second):
		t.Fatal("completion not delivered")
	}
}

func TestDispatchConvertsPanicToError(t *testing.T) {
	l := New(context.Background())
	defer l.Close()

	result := make(chan error, 1)
	Dispatch(l, "explode", func(ctx context.Context) (int, error) {
		panic("kaboom")
	}, func(v int, err error) {
		result <- err
	})

	select {
	case err := <-result:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "explode panicked")
	case <-time.After(time.Second):
		t.Fatal("completion not delivered")
	}
}

func TestDispatchOperationSeesCloseCancellation(t *testing.T) {
	l := New(context.Background())

	started := make(chan struct{})
	finished := make(chan error, 1)
	Dispatch(l, "slow", func(ctx context.Context) (struct{}, error) {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
		return struct{}{}, ctx.Err()
	}, func(struct{}, error) {
		t.Error("completion must not run after close")
	})

	<-started
	l.Close()

	select {
	case err := <-finished:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("operation was not cancelled")
	}
}
