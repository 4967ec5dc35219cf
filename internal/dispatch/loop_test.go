package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop("content", 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Dispatch(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(ctx, func() error { return nil }))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCallReturnsResult(t *testing.T) {
	l := NewLoop("content", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	boom := errors.New("boom")
	assert.ErrorIs(t, l.Call(ctx, func() error { return boom }), boom)
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	l := NewLoop("content", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	require.NoError(t, l.Dispatch(func() { panic("bad task") }))
	assert.NoError(t, l.Call(ctx, func() error { return nil }))
}

func TestStoppedLoopRejectsWork(t *testing.T) {
	l := NewLoop("content", 0)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.ErrorIs(t, l.Dispatch(func() {}), ErrStopped)
	assert.ErrorIs(t, l.Call(context.Background(), func() error { return nil }), ErrStopped)
}
