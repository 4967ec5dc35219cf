package pacing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestInitialDelay(t *testing.T) {
	tests := []struct {
		fps  int
		want time.Duration
	}{
		{30, 33 * time.Millisecond},
		{60, 16 * time.Millisecond},
		{1, time.Second},
		{1000, 3 * time.Millisecond},
		{0, 33 * time.Millisecond},
	}
	for _, tt := range tests {
		c := New(Config{TargetFPS: tt.fps}, clocktesting.NewFakePassiveClock(time.Now()), nil)
		assert.Equal(t, tt.want, c.Delay(), "fps %d", tt.fps)
	}
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name     string
		delay    time.Duration
		achieved int
		want     time.Duration
	}{
		{"below target speeds up", 33 * time.Millisecond, 25, 32 * time.Millisecond},
		{"floor holds", 3 * time.Millisecond, 10, 3 * time.Millisecond},
		{"above target slows down", 33 * time.Millisecond, 35, 34 * time.Millisecond},
		{"on target unchanged", 33 * time.Millisecond, 30, 33 * time.Millisecond},
		{"no ceiling", 2 * time.Second, 31, 2*time.Second + time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Config{TargetFPS: 30}, clocktesting.NewFakePassiveClock(time.Now()), nil)
			c.SetDelay(tt.delay)
			c.Adjust(tt.achieved)
			assert.Equal(t, tt.want, c.Delay())
		})
	}
}

func TestFeedbackEveryTargetFrames(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	var got []protocol.Feedback
	c := New(Config{TargetFPS: 30}, clk, SinkFunc(func(fb protocol.Feedback) { got = append(got, fb) }))

	// 25 fps worth of wall time per frame
	for i := 0; i < 60; i++ {
		clk.Step(40 * time.Millisecond)
		c.FrameCompleted()
	}

	require.Len(t, got, 2)
	assert.Equal(t, 25, got[0].FPS)
	assert.Equal(t, 25, got[1].FPS)
	assert.Equal(t, 31*time.Millisecond, c.Delay())
	assert.Equal(t, 60, c.Frames())
}

func TestAlternatingWindowsStepOneMillisecond(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	var got []int
	// no smoothing, so each window reports exactly its own rate
	c := New(Config{TargetFPS: 30, Smoothing: 1}, clk, SinkFunc(func(fb protocol.Feedback) { got = append(got, fb.FPS) }))

	window := func(interval time.Duration) {
		for i := 0; i < 30; i++ {
			clk.Step(interval)
			c.FrameCompleted()
		}
	}
	const (
		slow = 40 * time.Millisecond // 25 fps
		fast = 20 * time.Millisecond // 50 fps
	)

	want := 33 * time.Millisecond
	for i, interval := range []time.Duration{slow, fast, slow, fast, slow, slow, fast} {
		before := c.Delay()
		window(interval)
		if interval == slow {
			want -= time.Millisecond
		} else {
			want += time.Millisecond
		}
		assert.Equal(t, want, c.Delay(), "window %d", i)
		assert.Equal(t, time.Millisecond, (c.Delay() - before).Abs(), "window %d", i)
	}
	assert.Equal(t, []int{25, 50, 25, 50, 25, 25, 50}, got)

	c.SetDelay(4 * time.Millisecond)
	for _, want := range []time.Duration{3 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond} {
		window(slow)
		assert.Equal(t, want, c.Delay())
	}
	window(fast)
	assert.Equal(t, 4*time.Millisecond, c.Delay())
}

func TestSmoothingConverges(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	c := New(Config{TargetFPS: 10, Smoothing: 0.5}, clk, nil)

	clk.Step(100 * time.Millisecond)
	c.FrameCompleted()
	assert.Equal(t, 0, c.Achieved(), "first frame has no interval")

	clk.Step(100 * time.Millisecond)
	c.FrameCompleted()
	assert.Equal(t, 10, c.Achieved())

	for i := 0; i < 20; i++ {
		clk.Step(50 * time.Millisecond)
		c.FrameCompleted()
	}
	assert.Equal(t, 20, c.Achieved())
}

func TestPublisherNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var sent []int
	p := NewPublisher(1, func(ctx context.Context, fb protocol.Feedback) error {
		<-release
		mu.Lock()
		sent = append(sent, fb.FPS)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	start := time.Now()
	for i := 0; i < 10; i++ {
		p.Publish(protocol.Feedback{FPS: i})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, p.Dropped())

	close(release)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
