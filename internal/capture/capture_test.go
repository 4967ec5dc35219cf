package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/pacing"
	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/babelcloud/holocast/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

type fakeContent struct {
	mu    sync.Mutex
	img   image.Image
	err   error
	calls int
}

func (f *fakeContent) Capture(context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.img, f.err
}

func (f *fakeContent) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestScaleBoxAverages(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 100, A: 255})
	src.SetNRGBA(0, 1, color.NRGBA{R: 200, A: 255})
	src.SetNRGBA(1, 1, color.NRGBA{R: 100, A: 255})

	var s Scaler
	f := s.Scale(src, 1, 1)
	require.Equal(t, 4, f.Stride)
	// BGRA
	assert.Equal(t, uint8(0), f.Pix[0])
	assert.InDelta(t, 150, int(f.Pix[2]), 1)
	assert.Equal(t, uint8(255), f.Pix[3])
}

func TestScaleKeepsStraightAlpha(t *testing.T) {
	var s Scaler
	f := s.Scale(solid(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 128}), 4, 4)
	assert.InDelta(t, 50, int(f.Pix[0]), 1)
	assert.InDelta(t, 100, int(f.Pix[1]), 1)
	assert.InDelta(t, 200, int(f.Pix[2]), 1)
	assert.Equal(t, uint8(128), f.Pix[3])
}

type rig struct {
	content  *fakeContent
	pipeline *Pipeline
	clock    *clocktesting.FakeClock
	producer *gpu.Device
	reader   *surface.Readable
	feedback []protocol.Feedback
}

func newRig(t *testing.T, fps int) *rig {
	ns := gpu.NewMemoryNamespace()
	producer := gpu.NewDevice("producer", ns, gpu.DefaultCapabilities())
	consumer := gpu.NewDevice("consumer", ns, gpu.DefaultCapabilities())

	h := surface.NewHandle()
	w, err := surface.Create(producer, h, 16, 8)
	require.NoError(t, err)
	t.Cleanup(func() { w.Release() })
	r, err := surface.Open(consumer, h, 16, 8)
	require.NoError(t, err)

	rg := &rig{
		content:  &fakeContent{img: solid(64, 32, color.NRGBA{G: 255, A: 255})},
		clock:    clocktesting.NewFakeClock(time.Now()),
		producer: producer,
		reader:   r,
	}
	pacer := pacing.New(pacing.Config{TargetFPS: fps}, rg.clock, pacing.SinkFunc(func(fb protocol.Feedback) {
		rg.feedback = append(rg.feedback, fb)
	}))
	rg.pipeline = NewPipeline(Config{Content: rg.content, Surface: w, Pacer: pacer, Clock: rg.clock})
	return rg
}

func TestTickSkipsUntilLoaded(t *testing.T) {
	rg := newRig(t, 30)
	require.NoError(t, rg.pipeline.Tick(context.Background()))
	assert.Equal(t, 0, rg.content.Calls())

	rg.pipeline.ContentReady()
	require.NoError(t, rg.pipeline.Tick(context.Background()))
	assert.Equal(t, 1, rg.content.Calls())

	img, err := rg.reader.Snapshot()
	require.NoError(t, err)
	px := img.NRGBAAt(3, 3)
	assert.InDelta(t, 255, int(px.G), 1)
	assert.Equal(t, uint8(0), px.R)
	assert.InDelta(t, 255, int(px.A), 1)

	rg.pipeline.NavigationStarting()
	require.NoError(t, rg.pipeline.Tick(context.Background()))
	assert.Equal(t, 1, rg.content.Calls())
}

func TestCaptureFailureIsTransient(t *testing.T) {
	rg := newRig(t, 30)
	rg.pipeline.ContentReady()
	rg.content.err = errors.New("renderer busy")

	err := rg.pipeline.Tick(context.Background())
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, rg.pipeline.Pacer().Frames())
}

func TestDeviceLossIsFatal(t *testing.T) {
	rg := newRig(t, 30)
	rg.pipeline.ContentReady()
	rg.producer.Lose()

	err := rg.pipeline.Tick(context.Background())
	var re *gpu.DeviceResourceError
	require.ErrorAs(t, err, &re)

	err = rg.pipeline.Run(context.Background())
	assert.ErrorAs(t, err, &re)
}

func TestSixtyTicksProduceOneFeedback(t *testing.T) {
	rg := newRig(t, 60)
	rg.pipeline.ContentReady()
	for i := 0; i < 60; i++ {
		rg.clock.Step(rg.pipeline.Pacer().Delay())
		require.NoError(t, rg.pipeline.Tick(context.Background()))
	}
	require.Len(t, rg.feedback, 1)
	assert.Positive(t, rg.feedback[0].FPS)
}

func TestRunReschedulesWithDelay(t *testing.T) {
	rg := newRig(t, 30)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rg.pipeline.Run(ctx) }()

	// nothing happens before content is ready
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rg.content.Calls())

	rg.pipeline.ContentReady()
	for i := 1; i <= 3; i++ {
		require.Eventually(t, rg.clock.HasWaiters, 5*time.Second, time.Millisecond)
		assert.Equal(t, i, rg.content.Calls())
		rg.clock.Step(rg.pipeline.Pacer().Delay())
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture loop did not stop")
	}
}
