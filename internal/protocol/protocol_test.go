package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/babelcloud/holocast/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNegotiation() channel.Message {
	return channel.Message{
		"apptype":       "viewer",
		"sharedtexture": "h1",
		"id":            "7",
		"source":        "https://example.com/page",
		"width":         float64(512),
		"height":        float64(512),
	}
}

func TestParseNegotiationDefaultsFPS(t *testing.T) {
	p, err := ParseNegotiation(validNegotiation(), "viewer")
	require.NoError(t, err)
	assert.Equal(t, Params{
		AppType:       "viewer",
		SharedTexture: "h1",
		ID:            "7",
		Source:        "https://example.com/page",
		Width:         512,
		Height:        512,
		FPS:           30,
	}, p)
}

func TestParseNegotiationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(channel.Message)
		field  string
	}{
		{"fps zero", func(m channel.Message) { m["fps"] = float64(0) }, "fps"},
		{"fps negative", func(m channel.Message) { m["fps"] = float64(-5) }, "fps"},
		{"fps not a number", func(m channel.Message) { m["fps"] = "fast" }, "fps"},
		{"wrong apptype", func(m channel.Message) { m["apptype"] = "game" }, "apptype"},
		{"missing texture", func(m channel.Message) { delete(m, "sharedtexture") }, "sharedtexture"},
		{"empty id", func(m channel.Message) { m["id"] = "" }, "id"},
		{"numeric source", func(m channel.Message) { m["source"] = float64(1) }, "source"},
		{"zero width", func(m channel.Message) { m["width"] = float64(0) }, "width"},
		{"fractional height", func(m channel.Message) { m["height"] = 10.5 }, "height"},
		{"missing height", func(m channel.Message) { delete(m, "height") }, "height"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validNegotiation()
			tt.mutate(msg)

			_, err := ParseNegotiation(msg, "viewer")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNegotiation))

			var ne *NegotiationError
			require.ErrorAs(t, err, &ne)
			assert.Equal(t, tt.field, ne.Field)
		})
	}
}

func TestParseNegotiationExplicitFPS(t *testing.T) {
	msg := validNegotiation()
	msg["fps"] = float64(60)
	p, err := ParseNegotiation(msg, "viewer")
	require.NoError(t, err)
	assert.Equal(t, 60, p.FPS)
}

func TestParseNegotiationURI(t *testing.T) {
	p, err := ParseNegotiationURI("holocast:?id=1&apptype=viewer&sharedtexture=abc&width=512&height=256&source=https%3A%2F%2Fexample.com&fps=60", "viewer")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, "abc", p.SharedTexture)
	assert.Equal(t, "https://example.com", p.Source)
	assert.Equal(t, 512, p.Width)
	assert.Equal(t, 256, p.Height)
	assert.Equal(t, 60, p.FPS)

	_, err = ParseNegotiationURI("holocast:?id=1&apptype=viewer&sharedtexture=abc&width=512&height=256&source=s&fps=0", "viewer")
	assert.ErrorIs(t, err, ErrNegotiation)
}

func TestNegotiationRoundTripsThroughJSON(t *testing.T) {
	in := Params{AppType: "viewer", SharedTexture: "h", ID: "1", Source: "s", Width: 640, Height: 480, FPS: 24}
	raw, err := json.Marshal(in.Message())
	require.NoError(t, err)

	var msg channel.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	out, err := ParseNegotiation(msg, "viewer")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestIsNegotiation(t *testing.T) {
	noAppType := validNegotiation()
	delete(noAppType, "apptype")

	tests := []struct {
		name string
		msg  channel.Message
		want bool
	}{
		{"complete", validNegotiation(), true},
		{"without apptype", noAppType, true},
		{"only a size", channel.Message{"width": 1.0, "height": 1.0}, true},
		{"feedback", channel.Message{"fps": 30.0}, false},
		{"stopped notice", Stopped{ID: "1", Reason: "x"}.Message(), false},
		{"input", PointerMovedEvent{Point{1, 2}}.Message(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNegotiation(tt.msg))
		})
	}

	_, err := ParseNegotiation(noAppType, "viewer")
	var ne *NegotiationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "apptype", ne.Field)
}

func TestParseFeedback(t *testing.T) {
	fb, ok := ParseFeedback(channel.Message{"fps": float64(27)})
	require.True(t, ok)
	assert.Equal(t, 27, fb.FPS)

	_, ok = ParseFeedback(validNegotiation())
	assert.False(t, ok)

	_, ok = ParseFeedback(channel.Message{"Status": "OK"})
	assert.False(t, ok)
}

func TestStoppedAndReplyError(t *testing.T) {
	s, ok := ParseStopped(Stopped{ID: "7", Reason: "device lost"}.Message())
	require.True(t, ok)
	assert.Equal(t, "7", s.ID)
	assert.Equal(t, "device lost", s.Reason)

	_, ok = ReplyError(channel.Ack())
	assert.False(t, ok)

	text, ok := ReplyError(channel.Message{"Status": "Error", "Error": "bad fps"})
	assert.True(t, ok)
	assert.Equal(t, "bad fps", text)
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name string
		msg  channel.Message
		want InputEvent
	}{
		{"pressed", channel.Message{"PointerMessage": "OnPointerPressed", "x": 1.5, "y": float64(2)}, PointerPressedEvent{Point{1.5, 2}}},
		{"moved", channel.Message{"PointerMessage": "OnPointerMoved", "x": float64(3), "y": float64(4)}, PointerMovedEvent{Point{3, 4}}},
		{"released", channel.Message{"PointerMessage": "OnPointerReleased", "x": float64(5), "y": float64(6)}, PointerReleasedEvent{Point{5, 6}}},
		{"key", channel.Message{"KeyboardMessage": "KeyPress", "Key": float64(65)}, KeyDownEvent{Key: 65}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInput(tt.msg)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)

			again, ok := ParseInput(got.Message())
			require.True(t, ok)
			assert.Equal(t, tt.want, again)
		})
	}
}

func TestParseInputRejects(t *testing.T) {
	for _, msg := range []channel.Message{
		{"PointerMessage": "OnPointerWheel", "x": 1.0, "y": 1.0},
		{"PointerMessage": "OnPointerPressed", "x": 1.0},
		{"KeyboardMessage": "KeyUp", "Key": 65.0},
		{"KeyboardMessage": "KeyPress"},
		{"fps": 30.0},
	} {
		_, ok := ParseInput(msg)
		assert.False(t, ok, "%v", msg)
	}
}
