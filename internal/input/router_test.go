package input

import (
	"fmt"
	"testing"

	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	actions []string
}

func (r *recorder) Click(x, y int)      { r.actions = append(r.actions, fmt.Sprintf("click %d,%d", x, y)) }
func (r *recorder) ScrollBy(dx, dy int) { r.actions = append(r.actions, fmt.Sprintf("scroll %d,%d", dx, dy)) }
func (r *recorder) AppendText(ch rune)  { r.actions = append(r.actions, "type "+string(ch)) }
func (r *recorder) DeleteBackward()     { r.actions = append(r.actions, "backspace") }

// inline runs dispatched work immediately
type inline struct{}

func (inline) Dispatch(fn func()) error {
	fn()
	return nil
}

func press(x, y float64) protocol.InputEvent {
	return protocol.PointerPressedEvent{Point: protocol.Point{X: x, Y: y}}
}
func move(x, y float64) protocol.InputEvent {
	return protocol.PointerMovedEvent{Point: protocol.Point{X: x, Y: y}}
}
func release(x, y float64) protocol.InputEvent {
	return protocol.PointerReleasedEvent{Point: protocol.Point{X: x, Y: y}}
}

func TestRouter(t *testing.T) {
	tests := []struct {
		name   string
		bounds Rect
		events []protocol.InputEvent
		want   []string
	}{
		{
			name:   "short drag is a click at the release point",
			bounds: Rect{0, 0, 512, 512},
			events: []protocol.InputEvent{press(50, 50), release(52, 48)},
			want:   []string{"click 52,48"},
		},
		{
			name:   "move pans by previous minus current",
			bounds: Rect{0, 0, 512, 512},
			events: []protocol.InputEvent{press(50, 50), move(30, 50)},
			want:   []string{"scroll 20,0"},
		},
		{
			name:   "long drag pans then releases without click",
			bounds: Rect{0, 0, 512, 512},
			events: []protocol.InputEvent{press(50, 50), move(40, 45), move(10, 40), release(10, 40)},
			want:   []string{"scroll 10,5", "scroll 30,5"},
		},
		{
			name:   "coordinates are made local",
			bounds: Rect{100, 200, 512, 512},
			events: []protocol.InputEvent{press(150, 250), release(151, 251)},
			want:   []string{"click 51,51"},
		},
		{
			name:   "press outside is ignored",
			bounds: Rect{0, 0, 100, 100},
			events: []protocol.InputEvent{press(150, 50), move(60, 50), release(60, 50)},
			want:   nil,
		},
		{
			name:   "leaving the rectangle ends tracking",
			bounds: Rect{0, 0, 100, 100},
			events: []protocol.InputEvent{press(50, 50), move(150, 50), move(40, 50), release(50, 50)},
			want:   nil,
		},
		{
			name:   "edges are inside",
			bounds: Rect{0, 0, 100, 100},
			events: []protocol.InputEvent{press(100, 100), release(100, 100)},
			want:   []string{"click 100,100"},
		},
		{
			name:   "move without press does nothing",
			bounds: Rect{0, 0, 100, 100},
			events: []protocol.InputEvent{move(10, 10), release(10, 10)},
			want:   nil,
		},
		{
			name:   "threshold is exclusive",
			bounds: Rect{0, 0, 100, 100},
			events: []protocol.InputEvent{press(50, 50), release(60, 50)},
			want:   nil,
		},
		{
			name:   "keys append and backspace deletes",
			bounds: Rect{0, 0, 100, 100},
			events: []protocol.InputEvent{
				protocol.KeyDownEvent{Key: 'h'},
				protocol.KeyDownEvent{Key: 'i'},
				protocol.KeyDownEvent{Key: KeyBackspace},
				protocol.KeyDownEvent{Key: 13},
				protocol.KeyDownEvent{Key: 0x7f},
			},
			want: []string{"type h", "type i", "backspace"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r := NewRouter(FixedLayout(tt.bounds), rec, inline{})
			for _, ev := range tt.events {
				require.NoError(t, r.Handle(ev))
			}
			assert.Equal(t, tt.want, rec.actions)
		})
	}
}

func TestResetStopsTracking(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(FixedLayout(Rect{0, 0, 100, 100}), rec, inline{})
	require.NoError(t, r.Handle(press(10, 10)))
	assert.True(t, r.Tracking())

	r.Reset()
	assert.False(t, r.Tracking())
	require.NoError(t, r.Handle(move(20, 20)))
	assert.Empty(t, rec.actions)
}
