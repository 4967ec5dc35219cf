package protocol

import "github.com/babelcloud/holocast/internal/channel"

const (
	KeyPointerMessage  = "PointerMessage"
	KeyKeyboardMessage = "KeyboardMessage"
	KeyX               = "x"
	KeyY               = "y"
	KeyKey             = "Key"

	PointerPressed  = "OnPointerPressed"
	PointerMoved    = "OnPointerMoved"
	PointerReleased = "OnPointerReleased"
	KeyPress        = "KeyPress"
)

// InputEvent is one of PointerPressedEvent, PointerMovedEvent,
// PointerReleasedEvent or KeyDownEvent.
type InputEvent interface {
	Message() channel.Message
	inputEvent()
}

// Point is a position in the consumer's pointer space.
type Point struct {
	X, Y float64
}

type PointerPressedEvent struct{ Point }
type PointerMovedEvent struct{ Point }
type PointerReleasedEvent struct{ Point }

// KeyDownEvent carries a virtual key code; printable keys use their
// character code.
type KeyDownEvent struct {
	Key int
}

func (PointerPressedEvent) inputEvent()  {}
func (PointerMovedEvent) inputEvent()    {}
func (PointerReleasedEvent) inputEvent() {}
func (KeyDownEvent) inputEvent()         {}

func pointerMessage(kind string, p Point) channel.Message {
	return channel.Message{KeyPointerMessage: kind, KeyX: p.X, KeyY: p.Y}
}

func (e PointerPressedEvent) Message() channel.Message  { return pointerMessage(PointerPressed, e.Point) }
func (e PointerMovedEvent) Message() channel.Message    { return pointerMessage(PointerMoved, e.Point) }
func (e PointerReleasedEvent) Message() channel.Message { return pointerMessage(PointerReleased, e.Point) }

func (e KeyDownEvent) Message() channel.Message {
	return channel.Message{KeyKeyboardMessage: KeyPress, KeyKey: e.Key}
}

// ParseInput decodes an input message. Messages that are not input, or
// input with missing coordinates, report false.
func ParseInput(msg channel.Message) (InputEvent, bool) {
	if kind, ok := msg.String(KeyPointerMessage); ok {
		x, okX := msg.Float(KeyX)
		y, okY := msg.Float(KeyY)
		if !okX || !okY {
			return nil, false
		}
		p := Point{X: x, Y: y}
		switch kind {
		case PointerPressed:
			return PointerPressedEvent{p}, true
		case PointerMoved:
			return PointerMovedEvent{p}, true
		case PointerReleased:
			return PointerReleasedEvent{p}, true
		}
		return nil, false
	}

	if kind, ok := msg.String(KeyKeyboardMessage); ok && kind == KeyPress {
		key, ok := msg.Int(KeyKey)
		if !ok {
			return nil, false
		}
		return KeyDownEvent{Key: key}, true
	}
	return nil, false
}
