package protocol

import "github.com/babelcloud/holocast/internal/channel"

// Status values carried under the "Status" key.
const (
	KeyStatus     = "Status"
	KeyError      = "Error"
	StatusOK      = "OK"
	StatusError   = "Error"
	StatusStopped = "Stopped"
)

// Feedback is the producer's report of its achieved frame rate.
type Feedback struct {
	FPS int
}

func (f Feedback) Message() channel.Message {
	return channel.Message{KeyFPS: f.FPS}
}

// ParseFeedback recognizes a feedback message. Negotiations also carry
// fps, so anything keyed as a negotiation is not feedback.
func ParseFeedback(msg channel.Message) (Feedback, bool) {
	if IsNegotiation(msg) {
		return Feedback{}, false
	}
	fps, ok := msg.Int(KeyFPS)
	if !ok {
		return Feedback{}, false
	}
	return Feedback{FPS: fps}, true
}

// Stopped tells the consumer a session ended on the producer side.
type Stopped struct {
	ID     string
	Reason string
}

func (s Stopped) Message() channel.Message {
	return channel.Message{KeyID: s.ID, KeyStatus: StatusStopped, KeyError: s.Reason}
}

func ParseStopped(msg channel.Message) (Stopped, bool) {
	status, _ := msg.String(KeyStatus)
	if status != StatusStopped {
		return Stopped{}, false
	}
	id, _ := msg.String(KeyID)
	reason, _ := msg.String(KeyError)
	return Stopped{ID: id, Reason: reason}, true
}

// ReplyError extracts the failure text from a non-OK reply.
func ReplyError(reply channel.Message) (string, bool) {
	status, _ := reply.String(KeyStatus)
	if status == StatusOK {
		return "", false
	}
	text, _ := reply.String(KeyError)
	if text == "" {
		text = "peer replied with status " + status
	}
	return text, true
}
