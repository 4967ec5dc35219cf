package protocol

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/babelcloud/holocast/internal/channel"
	"github.com/pkg/errors"
)

// Negotiation message keys.
const (
	KeyAppType       = "apptype"
	KeySharedTexture = "sharedtexture"
	KeyID            = "id"
	KeySource        = "source"
	KeyWidth         = "width"
	KeyHeight        = "height"
	KeyFPS           = "fps"
)

// DefaultFPS applies when a negotiation carries no fps.
const DefaultFPS = 30

// ErrNegotiation matches every NegotiationError with errors.Is.
var ErrNegotiation = errors.New("negotiation failed")

// NegotiationError reports a missing or invalid negotiation parameter.
type NegotiationError struct {
	Field  string
	Reason string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed: %s %s", e.Field, e.Reason)
}

func (e *NegotiationError) Is(target error) bool {
	return target == ErrNegotiation
}

// Params is a validated negotiation request.
type Params struct {
	AppType       string
	SharedTexture string
	ID            string
	Source        string
	Width         int
	Height        int
	FPS           int
}

// negotiationKeys mark a negotiation request. id and fps alone do not,
// since teardown notices and feedback carry them too.
var negotiationKeys = []string{KeyAppType, KeySharedTexture, KeySource, KeyWidth, KeyHeight}

// IsNegotiation reports whether msg carries any negotiation key, so an
// incomplete request is still parsed and rejected.
func IsNegotiation(msg channel.Message) bool {
	for _, k := range negotiationKeys {
		if msg.Has(k) {
			return true
		}
	}
	return false
}

// ParseNegotiation validates msg against the application-type tag this
// producer serves.
func ParseNegotiation(msg channel.Message, appType string) (Params, error) {
	var p Params
	var err error

	if p.AppType, err = requireString(msg, KeyAppType); err != nil {
		return Params{}, err
	}
	if p.AppType != appType {
		return Params{}, &NegotiationError{Field: KeyAppType, Reason: fmt.Sprintf("is %q, expected %q", p.AppType, appType)}
	}
	if p.SharedTexture, err = requireString(msg, KeySharedTexture); err != nil {
		return Params{}, err
	}
	if p.ID, err = requireString(msg, KeyID); err != nil {
		return Params{}, err
	}
	if p.Source, err = requireString(msg, KeySource); err != nil {
		return Params{}, err
	}
	if p.Width, err = requirePositive(msg, KeyWidth); err != nil {
		return Params{}, err
	}
	if p.Height, err = requirePositive(msg, KeyHeight); err != nil {
		return Params{}, err
	}

	p.FPS = DefaultFPS
	if msg.Has(KeyFPS) {
		if p.FPS, err = requirePositive(msg, KeyFPS); err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// ParseNegotiationURI accepts the query form of a negotiation, for example
// holocast:?id=1&apptype=viewer&sharedtexture=h&width=512&height=512&source=s&fps=60.
func ParseNegotiationURI(raw, appType string) (Params, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Params{}, &NegotiationError{Field: "uri", Reason: err.Error()}
	}
	query := u.RawQuery
	if query == "" {
		query = u.Opaque
		if i := strings.IndexByte(query, '?'); i >= 0 {
			query = query[i+1:]
		}
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return Params{}, &NegotiationError{Field: "uri", Reason: err.Error()}
	}
	msg := channel.Message{}
	for k := range values {
		msg[k] = values.Get(k)
	}
	return ParseNegotiation(msg, appType)
}

// Message encodes p for the wire.
func (p Params) Message() channel.Message {
	return channel.Message{
		KeyAppType:       p.AppType,
		KeySharedTexture: p.SharedTexture,
		KeyID:            p.ID,
		KeySource:        p.Source,
		KeyWidth:         p.Width,
		KeyHeight:        p.Height,
		KeyFPS:           p.FPS,
	}
}

func requireString(msg channel.Message, key string) (string, error) {
	if !msg.Has(key) {
		return "", &NegotiationError{Field: key, Reason: "is missing"}
	}
	s, ok := msg.String(key)
	if !ok {
		return "", &NegotiationError{Field: key, Reason: "is not a string"}
	}
	if s == "" {
		return "", &NegotiationError{Field: key, Reason: "is empty"}
	}
	return s, nil
}

func requirePositive(msg channel.Message, key string) (int, error) {
	if !msg.Has(key) {
		return 0, &NegotiationError{Field: key, Reason: "is missing"}
	}
	n, ok := msg.Int(key)
	if !ok {
		return 0, &NegotiationError{Field: key, Reason: "is not an integer"}
	}
	if n <= 0 {
		return 0, &NegotiationError{Field: key, Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return n, nil
}
