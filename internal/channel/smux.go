package channel

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xtaci/smux"
)

// SmuxTransport runs the message channel on the first stream of a smux
// session, leaving further streams free for the owner.
type SmuxTransport struct {
	*StreamTransport
	session *smux.Session
	stream  *smux.Stream
}

// DialSmux opens the client side of a session over conn and its control stream.
func DialSmux(conn io.ReadWriteCloser) (*SmuxTransport, error) {
	session, err := smux.Client(conn, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create smux client session")
	}
	stream, err := session.OpenStream()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "failed to open control stream")
	}
	return &SmuxTransport{StreamTransport: NewStreamTransport(stream), session: session, stream: stream}, nil
}

// AcceptSmux serves a session over conn and waits for the peer's control stream.
func AcceptSmux(conn io.ReadWriteCloser) (*SmuxTransport, error) {
	session, err := smux.Server(conn, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create smux server session")
	}
	stream, err := session.AcceptStream()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "failed to accept control stream")
	}
	return &SmuxTransport{StreamTransport: NewStreamTransport(stream), session: session, stream: stream}, nil
}

func (t *SmuxTransport) StreamID() uint32 {
	return t.stream.ID()
}

func (t *SmuxTransport) Close() error {
	t.stream.Close()
	return t.session.Close()
}
