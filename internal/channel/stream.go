package channel

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxFrameSize bounds a single message frame.
const MaxFrameSize = 1 << 20

// StreamTransport frames messages over a byte stream as a big-endian
// uint32 length followed by the payload.
type StreamTransport struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
}

func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{rwc: rwc, reader: bufio.NewReader(rwc)}
}

func (s *StreamTransport) WriteFrame(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return errors.Errorf("frame of %d bytes exceeds limit %d", len(frame), MaxFrameSize)
	}
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)
	if _, err := s.rwc.Write(buf); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

func (s *StreamTransport) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(s.reader, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, errors.Errorf("peer announced %d byte frame, limit is %d", n, MaxFrameSize)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(s.reader, frame); err != nil {
		return nil, errors.Wrap(err, "truncated frame")
	}
	return frame, nil
}

func (s *StreamTransport) Close() error {
	return s.rwc.Close()
}
