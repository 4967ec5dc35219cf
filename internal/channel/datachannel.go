package channel

import (
	"context"
	"io"
	"sync"

	"github.com/babelcloud/holocast/internal/util"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// DataChannelLabel names the data channel that carries holocast messages.
const DataChannelLabel = "holocast"

// NewWebRTCAPI returns a pion API that logs through slog. Loopback
// candidates are enabled so both ends may live on one host.
func NewWebRTCAPI() *webrtc.API {
	s := webrtc.SettingEngine{LoggerFactory: util.LoggerFactory{}}
	s.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(s))
}

// DataChannelTransport adapts an ordered WebRTC data channel. Frames that
// arrive while nobody reads are queued.
type DataChannelTransport struct {
	dc     *webrtc.DataChannel
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewDataChannelTransport(dc *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{
		dc:     dc,
		frames: make(chan []byte, inboxSize),
		done:   make(chan struct{}),
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case t.frames <- msg.Data:
		case <-t.done:
		}
	})
	dc.OnClose(func() {
		t.markClosed()
	})
	return t
}

func (t *DataChannelTransport) markClosed() {
	t.once.Do(func() { close(t.done) })
}

func (t *DataChannelTransport) WriteFrame(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return errors.Errorf("frame of %d bytes exceeds limit %d", len(frame), MaxFrameSize)
	}
	if err := t.dc.SendText(string(frame)); err != nil {
		return errors.Wrapf(err, "failed to send on data channel %s", t.dc.Label())
	}
	return nil
}

func (t *DataChannelTransport) ReadFrame() ([]byte, error) {
	select {
	case f := <-t.frames:
		return f, nil
	case <-t.done:
		select {
		case f := <-t.frames:
			return f, nil
		default:
			return nil, io.EOF
		}
	}
}

func (t *DataChannelTransport) Close() error {
	t.markClosed()
	return t.dc.Close()
}

// ConnectPeers performs a complete offer/answer exchange between two peer
// connections owned by this process. Candidates are gathered up front so no
// trickle signaling is needed.
func ConnectPeers(offerer, answerer *webrtc.PeerConnection) error {
	offer, err := offerer.CreateOffer(nil)
	if err != nil {
		return errors.Wrap(err, "failed to create offer")
	}
	gathered := webrtc.GatheringCompletePromise(offerer)
	if err := offerer.SetLocalDescription(offer); err != nil {
		return errors.Wrap(err, "failed to set local offer")
	}
	<-gathered

	if err := answerer.SetRemoteDescription(*offerer.LocalDescription()); err != nil {
		return errors.Wrap(err, "failed to apply offer")
	}
	answer, err := answerer.CreateAnswer(nil)
	if err != nil {
		return errors.Wrap(err, "failed to create answer")
	}
	gathered = webrtc.GatheringCompletePromise(answerer)
	if err := answerer.SetLocalDescription(answer); err != nil {
		return errors.Wrap(err, "failed to set local answer")
	}
	<-gathered

	return errors.Wrap(offerer.SetRemoteDescription(*answerer.LocalDescription()), "failed to apply answer")
}

// LoopbackPair is two peer connections in one process joined by an open
// holocast data channel.
type LoopbackPair struct {
	Offerer, Answerer *DataChannelTransport
	peers             [2]*webrtc.PeerConnection
}

// NewLoopbackPair connects two local peers and waits until both ends of
// the data channel are open.
func NewLoopbackPair(ctx context.Context) (*LoopbackPair, error) {
	api := NewWebRTCAPI()
	offerer, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create offering peer")
	}
	answerer, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		offerer.Close()
		return nil, errors.Wrap(err, "failed to create answering peer")
	}
	pair := &LoopbackPair{peers: [2]*webrtc.PeerConnection{offerer, answerer}}

	remote := make(chan *DataChannelTransport, 1)
	answerer.OnDataChannel(func(dc *webrtc.DataChannel) {
		t := NewDataChannelTransport(dc)
		dc.OnOpen(func() { remote <- t })
	})

	dc, err := offerer.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		pair.Close()
		return nil, errors.Wrap(err, "failed to create data channel")
	}
	local := NewDataChannelTransport(dc)
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	if err := ConnectPeers(offerer, answerer); err != nil {
		pair.Close()
		return nil, err
	}

	select {
	case <-opened:
	case <-ctx.Done():
		pair.Close()
		return nil, errors.Wrap(ctx.Err(), "data channel did not open")
	}
	select {
	case pair.Answerer = <-remote:
	case <-ctx.Done():
		pair.Close()
		return nil, errors.Wrap(ctx.Err(), "remote data channel did not open")
	}
	pair.Offerer = local
	return pair, nil
}

func (p *LoopbackPair) Close() error {
	var first error
	for _, pc := range p.peers {
		if err := pc.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
