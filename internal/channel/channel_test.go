package channel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAccessors(t *testing.T) {
	m := Message{
		"width":  float64(512),
		"half":   1.5,
		"height": "256",
		"id":     "7",
		"big":    1e12,
		"flag":   true,
	}

	n, ok := m.Int("width")
	assert.True(t, ok)
	assert.Equal(t, 512, n)

	_, ok = m.Int("half")
	assert.False(t, ok, "fractional values are not ints")

	n, ok = m.Int("height")
	assert.True(t, ok)
	assert.Equal(t, 256, n)

	_, ok = m.Int("big")
	assert.False(t, ok)

	s, ok := m.String("id")
	assert.True(t, ok)
	assert.Equal(t, "7", s)

	_, ok = m.String("width")
	assert.False(t, ok)

	f, ok := m.Float("half")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	assert.True(t, m.Has("flag"))
	assert.False(t, m.Has("missing"))
	assert.NoError(t, m.Validate())

	assert.Error(t, Message{"nested": map[string]any{"a": 1}}.Validate())
	assert.Error(t, Message{"list": []int{1}}.Validate())
}

func pipeEndpoints(t *testing.T, left, right Handler) (*Endpoint, *Endpoint) {
	t.Helper()
	a, b := net.Pipe()
	return startPair(t, NewStreamTransport(a), NewStreamTransport(b), left, right)
}

func startPair(t *testing.T, ta, tb Transport, left, right Handler) (*Endpoint, *Endpoint) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ea := NewEndpoint("left", ta, left)
	eb := NewEndpoint("right", tb, right)

	var wg sync.WaitGroup
	wg.Go(func() { ea.Run(ctx) })
	wg.Go(func() { eb.Run(ctx) })
	t.Cleanup(func() {
		cancel()
		ea.Close()
		eb.Close()
		wg.Wait()
	})
	return ea, eb
}

func TestRequestGetsDefaultAck(t *testing.T) {
	var got Message
	handler := HandlerFunc(func(_ context.Context, msg Message) (Message, error) {
		got = msg
		return nil, nil
	})
	client, _ := pipeEndpoints(t, nil, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := client.Request(ctx, Message{"apptype": "viewer", "width": 512})
	require.NoError(t, err)
	assert.Equal(t, "OK", reply["Status"])
	assert.Equal(t, "viewer", got["apptype"])
	assert.Equal(t, float64(512), got["width"])
}

func TestUnknownMessagesAreAcknowledged(t *testing.T) {
	client, _ := pipeEndpoints(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := client.Request(ctx, Message{"Something": "else"})
	require.NoError(t, err)
	assert.Equal(t, Ack(), reply)
}

func TestHandlerErrorBecomesErrorReply(t *testing.T) {
	handler := HandlerFunc(func(context.Context, Message) (Message, error) {
		return nil, errors.New("bad apptype")
	})
	client, _ := pipeEndpoints(t, nil, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := client.Request(ctx, Message{})
	require.NoError(t, err)
	assert.Equal(t, "Error", reply["Status"])
	assert.Equal(t, "bad apptype", reply["Error"])
}

func TestInboundRequestsAreHandledInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	handler := HandlerFunc(func(_ context.Context, msg Message) (Message, error) {
		n, _ := msg.Int("seq")
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
		return nil, nil
	})
	client, _ := pipeEndpoints(t, nil, handler)

	for i := 0; i < 50; i++ {
		require.NoError(t, client.Notify(Message{"seq": i}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Request(ctx, Message{"seq": 50})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 51)
	for i, n := range seen {
		assert.Equal(t, i, n)
	}
}

func TestBothDirections(t *testing.T) {
	echo := func(tag string) Handler {
		return HandlerFunc(func(_ context.Context, msg Message) (Message, error) {
			return Message{"Status": "OK", "from": tag}, nil
		})
	}
	left, right := pipeEndpoints(t, echo("left"), echo("right"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := left.Request(ctx, Message{})
	require.NoError(t, err)
	assert.Equal(t, "right", r["from"])

	r, err = right.Request(ctx, Message{})
	require.NoError(t, err)
	assert.Equal(t, "left", r["from"])
}

func TestRequestAfterPeerClosedIsDeliveryError(t *testing.T) {
	client, server := pipeEndpoints(t, nil, nil)
	require.NoError(t, server.Close())

	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not observe peer close")
	}

	_, err := client.Request(context.Background(), Message{"x": 1})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRequestTimeout(t *testing.T) {
	block := make(chan struct{})
	handler := HandlerFunc(func(ctx context.Context, msg Message) (Message, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, nil
	})
	client, _ := pipeEndpoints(t, nil, handler)
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Request(ctx, Message{})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNonScalarMessageIsRejected(t *testing.T) {
	client, _ := pipeEndpoints(t, nil, nil)
	err := client.Notify(Message{"nested": Message{}})
	var de *DeliveryError
	assert.ErrorAs(t, err, &de)
}

func TestStreamTransportRejectsOversizedFrames(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	st := NewStreamTransport(a)
	assert.Error(t, st.WriteFrame(make([]byte, MaxFrameSize+1)))
}

func TestSmuxTransport(t *testing.T) {
	a, b := net.Pipe()

	accepted := make(chan *SmuxTransport, 1)
	go func() {
		st, err := AcceptSmux(b)
		if err == nil {
			accepted <- st
		}
		close(accepted)
	}()

	client, err := DialSmux(a)
	require.NoError(t, err)

	server, ok := <-accepted
	require.True(t, ok)

	left, _ := startPair(t, client, server, nil, HandlerFunc(func(context.Context, Message) (Message, error) {
		return Message{"Status": "OK", "stream": int(server.StreamID())}, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := left.Request(ctx, Message{})
	require.NoError(t, err)
	assert.Equal(t, "OK", reply["Status"])
}

func TestWebSocketTransport(t *testing.T) {
	serverSide := make(chan *WebSocketTransport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := Upgrade(w, r)
		if err != nil {
			return
		}
		serverSide <- tr
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	left, _ := startPair(t, client, <-serverSide, nil, HandlerFunc(func(_ context.Context, msg Message) (Message, error) {
		fps, _ := msg.Int("fps")
		return Message{"Status": "OK", "echo": fps}, nil
	}))

	reply, err := left.Request(ctx, Message{"fps": 30})
	require.NoError(t, err)
	assert.Equal(t, float64(30), reply["echo"])
}

func TestDataChannelTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pair, err := NewLoopbackPair(ctx)
	require.NoError(t, err)
	defer pair.Close()

	left, _ := startPair(t, pair.Offerer, pair.Answerer, nil, HandlerFunc(func(_ context.Context, msg Message) (Message, error) {
		key, _ := msg.Int("Key")
		return Message{"Status": "OK", "Key": key}, nil
	}))

	reply, err := left.Request(ctx, Message{"KeyboardMessage": "KeyPress", "Key": 65})
	require.NoError(t, err)
	assert.Equal(t, float64(65), reply["Key"])
}
