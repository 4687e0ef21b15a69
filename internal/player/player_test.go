package player

import (
	"context"
	"ctchen222/tictactoe-solo/pkg/proto"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	messageType int
	data        []byte
}

type fakeConn struct {
	mu      sync.Mutex
	written []frame
	reads   chan frame
	closed  bool
	onPong  func(string) error
	limit   int64
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan frame, 8)}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, frame{messageType, data})
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	fr, ok := <-f.reads
	if !ok {
		return 0, nil, io.EOF
	}
	return fr.messageType, fr.data, nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(limit int64)         { f.limit = limit }

func (f *fakeConn) SetPongHandler(h func(string) error) { f.onPong = h }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) frames(messageType int) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frame
	for _, fr := range f.written {
		if fr.messageType == messageType {
			out = append(out, fr)
		}
	}
	return out
}

func TestPlayer_SendAndWritePump(t *testing.T) {
	conn := newFakeConn()
	p := NewPlayer("session-1", conn)

	// Given two queued messages
	require.NoError(t, p.Send(&proto.ServerToClientMessage{Type: proto.TypeUpdate}))
	require.NoError(t, p.Send(&proto.ServerToClientMessage{Type: proto.TypeError, Reason: "cell is required"}))

	// When the pump runs and the player is closed
	done := make(chan error, 1)
	go func() { done <- p.WritePump(context.Background(), time.Hour) }()
	p.Close()
	require.NoError(t, <-done)

	// Then both messages were written in order, followed by a close frame
	texts := conn.frames(websocket.TextMessage)
	require.Len(t, texts, 2)

	var second proto.ServerToClientMessage
	require.NoError(t, json.Unmarshal(texts[1].data, &second))
	assert.Equal(t, proto.TypeError, second.Type)
	assert.Equal(t, "cell is required", second.Reason)
	assert.Len(t, conn.frames(websocket.CloseMessage), 1)

	// And sending after close fails
	assert.Error(t, p.Send(&proto.ServerToClientMessage{Type: proto.TypeUpdate}))
}

func TestPlayer_WritePumpPings(t *testing.T) {
	conn := newFakeConn()
	p := NewPlayer("session-1", conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.WritePump(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return len(conn.frames(websocket.PingMessage)) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPlayer_SendBufferFull(t *testing.T) {
	p := NewPlayer("session-1", newFakeConn())

	for range sendBuffer {
		require.NoError(t, p.Send(&proto.ServerToClientMessage{Type: proto.TypeUpdate}))
	}
	assert.ErrorIs(t, p.Send(&proto.ServerToClientMessage{Type: proto.TypeUpdate}), ErrSendBufferFull)
}

func TestPlayer_ReadPump(t *testing.T) {
	conn := newFakeConn()
	p := NewPlayer("session-1", conn)

	conn.reads <- frame{websocket.TextMessage, []byte(`{"type":"start"}`)}
	conn.reads <- frame{websocket.BinaryMessage, []byte{0x1}}
	conn.reads <- frame{websocket.TextMessage, []byte(`{"type":"move","cell":4}`)}
	close(conn.reads)

	var got []string
	err := p.ReadPump(time.Second, func(msg []byte) { got = append(got, string(msg)) })

	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, []string{`{"type":"start"}`, `{"type":"move","cell":4}`}, got)
	assert.Equal(t, int64(maxReadSize), conn.limit)
	require.NotNil(t, conn.onPong)
	assert.NoError(t, conn.onPong(""))
}
