package player

import (
	"context"
	"ctchen222/tictactoe-solo/pkg/proto"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	sendBuffer  = 16
	maxReadSize = 4096

	DefaultPingInterval = 30 * time.Second
)

var ErrSendBufferFull = errors.New("player send buffer is full")

// Connection is an interface that abstracts the websocket connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Player is the browser connected to a session over a websocket.
// All writes go through the single WritePump goroutine.
type Player struct {
	SessionID string
	Conn      Connection

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayer wraps conn for the player of sessionID.
func NewPlayer(sessionID string, conn Connection) *Player {
	return &Player{
		SessionID: sessionID,
		Conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// Send queues a message for the write pump.
func (p *Player) Send(message *proto.ServerToClientMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", message.Type, err)
	}

	select {
	case <-p.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case p.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// WritePump writes queued messages and pings until ctx ends or the player is closed.
func (p *Player) WritePump(ctx context.Context, pingInterval time.Duration) error {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.writeClose()
			return ctx.Err()
		case <-p.done:
			p.drain()
			p.writeClose()
			return nil
		case data := <-p.send:
			if err := p.write(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// ReadPump hands every text message to handle until the connection fails.
// A pong must arrive within pongWait of the previous one.
func (p *Player) ReadPump(pingInterval time.Duration, handle func([]byte)) error {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	pongWait := pingInterval * 10 / 9

	p.Conn.SetReadLimit(maxReadSize)
	_ = p.Conn.SetReadDeadline(time.Now().Add(pongWait))
	p.Conn.SetPongHandler(func(string) error {
		return p.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, msg, err := p.Conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(msg)
	}
}

// Close stops the write pump after it flushes queued messages.
func (p *Player) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Player) drain() {
	for {
		select {
		case data := <-p.send:
			if err := p.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *Player) write(messageType int, data []byte) error {
	_ = p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.Conn.WriteMessage(messageType, data)
}

func (p *Player) writeClose() {
	_ = p.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
