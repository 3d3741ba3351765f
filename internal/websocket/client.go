package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16 // 64 KB, inbound frames are control only
)

type Client struct {
	ID       string
	UserID   string
	RoomID   string
	ClientIP    string
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time

	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	lastSeen  atomic.Int64
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, roomID string) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)
	c := &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, hub.config.SendBuffer),
		ConnectedAt: time.Now(),
		hub:         hub,
		ctx:         ctx,
		cancel:      cancel,
	}
	c.touch()
	return c
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Close is idempotent; the read pump unregisters the client once the conn drops.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.Conn.Close()
	})
}

func (c *Client) IsClientActive() bool {
	return c.ctx.Err() == nil
}

func (c *Client) GetLastSeen() time.Time {
	return time.UnixMilli(c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixMilli())
}

// writePump: take data from c.Send and send to socket + ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			if _, err := w.Write(msg); err != nil {
				_ = w.Close()
				return
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump: keep-alive plus the tiny inbound protocol (ping)
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.RoomID, c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("clientID", c.ID).Msg("ws: read closed unexpectedly")
			}
			return
		}
		c.touch()

		var in chat_dto.WSIncomingMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Debug().Err(err).Str("clientID", c.ID).Msg("ws: ignoring malformed frame")
			continue
		}

		if in.Type == "ping" {
			c.deliver(chat_dto.WSOutgoingMessage{Event: EventPong, RoomID: c.RoomID})
		}
	}
}

func (c *Client) deliver(msg chat_dto.WSOutgoingMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	case <-c.ctx.Done():
	default:
	}
}
