package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"roomrelay/backend/internal/broadcast"
	"roomrelay/backend/internal/hub"
	"roomrelay/backend/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	requestTimeout = 5 * time.Second
)

// client owns one websocket connection. readPump runs in the upgrading
// goroutine, writePump in its own.
type client struct {
	conn    *websocket.Conn
	send    hub.Client
	session *session.Session
	hub     *hub.Hub
	limiter *rateLimiter
	log     *slog.Logger
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.session.Disconnect(ctx)
		// The hub no longer references send once the session is disconnected.
		close(c.send)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.log.Warn("Invalid frame", "error", err)
			continue
		}
		if !c.limiter.allow() {
			c.log.Warn("Rate limit exceeded, discarding frame", "event", in.Event)
			c.ack(in.Ack, MessageAck{Error: "Rate limit exceeded"})
			continue
		}
		c.dispatch(ctx, in)
	}
}

func (c *client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived),
		errors.Is(err, io.EOF):
		c.log.Debug("Client disconnected", "reason", err)
	default:
		c.log.Warn("Websocket read error", "error", err)
	}
}

func (c *client) dispatch(ctx context.Context, in Inbound) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch in.Event {
	case EventJoinRoom:
		var req JoinRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			c.ack(in.Ack, JoinAck{Error: "Invalid join request"})
			return
		}
		res, err := c.session.JoinRoom(ctx, req.RoomID, req.Username)
		if err != nil {
			c.ack(in.Ack, JoinAck{Error: c.userError("join room", err)})
			return
		}
		c.ack(in.Ack, JoinAck{Success: true, RoomName: res.RoomName, UserCount: res.UserCount})

	case EventLeaveRoom:
		var req LeaveRequest
		_ = json.Unmarshal(in.Data, &req)
		current, ok := c.session.Room()
		if !ok || (req.RoomID != 0 && req.RoomID != current) {
			return
		}
		if err := c.session.LeaveRoom(ctx); err != nil {
			c.log.Debug("Leave ignored", "error", err)
		}

	case EventChatMessage:
		var req ChatRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			c.ack(in.Ack, MessageAck{Error: "Invalid message format"})
			return
		}
		if current, ok := c.session.Room(); ok && req.RoomID != 0 && req.RoomID != current {
			c.ack(in.Ack, MessageAck{Error: "Not a member of this room"})
			return
		}
		if _, err := c.session.SendMessage(ctx, req.Content, req.Username, req.ClientOffset); err != nil {
			c.ack(in.Ack, MessageAck{Error: c.userError("chat message", err)})
			return
		}
		c.ack(in.Ack, MessageAck{})

	default:
		c.log.Debug("Unknown event", "event", in.Event)
	}
}

// userError turns a session error into the text shown to the client.
func (c *client) userError(op string, err error) string {
	switch {
	case errors.Is(err, broadcast.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, broadcast.ErrValidation):
		return err.Error()
	case errors.Is(err, session.ErrNotInRoom):
		return "Join a room first"
	default:
		c.log.Error("Request failed", "op", op, "error", err)
		return "Internal error"
	}
}

func (c *client) ack(id *int64, data any) {
	if id == nil {
		return
	}
	raw, err := json.Marshal(Ack{Event: EventAck, Ack: *id, Data: data})
	if err != nil {
		c.log.Error("Unable to encode ack", "error", err)
		return
	}
	c.hub.SendRaw(c.session.ID(), raw)
}

// writePump writes every queued event as its own text frame and pings the
// peer. It returns when send is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
