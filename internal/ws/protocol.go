// Package ws is the websocket transport: it decodes client requests, drives
// one session per connection and writes queued events back to the socket.
package ws

import (
	"encoding/json"

	"roomrelay/backend/internal/broadcast"
)

// Client requests.
const (
	EventJoinRoom    = "join room"
	EventLeaveRoom   = "leave room"
	EventChatMessage = broadcast.EventChatMessage
	EventAck         = "ack"
)

// Inbound is a frame sent by a client. Ack, when present, asks for an
// acknowledgement frame carrying the same id.
type Inbound struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Ack answers an Inbound frame.
type Ack struct {
	Event string `json:"event"`
	Ack   int64  `json:"ack"`
	Data  any    `json:"data"`
}

type JoinRequest struct {
	RoomID   uint   `json:"roomId"`
	Username string `json:"username"`
}

type LeaveRequest struct {
	RoomID uint `json:"roomId"`
}

type ChatRequest struct {
	Content      string `json:"content"`
	RoomID       uint   `json:"roomId"`
	Username     string `json:"username"`
	ClientOffset string `json:"clientOffset"`
}

type JoinAck struct {
	Success   bool   `json:"success"`
	RoomName  string `json:"roomName,omitempty"`
	UserCount int    `json:"userCount,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MessageAck struct {
	Error string `json:"error,omitempty"`
}
