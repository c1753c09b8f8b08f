// Package session holds the per-connection state machine: which room a
// connection is in, under which name, and whether it is still open.
package session

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"roomrelay/backend/internal/broadcast"
	"roomrelay/backend/internal/hub"
	"roomrelay/backend/internal/models"
)

var (
	ErrNotInRoom    = errors.New("not in a room")
	ErrDisconnected = errors.New("session disconnected")
)

type State int

const (
	StateConnected State = iota
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// JoinResult is acknowledged to the client after a successful join.
type JoinResult struct {
	RoomName  string
	UserCount int
}

// Session is one open connection. Its methods are serialized, so a
// connection never observes its own operations interleaved.
type Session struct {
	id     string
	router *broadcast.Router
	hub    *hub.Hub
	log    *slog.Logger

	mu    sync.Mutex
	state State
	room  uint
	name  string
}

// New registers client under connID with the hub and returns a session in
// the Connected state.
func New(connID string, client hub.Client, router *broadcast.Router, h *hub.Hub, log *slog.Logger) *Session {
	h.Register(connID, client)
	return &Session{
		id:     connID,
		router: router,
		hub:    h,
		log:    log.With("conn", connID),
		state:  StateConnected,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the current room, if any.
func (s *Session) Room() (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.state == StateInRoom
}

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// JoinRoom moves the connection into roomID. An unknown room leaves the
// current membership untouched. The connection joins before the history is
// read, so a message posted meanwhile is still delivered live.
// The history goes to this connection only, then the new member count to
// the whole room.
func (s *Session) JoinRoom(ctx context.Context, roomID uint, displayName string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return JoinResult{}, ErrDisconnected
	}

	room, err := s.router.FindRoom(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}

	rejoin := s.state == StateInRoom && s.room == roomID
	if s.state == StateInRoom && !rejoin {
		s.leaveLocked(ctx)
		s.state = StateConnected
	}
	count := s.hub.Join(roomID, s.id)

	history, err := s.router.LoadHistory(ctx, roomID, broadcast.DefaultHistoryLimit)
	if err != nil {
		if !rejoin {
			s.hub.Leave(roomID, s.id)
		}
		return JoinResult{}, err
	}

	s.state = StateInRoom
	s.room = roomID
	s.name = displayName
	if s.name == "" {
		s.name = GuestName(s.id)
	}

	if history == nil {
		history = []models.Message{}
	}
	s.hub.SendTo(s.id, hub.Event{Type: broadcast.EventChatHistory, Payload: history})
	s.router.PublishRoomUsers(ctx, roomID, count)

	s.log.Info("Joined room", "room", roomID, "name", s.name, "users", count)
	return JoinResult{RoomName: room.Name, UserCount: count}, nil
}

// LeaveRoom returns the connection to the Connected state.
func (s *Session) LeaveRoom(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateDisconnected:
		return ErrDisconnected
	case StateConnected:
		return ErrNotInRoom
	}
	s.leaveLocked(ctx)
	s.state = StateConnected
	return nil
}

// SendMessage posts content to the current room under username, or under
// the session's name when username is empty.
func (s *Session) SendMessage(ctx context.Context, content, username, clientOffset string) (broadcast.PostResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateDisconnected:
		return broadcast.PostResult{}, ErrDisconnected
	case StateConnected:
		return broadcast.PostResult{}, ErrNotInRoom
	}
	return s.router.PostMessage(ctx, broadcast.PostInput{
		RoomID:       s.room,
		Content:      content,
		Username:     cmp.Or(strings.TrimSpace(username), s.name),
		ClientOffset: clientOffset,
		Sender:       s.id,
	})
}

// Disconnect leaves the current room and unregisters the connection. It is
// safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return
	}
	if s.state == StateInRoom {
		s.leaveLocked(ctx)
	}
	s.state = StateDisconnected
	s.hub.Unregister(s.id)
	s.log.Debug("Session closed")
}

func (s *Session) leaveLocked(ctx context.Context) {
	count := s.hub.Leave(s.room, s.id)
	s.router.PublishRoomUsers(ctx, s.room, count)
	s.log.Info("Left room", "room", s.room, "users", count)
	s.room = 0
}

// GuestName is the display name used when a client joins without one.
func GuestName(connID string) string {
	if len(connID) > 6 {
		connID = connID[:6]
	}
	return "Guest_" + connID
}
