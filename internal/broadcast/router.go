// Package broadcast turns accepted messages and administrative changes into
// stored state, retention timers and room-scoped events, in that order.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"roomrelay/backend/internal/fanout"
	"roomrelay/backend/internal/hub"
	"roomrelay/backend/internal/metrics"
	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/store"
)

// Events pushed to clients.
const (
	EventChatMessage     = "chat message"
	EventChatHistory     = "chat history"
	EventRoomUsers       = "room users update"
	EventMessageDeleted  = "message deleted"
	EventMessagesCleared = "messages cleared"
	EventRoomDeleted     = "room deleted"
)

// DefaultHistoryLimit is the number of messages replayed on join.
const DefaultHistoryLimit = 50

var (
	ErrValidation      = errors.New("validation failed")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrMessageNotFound = errors.New("message not found")
)

// Expirer arms and disarms message expiration.
type Expirer interface {
	Schedule(messageID, roomID uint, expireAt time.Time)
	Cancel(messageID uint)
	ExpireAt(createdAt time.Time) time.Time
}

// PostInput is a message submitted by a connection.
type PostInput struct {
	RoomID       uint
	Content      string
	Username     string
	ClientOffset string
	Sender       string
}

// PostResult is the outcome of PostMessage. Duplicate reports a retried
// submission that was absorbed without storing or broadcasting anything.
type PostResult struct {
	Message   models.Message
	Duplicate bool
}

// RoomSummary is a room with its live member count.
type RoomSummary struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UserCount int       `json:"userCount"`
}

// MessageView is a message with the name of its room.
type MessageView struct {
	models.Message
	RoomName string `json:"roomName,omitempty"`
}

type RoomUsers struct {
	RoomID    uint `json:"roomId"`
	UserCount int  `json:"userCount"`
}

type MessagesCleared struct {
	RoomID *uint `json:"roomId,omitempty"`
}

type Router struct {
	store     store.Store
	hub       *hub.Hub
	publisher fanout.Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
	retention Expirer
	now       func() time.Time
}

func NewRouter(st store.Store, h *hub.Hub, publisher fanout.Publisher, m *metrics.Metrics, log *slog.Logger) *Router {
	return &Router{
		store:     st,
		hub:       h,
		publisher: publisher,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// UseRetention attaches the scheduler. It is set after construction because
// the scheduler reports its deletions back to the router.
func (r *Router) UseRetention(e Expirer) {
	r.retention = e
}

// PostMessage validates, stores, arms expiration and broadcasts a message.
func (r *Router) PostMessage(ctx context.Context, in PostInput) (PostResult, error) {
	content := strings.TrimSpace(in.Content)
	switch {
	case content == "":
		return PostResult{}, fmt.Errorf("%w: message content is required", ErrValidation)
	case utf8.RuneCountInString(content) > models.MaxContentLength:
		return PostResult{}, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, models.MaxContentLength)
	case in.RoomID == 0:
		return PostResult{}, fmt.Errorf("%w: room is required", ErrValidation)
	}
	if err := r.roomExists(ctx, in.RoomID); err != nil {
		return PostResult{}, err
	}

	key := in.ClientOffset
	if key == "" {
		key = fmt.Sprintf("%s-%d", in.Sender, r.now().UnixNano())
	}
	msg, err := models.NewMessage(in.RoomID, content, in.Username, key, in.Sender, r.now())
	if err != nil {
		return PostResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := r.store.InsertMessage(ctx, &msg); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			r.metrics.IncDuplicate()
			r.log.Debug("Duplicate message ignored", "room", in.RoomID, "clientOffset", key)
			return PostResult{Duplicate: true}, nil
		}
		return PostResult{}, fmt.Errorf("insert message: %w", err)
	}
	r.metrics.IncPosted()

	if r.retention != nil {
		r.retention.Schedule(msg.ID, msg.RoomID, r.retention.ExpireAt(msg.CreatedAt))
	}
	r.publish(ctx, fanout.Room(msg.RoomID, EventChatMessage, msg))
	return PostResult{Message: msg}, nil
}

// LoadHistory returns up to limit recent messages of a room, oldest first.
func (r *Router) LoadHistory(ctx context.Context, roomID uint, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages, err := r.store.ListRecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messages, nil
}

// DeliverDeletion tells the members of roomID, or everyone when roomID is nil,
// that a message is gone.
func (r *Router) DeliverDeletion(roomID *uint, messageID uint) {
	id := strconv.FormatUint(uint64(messageID), 10)
	env := fanout.Global(EventMessageDeleted, id)
	if roomID != nil {
		env = fanout.Room(*roomID, EventMessageDeleted, id)
	}
	r.publish(context.Background(), env)
}

// PublishRoomUsers broadcasts the member count of a room to its members.
func (r *Router) PublishRoomUsers(ctx context.Context, roomID uint, count int) {
	r.publish(ctx, fanout.Room(roomID, EventRoomUsers, RoomUsers{RoomID: roomID, UserCount: count}))
}

// FindRoom returns a room or ErrRoomNotFound.
func (r *Router) FindRoom(ctx context.Context, roomID uint) (models.Room, error) {
	room, err := r.store.FindRoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find room: %w", err)
	}
	return room, nil
}

func (r *Router) CreateRoom(ctx context.Context, name string) (models.Room, error) {
	room, err := models.NewRoom(name)
	if err != nil {
		return models.Room{}, fmt.Errorf("%w: room name is required and limited to 100 characters", ErrValidation)
	}
	if err := r.store.InsertRoom(ctx, &room); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return models.Room{}, ErrRoomExists
		}
		return models.Room{}, fmt.Errorf("insert room: %w", err)
	}
	r.log.Info("Room created", "room", room.ID, "name", room.Name)
	return room, nil
}

// ListRooms returns every room with its current member count.
func (r *Router) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	counts := r.hub.Counts()
	return lo.Map(rooms, func(room models.Room, _ int) RoomSummary {
		return RoomSummary{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt, UserCount: counts[room.ID]}
	}), nil
}

// DeleteRoom removes a room and its messages and returns how many messages
// went with it. Connections still in the room keep their membership.
func (r *Router) DeleteRoom(ctx context.Context, roomID uint) (int64, error) {
	if _, err := r.FindRoom(ctx, roomID); err != nil {
		return 0, err
	}
	ids, err := r.timedMessageIDs(ctx, &roomID)
	if err != nil {
		return 0, err
	}
	count, err := r.store.DeleteMessagesByRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room messages: %w", err)
	}
	r.cancelTimers(ids)
	deleted, err := r.store.DeleteRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("delete room: %w", err)
	}
	if !deleted {
		return 0, ErrRoomNotFound
	}
	r.log.Info("Room deleted", "room", roomID, "messages", count)
	r.publish(ctx, fanout.Global(EventRoomDeleted, strconv.FormatUint(uint64(roomID), 10)))
	return count, nil
}

// DeleteMessage removes a single message ahead of its expiration.
func (r *Router) DeleteMessage(ctx context.Context, messageID uint) error {
	msg, err := r.store.FindMessageByID(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("find message: %w", err)
	}
	deleted, err := r.store.DeleteMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	r.cancelTimers([]uint{messageID})
	if !deleted {
		return ErrMessageNotFound
	}
	r.DeliverDeletion(&msg.RoomID, messageID)
	return nil
}

// ClearMessages deletes every message, or only those of roomID when set.
func (r *Router) ClearMessages(ctx context.Context, roomID *uint) (int64, error) {
	if roomID != nil {
		if _, err := r.FindRoom(ctx, *roomID); err != nil {
			return 0, err
		}
	}
	ids, err := r.timedMessageIDs(ctx, roomID)
	if err != nil {
		return 0, err
	}
	count, err := r.store.DeleteMessages(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	r.cancelTimers(ids)
	r.log.Info("Messages cleared", "room", roomID, "count", count)

	env := fanout.Global(EventMessagesCleared, MessagesCleared{})
	if roomID != nil {
		env = fanout.Room(*roomID, EventMessagesCleared, MessagesCleared{RoomID: roomID})
	}
	r.publish(ctx, env)
	return count, nil
}

// PageMessages returns one page of messages, newest first, with the total.
func (r *Router) PageMessages(ctx context.Context, roomID *uint, page, limit int) ([]MessageView, int64, error) {
	messages, total, err := r.store.PageMessages(ctx, roomID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("page messages: %w", err)
	}
	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}
	names := lo.SliceToMap(rooms, func(room models.Room) (uint, string) { return room.ID, room.Name })
	return lo.Map(messages, func(m models.Message, _ int) MessageView {
		return MessageView{Message: m, RoomName: names[m.RoomID]}
	}), total, nil
}

func (r *Router) roomExists(ctx context.Context, roomID uint) error {
	_, err := r.FindRoom(ctx, roomID)
	return err
}

// timedMessageIDs lists the messages whose timers must go once they are
// deleted. Timers are only cancelled after a successful delete, so a failed
// delete leaves every message armed. A timer firing in between finds its row
// gone and stays silent.
func (r *Router) timedMessageIDs(ctx context.Context, roomID *uint) ([]uint, error) {
	if r.retention == nil {
		return nil, nil
	}
	ids, err := r.store.ListMessageIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	return ids, nil
}

func (r *Router) cancelTimers(ids []uint) {
	if r.retention == nil {
		return
	}
	for _, id := range ids {
		r.retention.Cancel(id)
	}
}

// publish never fails the caller: the state change is already stored.
func (r *Router) publish(ctx context.Context, env fanout.Envelope) {
	if err := r.publisher.Publish(ctx, env); err != nil {
		r.log.Error("Unable to publish event", "event", env.Event.Type, "error", err)
	}
}
