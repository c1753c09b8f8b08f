//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"

	"roomrelay/backend/internal/models"
)

var (
	// ErrDuplicateKey is returned when a unique constraint (message client
	// offset or room name) rejects an insert.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
)

// Store persists rooms and messages.
type Store interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	// ListRecentMessages returns up to limit of the newest messages of a room, oldest first.
	ListRecentMessages(ctx context.Context, roomID uint, limit int) ([]models.Message, error)
	FindMessageByID(ctx context.Context, id uint) (models.Message, error)
	DeleteMessage(ctx context.Context, id uint) (bool, error)
	DeleteMessagesByRoom(ctx context.Context, roomID uint) (int64, error)
	// DeleteMessages removes every message, or only those of roomID when set.
	DeleteMessages(ctx context.Context, roomID *uint) (int64, error)
	ListAllMessages(ctx context.Context) ([]models.Message, error)
	ListMessageIDs(ctx context.Context, roomID *uint) ([]uint, error)
	// PageMessages returns one page of messages, newest first, and the total count.
	PageMessages(ctx context.Context, roomID *uint, page, limit int) ([]models.Message, int64, error)

	InsertRoom(ctx context.Context, room *models.Room) error
	ListRooms(ctx context.Context) ([]models.Room, error)
	FindRoomByID(ctx context.Context, id uint) (models.Room, error)
	DeleteRoom(ctx context.Context, id uint) (bool, error)
	CountRooms(ctx context.Context) (int64, error)
	// EnsureDefaultRoom creates a room named name when no room exists yet.
	EnsureDefaultRoom(ctx context.Context, name string) (bool, error)
}
