package models

import (
	"strings"
	"time"
)

// MaxContentLength bounds the length of a message body, in runes.
const MaxContentLength = 255

// Message represents a chat message posted to a room.
// Messages are immutable once stored and expire after the retention TTL.
type Message struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RoomID       uint      `gorm:"not null;index" json:"roomId" validate:"required"`
	Content      string    `gorm:"size:1024;not null" json:"content" validate:"required,max=255"`
	Username     string    `gorm:"size:100" json:"username,omitempty" validate:"max=100"`
	ClientOffset string    `gorm:"size:255;not null;uniqueIndex" json:"clientOffset" validate:"required,max=255"`
	Sender       string    `gorm:"size:64" json:"sender,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index" json:"createdAt"`

	Room Room `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-" validate:"-"`
}

// NewMessage builds a validated, not yet stored message. clientOffset is the
// idempotency key and must be unique across all messages.
func NewMessage(roomID uint, content, username, clientOffset, sender string, createdAt time.Time) (Message, error) {
	m := Message{
		RoomID:       roomID,
		Content:      strings.TrimSpace(content),
		Username:     strings.TrimSpace(username),
		ClientOffset: clientOffset,
		Sender:       sender,
		CreatedAt:    createdAt.UTC(),
	}
	if err := validate.Struct(m); err != nil {
		return Message{}, newValidationError(err)
	}
	return m, nil
}

// ExpiresAt returns the instant at which the message must be gone given ttl.
func (m Message) ExpiresAt(ttl time.Duration) time.Time {
	return m.CreatedAt.Add(ttl)
}
