package models

import (
	"strings"
	"time"
)

// Room represents a named chat room. Names are unique.
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name" validate:"required,max=100"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRoom builds a validated room with a trimmed name.
func NewRoom(name string) (Room, error) {
	r := Room{Name: strings.TrimSpace(name)}
	if err := validate.Struct(r); err != nil {
		return Room{}, newValidationError(err)
	}
	return r, nil
}
