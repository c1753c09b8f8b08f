package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"roomrelay/backend/internal/models"
)

// GormStore is the Store backed by a relational database through gorm.
// The *gorm.DB must be opened with TranslateError enabled so that unique
// violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewGormStore(db *gorm.DB, log *slog.Logger) *GormStore {
	return &GormStore{db: db, log: log}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func (s *GormStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	return translate(s.db.WithContext(ctx).Omit("Room").Create(msg).Error)
}

// ListRecentMessages queries newest first so LIMIT keeps the latest ones, then
// reverses into chronological order.
func (s *GormStore) ListRecentMessages(ctx context.Context, roomID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func (s *GormStore) FindMessageByID(ctx context.Context, id uint) (models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return models.Message{}, translate(err)
	}
	return msg, nil
}

func (s *GormStore) DeleteMessage(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DeleteMessagesByRoom(ctx context.Context, roomID uint) (int64, error) {
	return s.DeleteMessages(ctx, &roomID)
}

func (s *GormStore) DeleteMessages(ctx context.Context, roomID *uint) (int64, error) {
	tx := s.db.WithContext(ctx)
	if roomID != nil {
		tx = tx.Where("room_id = ?", *roomID)
	} else {
		tx = tx.Where("1 = 1")
	}
	res := tx.Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) ListAllMessages(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&messages).Error
	return messages, err
}

func (s *GormStore) ListMessageIDs(ctx context.Context, roomID *uint) ([]uint, error) {
	var ids []uint
	tx := s.db.WithContext(ctx).Model(&models.Message{})
	if roomID != nil {
		tx = tx.Where("room_id = ?", *roomID)
	}
	err := tx.Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) PageMessages(ctx context.Context, roomID *uint, page, limit int) ([]models.Message, int64, error) {
	scoped := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&models.Message{})
		if roomID != nil {
			tx = tx.Where("room_id = ?", *roomID)
		}
		return tx
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.Message
	offset := (page - 1) * limit
	err := scoped().Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (s *GormStore) InsertRoom(ctx context.Context, room *models.Room) error {
	return translate(s.db.WithContext(ctx).Create(room).Error)
}

func (s *GormStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rooms).Error
	return rooms, err
}

func (s *GormStore) FindRoomByID(ctx context.Context, id uint) (models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return models.Room{}, translate(err)
	}
	return room, nil
}

func (s *GormStore) DeleteRoom(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.Room{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CountRooms(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Room{}).Count(&n).Error
	return n, err
}

func (s *GormStore) EnsureDefaultRoom(ctx context.Context, name string) (bool, error) {
	n, err := s.CountRooms(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	room, err := models.NewRoom(name)
	if err != nil {
		return false, err
	}
	if err := s.InsertRoom(ctx, &room); err != nil {
		// Another instance bootstrapped concurrently.
		if errors.Is(err, ErrDuplicateKey) {
			return false, nil
		}
		return false, err
	}
	s.log.Info("Created default room", "name", room.Name, "id", room.ID)
	return true, nil
}
