package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/store"
	"roomrelay/backend/internal/testhelpers"
)

func newRoom(t *testing.T, s store.Store, name string) models.Room {
	t.Helper()
	room, err := models.NewRoom(name)
	require.NoError(t, err)
	require.NoError(t, s.InsertRoom(context.Background(), &room))
	return room
}

func newMessage(t *testing.T, s store.Store, roomID uint, content, key string, at time.Time) models.Message {
	t.Helper()
	msg, err := models.NewMessage(roomID, content, "Ada", key, "conn", at)
	require.NoError(t, err)
	require.NoError(t, s.InsertMessage(context.Background(), &msg))
	return msg
}

func TestGormStore_InsertMessage_AssignsIDAndRejectsDuplicateKey(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := testhelpers.NewStore(t)
	room := newRoom(t, s, "General")

	msg := newMessage(t, s, room.ID, "hi", "k1", time.Now())
	req.NotZero(msg.ID)

	// When the same idempotency key is inserted again
	dup, err := models.NewMessage(room.ID, "hi again", "", "k1", "conn", time.Now())
	req.NoError(err)
	err = s.InsertMessage(ctx, &dup)

	// Then the store reports a duplicate and keeps a single row
	req.ErrorIs(err, store.ErrDuplicateKey)
	all, err := s.ListAllMessages(ctx)
	req.NoError(err)
	req.Len(all, 1)
}

func TestGormStore_ListRecentMessages_OldestFirstWithLimit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := testhelpers.NewStore(t)
	room := newRoom(t, s, "General")
	other := newRoom(t, s, "Other")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		newMessage(t, s, room.ID, fmt.Sprintf("m%d", i), fmt.Sprintf("k%d", i), base.Add(time.Duration(i)*time.Minute))
	}
	newMessage(t, s, other.ID, "elsewhere", "kx", base)

	messages, err := s.ListRecentMessages(ctx, room.ID, 3)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal([]string{"m2", "m3", "m4"}, []string{messages[0].Content, messages[1].Content, messages[2].Content})
}

func TestGormStore_DeleteMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := testhelpers.NewStore(t)
	room := newRoom(t, s, "General")
	msg := newMessage(t, s, room.ID, "hi", "k1", time.Now())

	deleted, err := s.DeleteMessage(ctx, msg.ID)
	req.NoError(err)
	req.True(deleted)

	deleted, err = s.DeleteMessage(ctx, msg.ID)
	req.NoError(err)
	req.False(deleted)

	_, err = s.FindMessageByID(ctx, msg.ID)
	req.ErrorIs(err, store.ErrNotFound)
}

func TestGormStore_DeleteMessages_Scoped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := testhelpers.NewStore(t)
	a := newRoom(t, s, "A")
	b := newRoom(t, s, "B")
	newMessage(t, s, a.ID, "1", "k1", time.Now())
	newMessage(t, s, a.ID, "2", "k2", time.Now())
	newMessage(t, s, b.ID, "3", "k3", time.Now())

	ids, err := s.ListMessageIDs(ctx, &a.ID)
	req.NoError(err)
	req.Len(ids, 2)

	n, err := s.DeleteMessagesByRoom(ctx, a.ID)
	req.NoError(err)
	req.EqualValues(2, n)

	n, err = s.DeleteMessages(ctx, nil)
	req.NoError(err)
	req.EqualValues(1, n)
}

func TestGormStore_PageMessages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := testhelpers.NewStore(t)
	room := newRoom(t, s, "General")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		newMessage(t, s, room.ID, fmt.Sprintf("m%d", i), fmt.Sprintf("k%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	page, total, err := s.PageMessages(ctx, &room.ID, 2, 2)
	req.NoError(err)
	req.EqualValues(5, total)
	req.Len(page, 2)
	// Newest first: m4 m3 | m2 m1 | m0
	req.Equal("m2", page[0].Content)
	req.Equal("m1", page[1].Content)
}

func TestGormStore_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := testhelpers.NewStore(t)

	// Given an empty store the default room is bootstrapped once
	created, err := s.EnsureDefaultRoom(ctx, "General")
	req.NoError(err)
	req.True(created)
	created, err = s.EnsureDefaultRoom(ctx, "General")
	req.NoError(err)
	req.False(created)

	// Room names are unique
	dup, err := models.NewRoom("General")
	req.NoError(err)
	req.ErrorIs(s.InsertRoom(ctx, &dup), store.ErrDuplicateKey)

	rooms, err := s.ListRooms(ctx)
	req.NoError(err)
	req.Len(rooms, 1)

	found, err := s.FindRoomByID(ctx, rooms[0].ID)
	req.NoError(err)
	req.Equal("General", found.Name)

	n, err := s.CountRooms(ctx)
	req.NoError(err)
	req.EqualValues(1, n)

	deleted, err := s.DeleteRoom(ctx, found.ID)
	req.NoError(err)
	req.True(deleted)
	_, err = s.FindRoomByID(ctx, found.ID)
	req.ErrorIs(err, store.ErrNotFound)
}
