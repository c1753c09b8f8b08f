package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"roomrelay/backend/internal/broadcast"
	"roomrelay/backend/internal/fanout"
	"roomrelay/backend/internal/hub"
	"roomrelay/backend/internal/models"
	"roomrelay/backend/internal/store"
	"roomrelay/backend/internal/testhelpers"
)

type frame struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"data"`
}

type env struct {
	router *broadcast.Router
	hub    *hub.Hub
}

func newEnv(t *testing.T) env {
	t.Helper()
	return newEnvWithStore(t, testhelpers.NewStore(t))
}

func newEnvWithStore(t *testing.T, st store.Store) env {
	t.Helper()
	h := hub.NewHub(testhelpers.Logger())
	return env{router: broadcast.NewRouter(st, h, fanout.NewLocal(h), nil, testhelpers.Logger()), hub: h}
}

func (e env) room(t *testing.T, name string) uint {
	t.Helper()
	room, err := e.router.CreateRoom(context.Background(), name)
	require.NoError(t, err)
	return room.ID
}

// historyHookStore runs afterHistory once a room history has been read.
type historyHookStore struct {
	store.Store
	afterHistory func() error
}

func (s *historyHookStore) ListRecentMessages(ctx context.Context, roomID uint, limit int) ([]models.Message, error) {
	messages, err := s.Store.ListRecentMessages(ctx, roomID, limit)
	if err != nil || s.afterHistory == nil {
		return messages, err
	}
	return messages, s.afterHistory()
}

func (e env) connect(connID string) (*Session, hub.Client) {
	client := make(hub.Client, 64)
	return New(connID, client, e.router, e.hub, testhelpers.Logger()), client
}

// drain returns every frame queued so far. Local fan-out is synchronous.
func drain(t *testing.T, client hub.Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw := <-client:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func TestSession_GeneralScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	random := e.room(t, "Random")

	ada, adaClient := e.connect("ada-conn")
	bob, bobClient := e.connect("bob-conn")
	eve, eveClient := e.connect("eve-conn")

	// Given Ada joins General
	res, err := ada.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	req.Equal(JoinResult{RoomName: "General", UserCount: 1}, res)

	// Then she receives an empty history then the member count
	frames := drain(t, adaClient)
	req.Equal([]string{broadcast.EventChatHistory, broadcast.EventRoomUsers}, types(frames))
	req.JSONEq(`[]`, string(frames[0].Payload))
	req.JSONEq(`{"roomId":1,"userCount":1}`, string(frames[1].Payload))

	// Given Bob joins General and Eve joins Random
	res, err = bob.JoinRoom(ctx, general, "Bob")
	req.NoError(err)
	req.Equal(2, res.UserCount)
	_, err = eve.JoinRoom(ctx, random, "")
	req.NoError(err)
	req.Equal("Guest_eve-co", eve.DisplayName())

	frames = drain(t, adaClient)
	req.Equal([]string{broadcast.EventRoomUsers}, types(frames))
	req.JSONEq(`{"roomId":1,"userCount":2}`, string(frames[0].Payload))
	drain(t, bobClient)
	drain(t, eveClient)

	// When Ada says hello
	posted, err := ada.SendMessage(ctx, "Hello", "", "ada-1")
	req.NoError(err)
	req.Equal("Ada", posted.Message.Username)

	// Then both General members get it and Random does not
	for _, c := range []hub.Client{adaClient, bobClient} {
		frames = drain(t, c)
		req.Len(frames, 1)
		req.Equal(broadcast.EventChatMessage, frames[0].Type)
		var m models.Message
		req.NoError(json.Unmarshal(frames[0].Payload, &m))
		req.Equal("Hello", m.Content)
		req.Equal(general, m.RoomID)
	}
	req.Empty(drain(t, eveClient))

	// When Eve later moves to General she sees Ada's message in the history
	_, err = eve.JoinRoom(ctx, general, "Eve")
	req.NoError(err)
	frames = drain(t, eveClient)
	req.Equal(broadcast.EventChatHistory, frames[0].Type)
	var history []models.Message
	req.NoError(json.Unmarshal(frames[0].Payload, &history))
	req.Len(history, 1)
	req.Equal("Hello", history[0].Content)
	req.Equal(3, e.hub.Count(general))
	req.Zero(e.hub.Count(random))
}

func TestSession_JoinUnknownRoomKeepsMembership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	s, _ := e.connect("conn-1")

	_, err := s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)

	_, err = s.JoinRoom(ctx, 999, "Ada")
	req.ErrorIs(err, broadcast.ErrRoomNotFound)

	room, ok := s.Room()
	req.True(ok)
	req.Equal(general, room)
	req.Equal(1, e.hub.Count(general))
}

func TestSession_MessagePostedDuringJoinIsDelivered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	st := &historyHookStore{Store: testhelpers.NewStore(t)}
	e := newEnvWithStore(t, st)
	general := e.room(t, "General")
	bob, _ := e.connect("bob-conn")
	_, err := bob.JoinRoom(ctx, general, "Bob")
	req.NoError(err)
	ada, adaClient := e.connect("ada-conn")

	// Given Bob posts right after Ada's history was read
	st.afterHistory = func() error {
		st.afterHistory = nil
		_, err := bob.SendMessage(ctx, "mid-join", "", "bob-1")
		return err
	}

	// When Ada joins
	_, err = ada.JoinRoom(ctx, general, "Ada")
	req.NoError(err)

	// Then the message reaches her live even though the history missed it
	frames := drain(t, adaClient)
	req.Equal([]string{broadcast.EventChatMessage, broadcast.EventChatHistory, broadcast.EventRoomUsers}, types(frames))
	var m models.Message
	req.NoError(json.Unmarshal(frames[0].Payload, &m))
	req.Equal("mid-join", m.Content)
	req.JSONEq(`[]`, string(frames[1].Payload))
}

func TestSession_JoinHistoryFailureRollsBack(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	st := &historyHookStore{Store: testhelpers.NewStore(t)}
	e := newEnvWithStore(t, st)
	general := e.room(t, "General")
	random := e.room(t, "Random")
	s, client := e.connect("conn-1")
	_, err := s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	drain(t, client)

	// Given the history of the target room cannot be read
	st.afterHistory = func() error { return errors.New("connection reset") }

	// When Ada switches rooms
	_, err = s.JoinRoom(ctx, random, "Ada")

	// Then she is in neither room and gets no history
	req.Error(err)
	req.Equal(StateConnected, s.State())
	req.Zero(e.hub.Count(random))
	req.Zero(e.hub.Count(general))
	req.NotContains(types(drain(t, client)), broadcast.EventChatHistory)

	// When the same room is rejoined and the history fails
	st.afterHistory = nil
	_, err = s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	st.afterHistory = func() error { return errors.New("connection reset") }
	_, err = s.JoinRoom(ctx, general, "Ada")

	// Then the existing membership is kept
	req.Error(err)
	req.Equal(StateInRoom, s.State())
	req.Equal(1, e.hub.Count(general))
}

func TestSession_SwitchRoomsLeavesOldRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	random := e.room(t, "Random")
	s, _ := e.connect("conn-1")
	watcher, watcherClient := e.connect("conn-2")
	_, err := watcher.JoinRoom(ctx, general, "Watcher")
	req.NoError(err)

	_, err = s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	drain(t, watcherClient)

	_, err = s.JoinRoom(ctx, random, "Ada")
	req.NoError(err)

	req.Equal(1, e.hub.Count(general))
	req.Equal(1, e.hub.Count(random))
	frames := drain(t, watcherClient)
	req.Equal([]string{broadcast.EventRoomUsers}, types(frames))
	req.JSONEq(`{"roomId":1,"userCount":1}`, string(frames[0].Payload))
}

func TestSession_RejoinSameRoomIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	s, _ := e.connect("conn-1")

	_, err := s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	res, err := s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	req.Equal(1, res.UserCount)
}

func TestSession_StateMachine(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	s, _ := e.connect("conn-1")
	req.Equal(StateConnected, s.State())

	// Operations that need a room fail while Connected
	req.ErrorIs(s.LeaveRoom(ctx), ErrNotInRoom)
	_, err := s.SendMessage(ctx, "hi", "", "k1")
	req.ErrorIs(err, ErrNotInRoom)

	_, err = s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	req.Equal(StateInRoom, s.State())

	req.NoError(s.LeaveRoom(ctx))
	req.Equal(StateConnected, s.State())
	req.Zero(e.hub.Count(general))

	_, err = s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)

	// Disconnect leaves the room and is terminal
	s.Disconnect(ctx)
	s.Disconnect(ctx)
	req.Equal(StateDisconnected, s.State())
	req.Zero(e.hub.Count(general))
	_, err = s.JoinRoom(ctx, general, "Ada")
	req.ErrorIs(err, ErrDisconnected)
	req.ErrorIs(s.LeaveRoom(ctx), ErrDisconnected)
	_, err = s.SendMessage(ctx, "hi", "", "k2")
	req.ErrorIs(err, ErrDisconnected)
}

func TestSession_SendMessageValidation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	s, client := e.connect("conn-1")
	_, err := s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)
	drain(t, client)

	_, err = s.SendMessage(ctx, "   ", "", "k1")
	req.ErrorIs(err, broadcast.ErrValidation)
	req.Empty(drain(t, client))
}

func TestSession_SendMessageUsernameOverride(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	e := newEnv(t)
	general := e.room(t, "General")
	s, _ := e.connect("conn-1")
	_, err := s.JoinRoom(ctx, general, "Ada")
	req.NoError(err)

	// When a message names its own author
	res, err := s.SendMessage(ctx, "hi", " Countess ", "k1")
	req.NoError(err)
	req.Equal("Countess", res.Message.Username)

	// Then the session's name is still the default for the next one
	res, err = s.SendMessage(ctx, "hi again", "  ", "k2")
	req.NoError(err)
	req.Equal("Ada", res.Message.Username)
	req.Equal("Ada", s.DisplayName())
}

func TestGuestName(t *testing.T) {
	require.Equal(t, "Guest_abcdef", GuestName("abcdef-1234"))
	require.Equal(t, "Guest_ab", GuestName("ab"))
}
