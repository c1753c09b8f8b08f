package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestHub_JoinLeaveCount(t *testing.T) {
	req := require.New(t)
	h := newTestHub()

	req.Equal(1, h.Join(1, "a"))
	// Join is idempotent
	req.Equal(1, h.Join(1, "a"))
	req.Equal(2, h.Join(1, "b"))
	req.Equal(2, h.Count(1))
	req.Equal(0, h.Count(2))

	req.Equal(1, h.Leave(1, "a"))
	// Leave is idempotent
	req.Equal(1, h.Leave(1, "a"))
	req.Equal(0, h.Leave(1, "b"))
	req.Equal(0, h.Leave(42, "b"))

	// Empty rooms are dropped
	req.Empty(h.Counts())
}

func TestHub_ConcurrentJoinLeave(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	const n, m = 200, 75

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Join(7, fmt.Sprintf("conn-%d", i))
		}(i)
	}
	wg.Wait()
	req.Equal(n, h.Count(7))

	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Leave(7, fmt.Sprintf("conn-%d", i))
		}(i)
	}
	wg.Wait()
	req.Equal(n-m, h.Count(7))
}

func TestHub_ConcurrentJoinLeaveSameRoomNeverLosesMembers(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup
	// One connection churns the room while others join it.
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Join(1, "churn")
			h.Leave(1, "churn")
		}()
		go func(i int) {
			defer wg.Done()
			h.Join(1, fmt.Sprintf("stay-%d", i))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 100, h.Count(1))
}

func TestHub_LeaveOnlyLocksItsRoom(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	h.Join(1, "a")
	h.Join(1, "b")

	// Given a reader holds the room table, as a fan-out would
	h.mu.RLock()
	done := make(chan int)
	go func() { done <- h.Leave(1, "a") }()

	// Then a leave that keeps the room non-empty still completes
	select {
	case n := <-done:
		req.Equal(1, n)
	case <-time.After(time.Second):
		t.Fatal("Leave waited on the room table lock")
	}
	h.mu.RUnlock()

	// And the last leave drops the room
	req.Zero(h.Leave(1, "b"))
	req.Empty(h.Counts())
	req.Equal(1, h.Join(1, "c"))
}

func TestHub_ConcurrentLastLeaveAndJoin(t *testing.T) {
	h := newTestHub()
	for i := 0; i < 200; i++ {
		h.Join(1, "leaver")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Leave(1, "leaver")
		}()
		go func() {
			defer wg.Done()
			h.Join(1, "joiner")
		}()
		wg.Wait()
		require.Equal(t, 1, h.Count(1))
		h.Leave(1, "joiner")
	}
}

func decode(t *testing.T, b []byte) Event {
	t.Helper()
	var evt Event
	require.NoError(t, json.Unmarshal(b, &evt))
	return evt
}

func TestHub_DeliverRoom_IsolatesRooms(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	inA, inB := make(Client, 4), make(Client, 4)
	h.Register("a", inA)
	h.Register("b", inB)
	h.Join(1, "a")
	h.Join(2, "b")

	h.DeliverRoom(1, Event{Type: "chat message", Payload: "hi"})

	req.Len(inA, 1)
	req.Len(inB, 0)
	evt := decode(t, <-inA)
	req.Equal("chat message", evt.Type)
	req.Equal("hi", evt.Payload)
}

func TestHub_DeliverAllAndSendTo(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	inA, inB := make(Client, 4), make(Client, 4)
	h.Register("a", inA)
	h.Register("b", inB)

	h.DeliverAll(Event{Type: "room deleted", Payload: "3"})
	req.Len(inA, 1)
	req.Len(inB, 1)

	h.SendTo("b", Event{Type: "chat history", Payload: []string{}})
	req.Len(inA, 1)
	req.Len(inB, 2)

	h.Unregister("b")
	h.SendTo("b", Event{Type: "chat history"})
	req.Len(inB, 2)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	h := newTestHub()
	full := make(Client, 1)
	h.Register("slow", full)
	h.Join(1, "slow")

	h.DeliverRoom(1, Event{Type: "x"})
	// Buffer is full; the second delivery must be dropped, not block.
	h.DeliverRoom(1, Event{Type: "y"})
	require.Len(t, full, 1)
}
