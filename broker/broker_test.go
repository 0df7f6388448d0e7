package broker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, ttl time.Duration) *Broker {
	t.Helper()
	cfg := &config.Config{}
	cfg.RoomConfig.TTL = ttl
	b, err := New(cfg, nil)
	require.NoError(t, err)
	return b
}

func TestCreateRoomValidation(t *testing.T) {
	b := newTestBroker(t, time.Hour)

	_, err := b.CreateRoom("", "")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = b.CreateRoom("   ", "whitespace only is empty")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = b.CreateRoom(strings.Repeat("x", globals.MaxRoomNameLength+1), "")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = b.CreateRoom("ok", strings.Repeat("y", globals.MaxDescriptionLength+1))
	assert.ErrorIs(t, err, types.ErrValidation)

	room, err := b.CreateRoom("  Trivia  ", "  nightly quiz  ")
	require.NoError(t, err)
	assert.Equal(t, "Trivia", room.Name)
	assert.Equal(t, "nightly quiz", room.Description)
	assert.NotEmpty(t, room.Id)
}

func TestRoomTTLExact(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("ttl", "")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, room.ExpiresAt.Sub(room.CreatedAt))
	assert.True(t, room.Active(room.CreatedAt))
	assert.False(t, room.Active(room.ExpiresAt))
}

func TestGetRoomNotFound(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	_, err := b.GetRoom("no-such-room")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = b.ListMessages("no-such-room")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = b.CountParticipants("no-such-room")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, _, err = b.SubscribeMessages("no-such-room")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = b.SendMessage("no-such-room", "alice", "hi")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListRoomsNewestFirst(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	first, err := b.CreateRoom("first", "")
	require.NoError(t, err)
	second, err := b.CreateRoom("second", "")
	require.NoError(t, err)
	third, err := b.CreateRoom("third", "")
	require.NoError(t, err)

	rooms := b.ListRooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, third.Id, rooms[0].Id)
	assert.Equal(t, second.Id, rooms[1].Id)
	assert.Equal(t, first.Id, rooms[2].Id)
}

func TestTriviaScenario(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("Trivia", "")
	require.NoError(t, err)

	for _, send := range [][2]string{{"alice", "hi"}, {"bob", "hey"}, {"alice", "yo"}} {
		_, err := b.SendMessage(room.Id, send[0], send[1])
		require.NoError(t, err)
	}

	messages, err := b.ListMessages(room.Id)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "hi", messages[0].Content)
	assert.Equal(t, "hey", messages[1].Content)
	assert.Equal(t, "yo", messages[2].Content)
	assert.Equal(t, "alice", messages[0].Username)
	assert.Equal(t, "bob", messages[1].Username)

	count, err := b.CountParticipants(room.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSendMessageValidation(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("v", "")
	require.NoError(t, err)

	_, err = b.SendMessage(room.Id, "", "hi")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = b.SendMessage(room.Id, "alice", "   ")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = b.SendMessage(room.Id, strings.Repeat("u", globals.MaxUsernameLength+1), "hi")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = b.SendMessage(room.Id, "alice", strings.Repeat("c", globals.MaxContentLength+1))
	assert.ErrorIs(t, err, types.ErrValidation)

	msg, err := b.SendMessage(room.Id, "  alice  ", "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Content)
}

func TestSendMessageExpired(t *testing.T) {
	b := newTestBroker(t, 10*time.Millisecond)
	room, err := b.CreateRoom("short-lived", "")
	require.NoError(t, err)

	_, sub, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)
	defer sub.Cancel()

	time.Sleep(30 * time.Millisecond)

	_, err = b.SendMessage(room.Id, "alice", "too late")
	assert.ErrorIs(t, err, types.ErrExpired)

	// no stored message and no published event
	messages, err := b.ListMessages(room.Id)
	require.NoError(t, err)
	assert.Empty(t, messages)
	select {
	case msg := <-sub.Events():
		t.Fatalf("unexpected event %+v", msg)
	case <-time.After(20 * time.Millisecond):
	}

	// history of an expired room stays readable until reclamation
	_, err = b.GetRoom(room.Id)
	assert.NoError(t, err)
}

func TestConcurrentSendOrdering(t *testing.T) {
	const workers = 10
	const perWorker = 20

	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("load", "")
	require.NoError(t, err)

	_, sub, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)
	defer sub.Cancel()

	errs := make(chan error, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := b.SendMessage(room.Id, fmt.Sprintf("user-%d", w), fmt.Sprintf("msg %d", i))
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := b.ListMessages(room.Id)
	require.NoError(t, err)
	require.Len(t, stored, workers*perWorker)
	for i := 1; i < len(stored); i++ {
		require.True(t, stored[i-1].Less(stored[i]), "stored order must be (created_at, id) ascending")
	}

	// every subscriber observes exactly the stored order
	for i := 0; i < len(stored); i++ {
		select {
		case msg := <-sub.Events():
			require.Equal(t, stored[i].Id, msg.Id, "delivery order diverged at %d", i)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestSnapshotTailJoin(t *testing.T) {
	const seed = 50
	const concurrent = 50

	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("join", "")
	require.NoError(t, err)
	for i := 0; i < seed; i++ {
		_, err := b.SendMessage(room.Id, "seeder", fmt.Sprintf("seed %d", i))
		require.NoError(t, err)
	}

	// subscribe while a writer is appending
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < concurrent; i++ {
			if _, err := b.SendMessage(room.Id, "writer", fmt.Sprintf("tail %d", i)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	snapshot, sub, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)
	defer sub.Cancel()
	<-done

	final, err := b.ListMessages(room.Id)
	require.NoError(t, err)
	require.Len(t, final, seed+concurrent)

	// the snapshot is a prefix of the final log
	for i, msg := range snapshot {
		require.Equal(t, final[i].Id, msg.Id)
	}

	// the union of snapshot and stream is every message exactly once
	got := make(map[string]int, len(final))
	for _, msg := range snapshot {
		got[msg.Id]++
	}
	for len(got) < len(final) {
		select {
		case msg := <-sub.Events():
			got[msg.Id]++
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %d of %d messages", len(got), len(final))
		}
	}
	for id, n := range got {
		require.Equal(t, 1, n, "message %s delivered %d times", id, n)
	}

	// and nothing more arrives
	select {
	case msg := <-sub.Events():
		t.Fatalf("duplicate delivery %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAfterHistory(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("Trivia", "")
	require.NoError(t, err)
	for _, send := range [][2]string{{"alice", "hi"}, {"bob", "hey"}, {"alice", "yo"}} {
		_, err := b.SendMessage(room.Id, send[0], send[1])
		require.NoError(t, err)
	}

	snapshot, sub, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)
	defer sub.Cancel()
	require.Len(t, snapshot, 3)

	_, err = b.SendMessage(room.Id, "carol", "sup")
	require.NoError(t, err)

	select {
	case msg := <-sub.Events():
		assert.Equal(t, "carol", msg.Username)
		assert.Equal(t, "sup", msg.Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the event")
	}
	select {
	case msg := <-sub.Events():
		t.Fatalf("unexpected extra event %+v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeRoomCreated(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	before, err := b.CreateRoom("before", "")
	require.NoError(t, err)

	snapshot, sub := b.SubscribeRoomCreated()
	defer sub.Cancel()
	require.Len(t, snapshot, 1)
	assert.Equal(t, before.Id, snapshot[0].Id)

	after, err := b.CreateRoom("after", "")
	require.NoError(t, err)
	select {
	case room := <-sub.Events():
		assert.Equal(t, after.Id, room.Id)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the room event")
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	cfg := &config.Config{}
	cfg.RoomConfig.TTL = time.Hour
	cfg.HubConfig.SubscriberBuffer = 1
	b, err := New(cfg, nil)
	require.NoError(t, err)

	room, err := b.CreateRoom("slow", "")
	require.NoError(t, err)
	_, sub, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)

	// the second undrained publish overflows the buffer and must drop the
	// subscriber instead of blocking the append path
	for i := 0; i < 3; i++ {
		_, err := b.SendMessage(room.Id, "alice", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	msg, ok := <-sub.Events()
	require.True(t, ok)
	assert.Equal(t, "msg 0", msg.Content)
	_, ok = <-sub.Events()
	assert.False(t, ok, "overflowed subscriber must be closed")

	// the log itself is complete
	stored, err := b.ListMessages(room.Id)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// cancelling after the drop is fine
	sub.Cancel()
}

func TestCancelIsIdempotent(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("cancel", "")
	require.NoError(t, err)

	_, sub, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)
	_, other, err := b.SubscribeMessages(room.Id)
	require.NoError(t, err)
	defer other.Cancel()

	sub.Cancel()
	sub.Cancel()
	_, ok := <-sub.Events()
	assert.False(t, ok)

	// other subscribers are unaffected
	_, err = b.SendMessage(room.Id, "alice", "still here")
	require.NoError(t, err)
	select {
	case msg := <-other.Events():
		assert.Equal(t, "still here", msg.Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the event")
	}

	_, roomSub := b.SubscribeRoomCreated()
	roomSub.Cancel()
	roomSub.Cancel()
	_, ok = <-roomSub.Events()
	assert.False(t, ok)
}

func TestErrorsAreDistinguishable(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	_, err := b.CreateRoom("", "")
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.False(t, errors.Is(err, types.ErrNotFound))
	assert.False(t, errors.Is(err, types.ErrExpired))
}
