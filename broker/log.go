package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/types"
)

// roomLog holds one room's ordered message history and its subscribers.
type roomLog struct {
	// mu is the single serialization point for the room: appends, snapshot
	// reads and subscription changes all go through it. This is what makes
	// the stored order, the publish order and the snapshot/tail boundary
	// agree.
	mu   sync.Mutex
	room *types.Room
	msgs []*types.Message
	subs map[*MessageSubscription]struct{}
}

func newRoomLog(room *types.Room) *roomLog {
	return &roomLog{
		room: room,
		subs: make(map[*MessageSubscription]struct{}),
	}
}

// publish hands msg to every subscriber. Must be called with mu held. A
// subscriber whose buffer is full is dropped, producers never block on a
// slow consumer.
func (l *roomLog) publish(msg *types.Message) {
	for sub := range l.subs {
		select {
		case sub.ch <- msg:
		default:
			globals.AppLogger.Warn("dropping slow message subscriber", "room", l.room.Id)
			sub.drop()
		}
	}
}

// closeAll drops every subscriber and the history. Called at reclamation.
func (l *roomLog) closeAll() {
	l.mu.Lock()
	for sub := range l.subs {
		sub.drop()
	}
	l.msgs = nil
	l.mu.Unlock()
}

// SendMessage validates, appends and fans out one message. Appends to a room
// are linearized on the room's lock, so the assigned (created_at, id) order
// is total and matches the order subscribers observe.
func (b *Broker) SendMessage(roomId, username, content string) (*types.Message, error) {
	username, err := checkBounded("username", username, globals.MaxUsernameLength)
	if err != nil {
		return nil, err
	}
	content, err = checkBounded("content", content, globals.MaxContentLength)
	if err != nil {
		return nil, err
	}
	l, err := b.roomLog(roomId)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	now := time.Now()
	if !l.room.Active(now) {
		l.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w", roomId, types.ErrExpired)
	}
	msg := &types.Message{
		Id:        newId(),
		RoomId:    roomId,
		Username:  username,
		Content:   content,
		CreatedAt: now,
	}
	l.msgs = append(l.msgs, msg)
	l.publish(msg)
	if b.persister != nil {
		// store while still holding the lock so the persisted write order
		// matches the log order
		if err := b.persister.StoreMessage(*msg); err != nil {
			globals.AppLogger.Error("could not persist message", "room", roomId, "error", err)
		}
	}
	l.mu.Unlock()
	return msg, nil
}

// ListMessages returns the room's full history in (created_at, id) ascending
// order. Expired rooms remain readable until reclamation.
func (b *Broker) ListMessages(roomId string) ([]*types.Message, error) {
	l, err := b.roomLog(roomId)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	messages := make([]*types.Message, len(l.msgs))
	copy(messages, l.msgs)
	l.mu.Unlock()
	return messages, nil
}

// SubscribeMessages returns the room's current history together with a
// subscription that receives every message appended afterwards. Snapshot and
// registration happen in one critical section with respect to appends: the
// union of the snapshot and the stream contains every message of the room
// exactly once, no gap, no duplicate. The stream closes when the room is
// reclaimed.
func (b *Broker) SubscribeMessages(roomId string) ([]*types.Message, *MessageSubscription, error) {
	l, err := b.roomLog(roomId)
	if err != nil {
		return nil, nil, err
	}
	l.mu.Lock()
	messages := make([]*types.Message, len(l.msgs))
	copy(messages, l.msgs)
	sub := &MessageSubscription{
		ch:  make(chan *types.Message, b.bufferSize),
		log: l,
	}
	l.subs[sub] = struct{}{}
	l.mu.Unlock()
	return messages, sub, nil
}
