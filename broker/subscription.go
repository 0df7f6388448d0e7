package broker

import "github.com/emberchat/emberchat/types"

// MessageSubscription is the tail half of a snapshot-then-tail join on one
// room's log. The channel closes when the subscription is cancelled, the
// subscriber falls too far behind, or the room is reclaimed; there is no
// replay, a reconnecting collaborator must re-snapshot.
type MessageSubscription struct {
	ch     chan *types.Message
	log    *roomLog
	closed bool // guarded by log.mu
}

// Events yields messages strictly in append order.
func (s *MessageSubscription) Events() <-chan *types.Message { return s.ch }

// Cancel detaches the subscription. Buffered, undelivered events are
// discarded. Safe to call more than once and after the stream closed.
func (s *MessageSubscription) Cancel() {
	s.log.mu.Lock()
	s.drop()
	s.log.mu.Unlock()
}

// drop must be called with log.mu held.
func (s *MessageSubscription) drop() {
	if s.closed {
		return
	}
	s.closed = true
	delete(s.log.subs, s)
	close(s.ch)
}

// RoomSubscription is the room-created counterpart: it receives every room
// created after the snapshot it was handed out with, in creation order.
type RoomSubscription struct {
	ch     chan *types.Room
	broker *Broker
	closed bool // guarded by broker.mu
}

func (s *RoomSubscription) Events() <-chan *types.Room { return s.ch }

func (s *RoomSubscription) Cancel() {
	s.broker.mu.Lock()
	s.drop()
	s.broker.mu.Unlock()
}

// drop must be called with broker.mu held.
func (s *RoomSubscription) drop() {
	if s.closed {
		return
	}
	s.closed = true
	delete(s.broker.roomSubs, s)
	close(s.ch)
}
