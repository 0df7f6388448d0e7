package broker

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/types"
)

// CreateRoom validates and trims name and description, stores the new room
// and publishes it to all room-created subscribers. The description is
// optional; an empty (or all-whitespace) one is treated as absent.
func (b *Broker) CreateRoom(name, description string) (*types.Room, error) {
	name, err := checkBounded("room name", name, globals.MaxRoomNameLength)
	if err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > globals.MaxDescriptionLength {
		return nil, fmt.Errorf("description exceeds %d characters: %w", globals.MaxDescriptionLength, types.ErrValidation)
	}

	b.mu.Lock()
	now := time.Now()
	room := &types.Room{
		Id:          newId(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		ExpiresAt:   now.Add(b.ttl),
	}
	b.rooms[room.Id] = newRoomLog(room)
	b.order = append(b.order, room)
	for sub := range b.roomSubs {
		select {
		case sub.ch <- room:
		default:
			// slow subscriber, drop it rather than stall room creation
			globals.AppLogger.Warn("dropping slow room-created subscriber")
			sub.drop()
		}
	}
	if b.persister != nil {
		if err := b.persister.StoreRoom(*room); err != nil {
			globals.AppLogger.Error("could not persist room", "room", room.Id, "error", err)
		}
	}
	b.mu.Unlock()

	globals.AppLogger.Info("created room", "room", room.Id, "name", room.Name)
	return room, nil
}

// GetRoom returns the room with the given id. Expired rooms are still
// returned until the reaper reclaims them, expiry is advisory to writers,
// not a deletion.
func (b *Broker) GetRoom(id string) (*types.Room, error) {
	l, err := b.roomLog(id)
	if err != nil {
		return nil, err
	}
	return l.room, nil
}

// ListRooms returns all known rooms ordered by creation time descending,
// including expired ones.
func (b *Broker) ListRooms() []*types.Room {
	b.mu.RLock()
	rooms := b.listRoomsLocked()
	b.mu.RUnlock()
	return rooms
}

func (b *Broker) listRoomsLocked() []*types.Room {
	rooms := make([]*types.Room, len(b.order))
	for i, room := range b.order {
		rooms[len(b.order)-1-i] = room
	}
	return rooms
}

// SubscribeRoomCreated returns the current room list (creation time
// descending, same as ListRooms) together with a subscription that receives
// every room created afterwards. Snapshot and registration happen in one
// critical section, so no creation is missing from both or present in both.
func (b *Broker) SubscribeRoomCreated() ([]*types.Room, *RoomSubscription) {
	b.mu.Lock()
	rooms := b.listRoomsLocked()
	sub := &RoomSubscription{
		ch:     make(chan *types.Room, b.bufferSize),
		broker: b,
	}
	b.roomSubs[sub] = struct{}{}
	b.mu.Unlock()
	return rooms, sub
}
