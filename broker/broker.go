// Package broker implements the room/message core: room lifecycle with a
// fixed TTL, the ordered append-only message log per room, real-time fan-out
// of room creations and message appends, derived participant counts and the
// background expiry sweep.
package broker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/persistence"
	"github.com/emberchat/emberchat/types"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type Broker struct {
	// mu guards rooms, order and roomSubs. Each room log carries its own
	// lock, so appends to different rooms proceed fully in parallel.
	mu       sync.RWMutex
	rooms    map[string]*roomLog
	order    []*types.Room // creation order
	roomSubs map[*RoomSubscription]struct{}

	persister persistence.Persister

	ttl           time.Duration
	reapGrace     time.Duration
	sweepInterval time.Duration
	bufferSize    int

	cron *cron.Cron
}

// New creates a broker and, if a persister is given, loads all persisted
// rooms and messages back into memory. The persisted message order is
// re-derived from (created_at, id), so a backend that returns rows unordered
// is fine.
func New(cfg *config.Config, persister persistence.Persister) (*Broker, error) {
	b := &Broker{
		rooms:         make(map[string]*roomLog),
		roomSubs:      make(map[*RoomSubscription]struct{}),
		persister:     persister,
		ttl:           globals.DefaultRoomTTL,
		reapGrace:     globals.DefaultReapGrace,
		sweepInterval: globals.DefaultSweepInterval,
		bufferSize:    globals.DefaultSubscriberBuffer,
	}
	if cfg != nil {
		if cfg.RoomConfig.TTL != 0 {
			b.ttl = cfg.RoomConfig.TTL
		}
		if cfg.RoomConfig.ReapGrace != 0 {
			b.reapGrace = cfg.RoomConfig.ReapGrace
		}
		if cfg.RoomConfig.SweepInterval != 0 {
			b.sweepInterval = cfg.RoomConfig.SweepInterval
		}
		if cfg.HubConfig.SubscriberBuffer > 0 {
			b.bufferSize = cfg.HubConfig.SubscriberBuffer
		}
	}
	if persister != nil {
		rooms, err := persister.GetRooms()
		if err != nil {
			return nil, err
		}
		sort.Slice(rooms, func(i, j int) bool {
			if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
				return rooms[i].Id < rooms[j].Id
			}
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		})
		for _, room := range rooms {
			messages, err := persister.GetMessages(room.Id)
			if err != nil {
				return nil, err
			}
			sort.Slice(messages, func(i, j int) bool { return messages[i].Less(messages[j]) })
			l := newRoomLog(room)
			l.msgs = messages
			b.rooms[room.Id] = l
			b.order = append(b.order, room)
		}
		globals.AppLogger.Info("loaded persisted state", "rooms", len(rooms))
	}
	return b, nil
}

// Start launches the periodic expiry sweep. Stop shuts it down again; the
// broker itself needs no teardown beyond that.
func (b *Broker) Start() error {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", b.sweepInterval), func() {
		b.Sweep(time.Now())
	})
	if err != nil {
		return err
	}
	c.Start()
	b.cron = c
	return nil
}

func (b *Broker) Stop() {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}
}

func (b *Broker) roomLog(roomId string) (*roomLog, error) {
	b.mu.RLock()
	l, ok := b.rooms[roomId]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomId, types.ErrNotFound)
	}
	return l, nil
}

// newId returns a v7 UUID. v7 ids are time-ordered and monotonic within the
// process, which keeps the (created_at, id) tie-break consistent with append
// order for same-millisecond bursts.
func newId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// checkBounded trims value and validates it as a required field of at most
// max characters.
func checkBounded(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty %s: %w", field, types.ErrValidation)
	}
	if utf8.RuneCountInString(value) > max {
		return "", fmt.Errorf("%s exceeds %d characters: %w", field, max, types.ErrValidation)
	}
	return value, nil
}
