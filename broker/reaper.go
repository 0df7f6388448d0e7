package broker

import (
	"time"

	"github.com/emberchat/emberchat/globals"
)

// Sweep reclaims every room whose TTL plus the grace period has elapsed at
// now: its persisted state is deleted, its in-memory history dropped and all
// of its subscriptions closed. Write rejection for expired rooms does not
// depend on the sweep, SendMessage checks ExpiresAt itself.
//
// A room whose storage delete fails stays registered and is retried on the
// next sweep; reclamation is idempotent, so partial progress is safe.
func (b *Broker) Sweep(now time.Time) {
	b.mu.RLock()
	candidates := make([]*roomLog, 0)
	for _, l := range b.rooms {
		if !now.Before(l.room.ExpiresAt.Add(b.reapGrace)) {
			candidates = append(candidates, l)
		}
	}
	b.mu.RUnlock()
	if len(candidates) == 0 {
		return
	}

	reclaimed := 0
	for _, l := range candidates {
		if b.persister != nil {
			if err := b.persister.DeleteRoom(l.room.Id); err != nil {
				globals.AppLogger.Error("could not delete room, will retry", "room", l.room.Id, "error", err)
				continue
			}
		}
		b.mu.Lock()
		delete(b.rooms, l.room.Id)
		for i, room := range b.order {
			if room.Id == l.room.Id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		l.closeAll()
		reclaimed++
	}
	globals.AppLogger.Info("swept expired rooms", "reclaimed", reclaimed, "candidates", len(candidates))
}
