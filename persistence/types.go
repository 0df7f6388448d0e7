package persistence

import (
	"fmt"

	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/types"
)

// Persister stores rooms and their messages across restarts. All
// implementations must keep DeleteRoom idempotent: deleting an unknown room
// is not an error, the reaper may retry a partially reclaimed room.
type Persister interface {
	StoreRoom(types.Room) error
	GetRooms() ([]*types.Room, error)
	StoreMessage(types.Message) error
	GetMessages(roomId string) ([]*types.Message, error)
	DeleteRoom(roomId string) error
	Close() error
}

// NewPersister picks the backend from the configuration. It returns a nil
// Persister (and no error) when persistence is not configured, in which case
// the broker runs memory-only.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "":
		return nil, nil
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
