package persistence

import (
	"encoding/json"
	"strings"

	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/types"
	"github.com/tidwall/buntdb"
)

// Key layout: "room:<room id>" and "message:<room id>:<message id>", both
// holding the JSON-encoded record. The messagets index keeps messages
// readable in creation order.
type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("messagets", "message:*", buntdb.IndexJSON("created_at"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

func (p *BuntDBPersist) StoreRoom(room types.Room) error {
	r, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("room:"+room.Id, string(r), nil)
		return err
	})
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil {
				rooms = append(rooms, room)
			} else {
				globals.AppLogger.Error("could not unmarshal room", "key", key, "error", err)
			}
			return true
		})
	})
	return rooms, err
}

func (p *BuntDBPersist) StoreMessage(message types.Message) error {
	m, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("message:"+message.RoomId+":"+message.Id, string(m), nil)
		return err
	})
}

func (p *BuntDBPersist) GetMessages(roomId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	prefix := "message:" + roomId + ":"
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("messagets", func(key, val string) bool {
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			message := &types.Message{}
			if err := json.Unmarshal([]byte(val), message); err == nil {
				messages = append(messages, message)
			} else {
				globals.AppLogger.Error("could not unmarshal message", "key", key, "error", err)
			}
			return true
		})
	})
	return messages, err
}

func (p *BuntDBPersist) DeleteRoom(roomId string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		// collect first, deleting while iterating is not allowed
		keys := []string{"room:" + roomId}
		err := tx.AscendKeys("message:"+roomId+":*", func(key, val string) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
