package persistence

import (
	"fmt"

	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	db.Migrator().AutoMigrate(&types.Room{}, &types.Message{})
	return db, nil
}

func (p *GormPersist) StoreRoom(room types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) StoreMessage(message types.Message) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&message).Error
}

func (p *GormPersist) GetMessages(roomId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := p.db.Where("room_id = ?", roomId).Order("created_at, id").Find(&messages).Error
	return messages, err
}

func (p *GormPersist) DeleteRoom(roomId string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("room_id = ?", roomId).Delete(&types.Message{}).Error
		if err != nil {
			return err
		}
		return tx.Where("id = ?", roomId).Delete(&types.Room{}).Error
	})
}

func (p *GormPersist) Close() error {
	return nil
}
