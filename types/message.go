package types

import "time"

// Message is a single chat message. Messages are immutable once appended and
// live exactly as long as their room.
type Message struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	RoomId    string    `json:"room_id" gorm:"index"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Less orders messages by (CreatedAt, Id) ascending. Ids are time-ordered
// UUIDs, so the id tie-break keeps same-millisecond bursts in append order.
func (m *Message) Less(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Id < other.Id
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
