package types

import "time"

// A Room is a named, time-bounded container for an ordered sequence of
// messages. It is never deleted explicitly: it stops accepting writes at
// ExpiresAt and is reclaimed by the reaper some time after that.
type Room struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Active reports whether the room still accepts messages. Activity is always
// derived from ExpiresAt, it is not stored anywhere.
func (r *Room) Active(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
