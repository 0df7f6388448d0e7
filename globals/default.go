package globals

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "emberchat",
	Level: hclog.LevelFromString("INFO"),
})

// Input bounds, applied after whitespace trimming.
const (
	MaxRoomNameLength    = 100
	MaxDescriptionLength = 500
	MaxUsernameLength    = 50
	MaxContentLength     = 1000
)

const (
	// DefaultRoomTTL is the fixed lifetime of a room. A room stops accepting
	// messages once the TTL has elapsed; its history stays readable until the
	// reaper reclaims it after an additional DefaultReapGrace.
	DefaultRoomTTL       = 24 * time.Hour
	DefaultReapGrace     = time.Hour
	DefaultSweepInterval = time.Minute

	// DefaultSubscriberBuffer is the per-subscriber event buffer. A subscriber
	// that falls this far behind is dropped, it never blocks the append path.
	DefaultSubscriberBuffer = 256
)
