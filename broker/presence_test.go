package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountParticipants(t *testing.T) {
	b := newTestBroker(t, time.Hour)
	room, err := b.CreateRoom("presence", "")
	require.NoError(t, err)

	count, err := b.CountParticipants(room.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	sends := [][2]string{
		{"alice", "one"},
		{"bob", "two"},
		{"alice", "three"},
		{"alice", "four"},
		{"carol", "five"},
		{"bob", "six"},
	}
	for _, send := range sends {
		_, err := b.SendMessage(room.Id, send[0], send[1])
		require.NoError(t, err)
	}

	count, err = b.CountParticipants(room.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "repeats must not inflate the count")
}
