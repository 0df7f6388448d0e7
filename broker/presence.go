package broker

// CountParticipants returns the number of distinct usernames across the
// room's message history. This is an estimate of "who is here", not a live
// connection count: a user who sent one message and left is still counted.
// It is recomputed from the log on every call, the log stays the single
// source of truth.
func (b *Broker) CountParticipants(roomId string) (int, error) {
	l, err := b.roomLog(roomId)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	seen := make(map[string]struct{}, len(l.msgs))
	for _, m := range l.msgs {
		seen[m.Username] = struct{}{}
	}
	n := len(seen)
	l.mu.Unlock()
	return n, nil
}
