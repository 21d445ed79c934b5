package intake

import "time"

// SweepStale deletes sessions idle for longer than maxIdle and returns how
// many were removed. Abandoned conversations would otherwise pin media bytes
// in memory indefinitely.
func SweepStale(store Store, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for _, s := range store.All() {
		if s.LastActivityAt.Before(cutoff) {
			store.Delete(s.Channel, s.UserID)
			removed++
		}
	}
	return removed
}
