package intake

import "github.com/civicline/civicline/pkg/civic"

// AppendResult reports the outcome of accumulating one media item.
type AppendResult struct {
	// Accepted is false when the channel's cap was already reached and the
	// item was rejected outright.
	Accepted bool
	// Count is the session's media count after the append.
	Count int
	// ShouldFinalize is true the instant the append fills the cap: the caller
	// must proceed to ticket creation without waiting for "done".
	ShouldFinalize bool
}

// AppendMedia adds an item to the session under the channel's cap. The item's
// ordinal is assigned here. Rejected items leave the session untouched.
func AppendMedia(p Policy, s *Session, item civic.MediaItem) AppendResult {
	if len(s.Media) >= p.MediaCap {
		return AppendResult{Accepted: false, Count: len(s.Media)}
	}

	item.Seq = len(s.Media) + 1
	s.Media = append(s.Media, item)

	return AppendResult{
		Accepted:       true,
		Count:          len(s.Media),
		ShouldFinalize: len(s.Media) >= p.MediaCap,
	}
}
