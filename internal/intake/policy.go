package intake

import "github.com/civicline/civicline/pkg/civic"

// Policy holds the per-channel constants of the intake flow. The conversation
// logic itself is channel-agnostic; only these values differ between transports.
type Policy struct {
	// MediaCap is the maximum number of media items per complaint.
	MediaCap int
	// AllowEmptyDone accepts "done" with zero media. Telegram historically
	// requires at least one item before "done"; WhatsApp does not. The
	// asymmetry is deliberate and kept behind this flag.
	AllowEmptyDone bool
	// MaxVideoBytes rejects videos larger than this before download.
	// Zero means no connector-side limit.
	MaxVideoBytes int64
}

var policies = map[civic.Channel]Policy{
	civic.ChannelTelegram: {
		MediaCap:       5,
		AllowEmptyDone: false,
		MaxVideoBytes:  20 * 1024 * 1024,
	},
	civic.ChannelWhatsApp: {
		MediaCap:       3,
		AllowEmptyDone: true,
	},
}

// PolicyFor returns the intake policy for a channel. Unknown channels get the
// WhatsApp policy, the more permissive of the two.
func PolicyFor(channel civic.Channel) Policy {
	if p, ok := policies[channel]; ok {
		return p
	}
	return policies[civic.ChannelWhatsApp]
}
