package civic

// Channel identifies one of the inbound/outbound messaging transports.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

// EventKind discriminates inbound event payloads.
type EventKind string

const (
	// EventCommand is a slash command, e.g. "/ticket Large pothole on Main Street".
	EventCommand EventKind = "command"
	// EventText is a plain text message.
	EventText EventKind = "text"
	// EventMedia is a photo or video that was already fetched from the transport.
	EventMedia EventKind = "media"
	// EventMediaError signals that a media fetch from the transport failed.
	// The payload never reached us, so it must not count toward the media cap.
	EventMediaError EventKind = "media_error"
	// EventLocation is a shared geographic location.
	EventLocation EventKind = "location"
	// EventCancel aborts any in-progress conversation.
	EventCancel EventKind = "cancel"
)

// Event is a single inbound event after transport-specific parsing.
// Exactly one payload field is meaningful, selected by Kind.
type Event struct {
	Kind     EventKind
	Command  string // command name without the leading slash
	Text     string // message text, or command arguments for EventCommand
	Media    *MediaItem
	Location *Location
}

// MediaItem is one photo or video accumulated during a conversation.
type MediaItem struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Seq      int    `json:"seq"` // ordinal within the session, starting at 1
}

// IsVideo reports whether the item carries a video MIME type.
func (m *MediaItem) IsVideo() bool {
	return len(m.MIME) >= 6 && m.MIME[:6] == "video/"
}

// Location is a point shared by the citizen.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
