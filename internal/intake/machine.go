package intake

import (
	"log/slog"
	"strings"
	"time"

	"github.com/civicline/civicline/pkg/civic"
)

// Finalize carries a completed conversation to the orchestrator for ticket
// creation. By the time a Finalize is emitted the session is already gone
// from the store.
type Finalize struct {
	Channel     civic.Channel
	UserID      string
	DisplayName string
	Query       string
	Media       []civic.MediaItem
	Location    *civic.Location
}

// Result is the outcome of handling one inbound event: at most one outbound
// prompt, plus an optional finalize action.
type Result struct {
	Reply    string
	Finalize *Finalize
}

// Machine is the per-session conversation protocol. It interprets each inbound
// event against the session's current state and mutates only the session
// store; it performs no network calls. Callers must serialize events for the
// same (channel, user) key.
type Machine struct {
	store  Store
	logger *slog.Logger
}

// NewMachine creates a conversation state machine over the given session store.
func NewMachine(store Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, logger: logger}
}

// Handle processes one inbound event for a (channel, user) key.
func (m *Machine) Handle(channel civic.Channel, userID, displayName string, ev civic.Event) Result {
	policy := PolicyFor(channel)

	s, ok := m.store.Get(channel, userID)
	if !ok {
		return m.handleIdle(channel, userID, displayName, ev)
	}

	s.LastActivityAt = time.Now()

	switch s.State {
	case StateAwaitingQuery:
		return m.handleAwaitingQuery(s, ev)
	case StateAwaitingMediaConfirmation:
		return m.handleAwaitingConfirmation(policy, s, ev)
	case StateCollectingMedia:
		return m.handleCollecting(policy, s, ev)
	default:
		// Unknown state means a corrupted session; drop it rather than wedge
		// the user forever.
		m.logger.Warn("dropping session in unknown state",
			"channel", channel, "user", userID, "state", s.State)
		m.store.Delete(channel, userID)
		return Result{Reply: promptHelp}
	}
}

func (m *Machine) handleIdle(channel civic.Channel, userID, displayName string, ev civic.Event) Result {
	switch ev.Kind {
	case civic.EventCommand:
		if ev.Command != "ticket" {
			return Result{Reply: promptHelp}
		}
		return m.startComplaint(channel, userID, displayName, ev.Text)

	case civic.EventCancel:
		// Nothing to cancel, but the command always succeeds.
		return Result{Reply: promptCancelled}

	case civic.EventLocation:
		// Accepted but not attached to anything; no session is created.
		m.logger.Debug("location received with no active complaint",
			"channel", channel, "user", userID)
		return Result{Reply: promptLocationNoSession}

	case civic.EventMedia, civic.EventMediaError:
		return Result{Reply: promptMediaNoSession}

	default:
		return Result{Reply: promptHelp}
	}
}

// startComplaint opens a fresh session, replacing any existing one. A /ticket
// issued mid-conversation restarts the flow with the new text.
func (m *Machine) startComplaint(channel civic.Channel, userID, displayName, query string) Result {
	now := time.Now()
	s := &Session{
		Channel:        channel,
		UserID:         userID,
		DisplayName:    displayName,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	query = strings.TrimSpace(query)
	if query == "" {
		s.State = StateAwaitingQuery
		m.store.Put(s)
		return Result{Reply: promptAskQuery}
	}

	s.State = StateAwaitingMediaConfirmation
	s.Query = query
	m.store.Put(s)
	return Result{Reply: promptConfirmMedia(query)}
}

func (m *Machine) handleAwaitingQuery(s *Session, ev civic.Event) Result {
	switch ev.Kind {
	case civic.EventCancel:
		m.store.Delete(s.Channel, s.UserID)
		return Result{Reply: promptCancelled}

	case civic.EventCommand:
		if ev.Command == "ticket" {
			return m.startComplaint(s.Channel, s.UserID, s.DisplayName, ev.Text)
		}
		return Result{Reply: promptAskQuery}

	case civic.EventText:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return Result{Reply: promptAskQuery}
		}
		s.Query = text
		s.State = StateAwaitingMediaConfirmation
		m.store.Put(s)
		return Result{Reply: promptConfirmMedia(text)}

	default:
		// Media or location before the description: re-prompt, keep the input
		// out of the complaint rather than guessing.
		return Result{Reply: promptAskQuery}
	}
}

func (m *Machine) handleAwaitingConfirmation(policy Policy, s *Session, ev civic.Event) Result {
	switch ev.Kind {
	case civic.EventCancel:
		m.store.Delete(s.Channel, s.UserID)
		return Result{Reply: promptCancelled}

	case civic.EventCommand:
		if ev.Command == "ticket" {
			return m.startComplaint(s.Channel, s.UserID, s.DisplayName, ev.Text)
		}
		return Result{Reply: promptYesOrNo}

	case civic.EventLocation:
		s.Location = ev.Location
		m.store.Put(s)
		return Result{Reply: promptLocationSaved(ev.Location)}

	case civic.EventText:
		switch strings.ToLower(strings.TrimSpace(ev.Text)) {
		case "yes", "y":
			s.State = StateCollectingMedia
			m.store.Put(s)
			return Result{Reply: promptSendMedia(policy)}
		case "no", "n":
			return m.finalize(s)
		default:
			return Result{Reply: promptYesOrNo}
		}

	default:
		return Result{Reply: promptYesOrNo}
	}
}

func (m *Machine) handleCollecting(policy Policy, s *Session, ev civic.Event) Result {
	switch ev.Kind {
	case civic.EventCancel:
		m.store.Delete(s.Channel, s.UserID)
		return Result{Reply: promptCancelled}

	case civic.EventCommand:
		if ev.Command == "ticket" {
			return m.startComplaint(s.Channel, s.UserID, s.DisplayName, ev.Text)
		}
		return Result{Reply: promptSendOrDone(len(s.Media), policy)}

	case civic.EventMedia:
		res := AppendMedia(policy, s, *ev.Media)
		if !res.Accepted || res.ShouldFinalize {
			// Cap reached: create the ticket immediately so the user can
			// never get stuck past the limit.
			return m.finalize(s)
		}
		m.store.Put(s)
		return Result{Reply: promptMediaReceived(ev.Media, res.Count, policy)}

	case civic.EventMediaError:
		// Fetch failures don't count toward the cap; ask for a resend.
		return Result{Reply: promptMediaRetry}

	case civic.EventLocation:
		s.Location = ev.Location
		m.store.Put(s)
		return Result{Reply: promptLocationSaved(ev.Location)}

	case civic.EventText:
		switch strings.ToLower(strings.TrimSpace(ev.Text)) {
		case "done", "d":
			if len(s.Media) == 0 && !policy.AllowEmptyDone {
				return Result{Reply: promptNeedOneMedia}
			}
			return m.finalize(s)
		default:
			return Result{Reply: promptSendOrDone(len(s.Media), policy)}
		}

	default:
		return Result{Reply: promptSendOrDone(len(s.Media), policy)}
	}
}

// finalize removes the session unconditionally and hands its contents to the
// orchestrator. Ticket-creation failures downstream never resurrect it.
func (m *Machine) finalize(s *Session) Result {
	m.store.Delete(s.Channel, s.UserID)

	m.logger.Info("conversation finalized",
		"channel", s.Channel,
		"user", s.UserID,
		"media", len(s.Media),
		"has_location", s.Location != nil,
	)

	return Result{Finalize: &Finalize{
		Channel:     s.Channel,
		UserID:      s.UserID,
		DisplayName: s.DisplayName,
		Query:       s.Query,
		Media:       s.Media,
		Location:    s.Location,
	}}
}
