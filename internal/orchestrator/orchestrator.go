package orchestrator

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/civicline/civicline/internal/connector"
	"github.com/civicline/civicline/internal/intake"
	"github.com/civicline/civicline/internal/ticket"
	"github.com/civicline/civicline/pkg/civic"
)

// Classifier produces a classification for a complaint query. It must always
// return a usable result, falling back internally when the AI is unavailable.
type Classifier interface {
	Classify(ctx context.Context, query string) civic.ClassificationResult
}

// Sender delivers outbound text to a user on a channel.
type Sender interface {
	SendText(ctx context.Context, channel civic.Channel, userID, text string) error
}

// Orchestrator connects the conversation machine to ticket persistence,
// classification, and outbound delivery. It serializes events per user so
// the machine never sees interleaved updates for the same session.
type Orchestrator struct {
	machine    *intake.Machine
	tickets    ticket.Store
	classifier Classifier
	sender     Sender
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	wg sync.WaitGroup
}

// New creates an orchestrator.
func New(machine *intake.Machine, tickets ticket.Store, classifier Classifier, sender Sender, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		machine:    machine,
		tickets:    tickets,
		classifier: classifier,
		sender:     sender,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// HandleInbound processes one inbound event. It satisfies connector.Handler.
func (o *Orchestrator) HandleInbound(ctx context.Context, in connector.Inbound) error {
	lock := o.userLock(intake.Key(in.Channel, in.UserID))
	lock.Lock()
	defer lock.Unlock()

	if in.Event.Kind == civic.EventCommand {
		if reply, handled := o.handleCommand(in); handled {
			o.reply(ctx, in, reply)
			return nil
		}
	}

	res := o.machine.Handle(in.Channel, in.UserID, in.DisplayName, in.Event)
	if res.Reply != "" {
		o.reply(ctx, in, res.Reply)
	}
	if res.Finalize != nil {
		o.finalizeComplaint(ctx, res.Finalize)
	}
	return nil
}

// handleCommand serves the informational commands that never touch session
// state. Conversation commands (ticket, cancel) fall through to the machine.
func (o *Orchestrator) handleCommand(in connector.Inbound) (string, bool) {
	switch in.Event.Command {
	case "start":
		return msgWelcome, true
	case "help":
		return msgHelp, true
	case "mytickets":
		return o.myTickets(in.Channel, in.UserID), true
	case "status":
		if id := strings.TrimSpace(in.Event.Text); id != "" {
			return o.statusDetail(in.Channel, in.UserID, id), true
		}
		return o.statusSummary(in.Channel, in.UserID), true
	default:
		return "", false
	}
}

func (o *Orchestrator) myTickets(channel civic.Channel, userID string) string {
	tickets, err := o.tickets.ListByUser(channel, userID, 10)
	if err != nil {
		o.logger.Error("listing user tickets failed", "channel", channel, "user", userID, "error", err)
		return msgTicketsError
	}
	return msgMyTickets(tickets)
}

// statusDetail serves "/status TKT-...". Tickets are only shown to the user
// who filed them, on the channel they filed from.
func (o *Orchestrator) statusDetail(channel civic.Channel, userID, ticketID string) string {
	t, err := o.tickets.Get(ticketID)
	if err != nil || t.Channel != channel || t.UserID != userID {
		return msgTicketNotFound(ticketID)
	}
	return msgTicketDetail(t)
}

func (o *Orchestrator) statusSummary(channel civic.Channel, userID string) string {
	counts, err := o.tickets.StatusCounts(channel, userID)
	if err != nil {
		o.logger.Error("fetching status counts failed", "channel", channel, "user", userID, "error", err)
		return msgStatusError
	}
	return msgStatusSummary(counts)
}

// finalizeComplaint turns a completed conversation into a persisted ticket.
// The session is already deleted by the time this runs; if ticket creation
// fails the user is asked to start over with /ticket.
func (o *Orchestrator) finalizeComplaint(ctx context.Context, fin *intake.Finalize) {
	now := time.Now().UTC()
	t := &civic.Ticket{
		ID:          ticket.GenerateTicketID(),
		Channel:     fin.Channel,
		UserID:      fin.UserID,
		DisplayName: fin.DisplayName,
		Query:       fin.Query,
		Status:      civic.StatusOpen,
		Priority:    civic.PriorityMedium,
		Location:    fin.Location,
		MediaCount:  len(fin.Media),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.tickets.Create(t); err != nil {
		o.logger.Error("ticket creation failed", "channel", fin.Channel, "user", fin.UserID, "error", err)
		o.reply(ctx, connector.Inbound{Channel: fin.Channel, UserID: fin.UserID}, msgCreateError)
		return
	}

	attached := 0
	for _, item := range fin.Media {
		if _, err := o.tickets.AttachMedia(t.ID, item); err != nil {
			o.logger.Error("attaching media failed", "ticket", t.ID, "seq", item.Seq, "error", err)
			continue
		}
		attached++
	}
	o.logger.Info("ticket created", "ticket", t.ID, "channel", fin.Channel, "media", attached)

	o.reply(ctx, connector.Inbound{Channel: fin.Channel, UserID: fin.UserID}, msgTicketCreated(t, attached))

	// Classification runs in the background so a slow or failing AI never
	// delays the user's confirmation.
	o.background("classify-"+t.ID, func() {
		o.classifyTicket(t.ID, t.Query)
	})
}

func (o *Orchestrator) classifyTicket(ticketID, query string) {
	res := o.classifier.Classify(context.Background(), query)
	if err := o.tickets.UpdateClassification(ticketID, res); err != nil {
		o.logger.Error("applying classification failed", "ticket", ticketID, "error", err)
		return
	}
	o.logger.Info("ticket classified",
		"ticket", ticketID,
		"department", res.Department,
		"priority", res.Priority,
		"fallback", res.IsFallback)
}

// Wait blocks until all background work has finished. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) reply(ctx context.Context, in connector.Inbound, text string) {
	if err := o.sender.SendText(ctx, in.Channel, in.UserID, text); err != nil {
		o.logger.Error("reply failed", "channel", in.Channel, "user", in.UserID, "error", err)
	}
}

func (o *Orchestrator) userLock(key string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	return lock
}

func (o *Orchestrator) background(name string, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("background task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
