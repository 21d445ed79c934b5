package orchestrator

import (
	"fmt"
	"strings"

	"github.com/civicline/civicline/pkg/civic"
)

const msgWelcome = `👋 Welcome to the CivicLine support bot!

I'm here to help you report civic issues and complaints. Here are the commands you can use:

/start - Show this welcome message
/help - Get help and available commands
/ticket - Register a new complaint
/mytickets - View your existing complaints
/status - Check the status of your tickets

How can I assist you today?`

const msgHelp = `📋 Available Commands:

/start - Welcome message
/help - This help menu
/ticket - Register a new complaint
  Usage: /ticket <describe your issue>
/mytickets - View your complaints
/status - Status summary of your tickets
/cancel - Cancel the current operation

Example:
/ticket There is a large pothole on MG Road`

const (
	msgTicketsError = "❌ Error fetching your tickets. Please try again."
	msgStatusError  = "❌ Error fetching status. Please try again."
	msgCreateError  = "❌ Error creating your complaint. Please try again with /ticket"
	msgNoTickets    = "📭 You have no tickets yet. Use /ticket to register a complaint."
)

func msgMyTickets(tickets []*civic.Ticket) string {
	if len(tickets) == 0 {
		return msgNoTickets
	}

	var b strings.Builder
	b.WriteString("📋 Your Tickets:\n")
	for i, t := range tickets {
		query := truncate(t.Query, 50)
		fmt.Fprintf(&b, "\n%d. %s\n   📝 %s\n   Status: %s\n   Created: %s\n",
			i+1, t.ID, query, strings.ToUpper(string(t.Status)), t.CreatedAt.Format("02 Jan 2006"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate caps s at max characters on a rune boundary.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func msgStatusSummary(counts map[civic.TicketStatus]int) string {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return msgNoTickets
	}

	return fmt.Sprintf(`📊 Ticket Status Summary:

🔵 Open: %d
🟡 In Progress: %d
🟢 Resolved: %d
⚫ Closed: %d

Total Tickets: %d`,
		counts[civic.StatusOpen],
		counts[civic.StatusInProgress],
		counts[civic.StatusResolved],
		counts[civic.StatusClosed],
		total)
}

func msgTicketNotFound(id string) string {
	return fmt.Sprintf("❌ Ticket %s not found. Use /mytickets to see your tickets.", id)
}

func msgTicketDetail(t *civic.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎫 Ticket %s\n\n", t.ID)
	fmt.Fprintf(&b, "📝 Query: %s\n", t.Query)
	fmt.Fprintf(&b, "📊 Status: %s\n", strings.ToUpper(string(t.Status)))
	fmt.Fprintf(&b, "⚡ Priority: %s\n", t.Priority)
	if t.Department != "" && !t.IsFallback {
		fmt.Fprintf(&b, "🏢 Department: %s\n", t.Department)
	}
	if t.MediaCount > 0 {
		fmt.Fprintf(&b, "📸 Media: %d attached\n", t.MediaCount)
	}
	fmt.Fprintf(&b, "⏰ Created: %s", t.CreatedAt.Format("02 Jan 2006 15:04"))
	return b.String()
}

func msgTicketCreated(t *civic.Ticket, mediaAttached int) string {
	var b strings.Builder
	b.WriteString("✅ Complaint registered successfully!\n\n")
	fmt.Fprintf(&b, "📌 Ticket ID: %s\n", t.ID)
	fmt.Fprintf(&b, "📝 Query: %s\n", t.Query)
	fmt.Fprintf(&b, "📊 Status: %s\n", strings.ToUpper(string(t.Status)))
	fmt.Fprintf(&b, "⏰ Created: %s\n", t.CreatedAt.Format("02 Jan 2006 15:04"))
	if mediaAttached > 0 {
		fmt.Fprintf(&b, "📸 Media: %d attached\n", mediaAttached)
	}
	b.WriteString("\n🤖 Your complaint is being analyzed and routed to the right department.\n")
	b.WriteString("\nYou can check your ticket anytime with /mytickets.")
	return b.String()
}
