package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/civicline/civicline/internal/classify"
	"github.com/civicline/civicline/internal/config"
)

func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "stats":
		cmdStats()
	case "logs":
		cmdLogs(os.Args[2:])
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: civicctl tickets <list|show|media|set-status>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			requireArg(4, "usage: civicctl tickets show <id>")
			cmdTicketsShow(os.Args[3])
		case "media":
			requireArg(4, "usage: civicctl tickets media <id>")
			cmdTicketsMedia(os.Args[3])
		case "set-status":
			requireArg(5, "usage: civicctl tickets set-status <id> <status>")
			cmdTicketsSetStatus(os.Args[3], os.Args[4])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "classify":
		requireArg(3, "usage: civicctl classify <query>")
		cmdClassify(strings.Join(os.Args[2:], " "))
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: civicctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func requireArg(n int, usage string) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdStats() {
	body, err := apiGet("/api/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *level != "" {
		query += "&level=" + *level
	}
	body, err := apiGet("/api/logs" + query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var entries []map[string]any
	json.Unmarshal(body, &entries)
	for _, e := range entries {
		fmt.Printf("%-24v %-5v %v\n", e["time"], e["level"], e["message"])
	}
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (open|in-progress|resolved|closed)")
	dept := fs.String("department", "", "Filter by department")
	channel := fs.String("channel", "", "Filter by channel (telegram|whatsapp)")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *status != "" {
		query += "&status=" + url.QueryEscape(*status)
	}
	if *dept != "" {
		query += "&department=" + url.QueryEscape(*dept)
	}
	if *channel != "" {
		query += "&channel=" + url.QueryEscape(*channel)
	}

	body, err := apiGet("/api/tickets" + query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var tickets []map[string]any
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		summary, _ := t["summary"].(string)
		if summary == "" {
			summary, _ = t["query"].(string)
		}
		if len(summary) > 60 {
			summary = summary[:60] + "..."
		}
		fmt.Printf("%-24v %-12v %-12v %s\n", t["id"], t["status"], t["department"], summary)
	}
}

func cmdTicketsShow(id string) {
	body, err := apiGet("/api/tickets/" + id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsMedia(id string) {
	body, err := apiGet("/api/tickets/" + id + "/media")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsSetStatus(id, status string) {
	payload := fmt.Sprintf(`{"status":%q}`, status)
	body, err := apiDo("PATCH", "/api/tickets/"+id+"/status", strings.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

// --- local commands ---

// cmdClassify runs a one-off classification against Gemini using the keys
// from the environment. Useful for checking credentials and prompt output
// without sending a real complaint through a bot.
func cmdClassify(query string) {
	keys := splitKeys(os.Getenv("CIVIC_GEMINI_API_KEYS"))
	if len(keys) == 0 {
		fmt.Fprintln(os.Stderr, "error: CIVIC_GEMINI_API_KEYS not set")
		os.Exit(1)
	}

	var opts []classify.GeminiOption
	if base := os.Getenv("CIVIC_GEMINI_BASE_URL"); base != "" {
		opts = append(opts, classify.WithGeminiBaseURL(base))
	}
	if model := os.Getenv("CIVIC_GEMINI_MODEL"); model != "" {
		opts = append(opts, classify.WithGeminiModel(model))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	gateway := classify.NewGateway(classify.NewGemini(opts...), keys, logger)

	res := gateway.Classify(context.Background(), query)
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if res.IsFallback {
		fmt.Fprintln(os.Stderr, "warning: fallback classification (AI unavailable)")
		os.Exit(1)
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path, nil)
}

func apiDo(method, path string, body io.Reader) ([]byte, error) {
	base := envOr("CIVIC_API_URL", "http://localhost:8080")

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("CIVIC_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func splitKeys(s string) []string {
	var keys []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("civicctl - civicline management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                        Check daemon health")
	fmt.Println("  stats                         Ticket statistics")
	fmt.Println("  logs                          Recent daemon logs (--level, --limit)")
	fmt.Println("  tickets list                  List tickets (--status, --department, --channel, --limit)")
	fmt.Println("  tickets show <id>             Show ticket details")
	fmt.Println("  tickets media <id>            List a ticket's media")
	fmt.Println("  tickets set-status <id> <s>   Update ticket status")
	fmt.Println("  classify <query>              Run a one-off classification")
	fmt.Println("  config validate <path>        Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  CIVIC_API_URL           Daemon URL (default: http://localhost:8080)")
	fmt.Println("  CIVIC_API_KEY           API key for authentication")
	fmt.Println("  CIVIC_GEMINI_API_KEYS   Comma-separated Gemini keys (for classify)")
}
