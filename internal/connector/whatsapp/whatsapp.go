package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/civicline/civicline/internal/connector"
	"github.com/civicline/civicline/pkg/civic"
)

// Config holds Twilio WhatsApp connector configuration.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string // e.g. "whatsapp:+14155238886"
	BaseURL    string // override for tests; defaults to the Twilio API
}

// RateLimitError marks an outbound send rejected by Twilio's rate or daily
// message limits. Callers may queue the message for a later retry.
type RateLimitError struct {
	Code int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("whatsapp: rate limited (code %d)", e.Code)
}

// Retryable marks the error as safe to retry later.
func (e *RateLimitError) Retryable() bool { return true }

// Connector implements connector.Connector for WhatsApp via the Twilio API.
// Inbound messages arrive on a webhook; the Connector is an http.Handler
// meant to be mounted on the daemon's HTTP server.
type Connector struct {
	config  Config
	handler connector.Handler
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a new WhatsApp connector.
func New(cfg Config, handler connector.Handler, logger *slog.Logger) (*Connector, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("whatsapp: account_sid and auth_token are required")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("whatsapp: from_number is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	return &Connector{
		config:  cfg,
		handler: handler,
		logger:  logger,
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
	}, nil
}

func (c *Connector) Name() civic.Channel { return civic.ChannelWhatsApp }

// Start blocks until the context is cancelled. Inbound traffic arrives via
// the webhook handler, which the daemon mounts on its HTTP server.
func (c *Connector) Start(ctx context.Context) error {
	c.logger.Info("whatsapp connector started (webhook mode)")
	<-ctx.Done()
	c.logger.Info("whatsapp connector stopped")
	return ctx.Err()
}

func (c *Connector) Stop() error { return nil }

// SendText delivers a message to a WhatsApp user through the Twilio REST API.
func (c *Connector) SendText(ctx context.Context, userID, text string) error {
	form := url.Values{}
	form.Set("From", c.config.FromNumber)
	form.Set("To", withPrefix(userID))
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.config.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Twilio reports its sandbox daily limit as error code 63038.
	var twilioErr struct {
		Code int `json:"code"`
	}
	json.Unmarshal(body, &twilioErr)
	if resp.StatusCode == http.StatusTooManyRequests || twilioErr.Code == 63038 {
		return &RateLimitError{Code: twilioErr.Code}
	}
	return fmt.Errorf("whatsapp: send failed (status %d): %s", resp.StatusCode, body)
}

// ServeHTTP handles Twilio's inbound message webhook. Twilio expects a TwiML
// response body; an empty <Response/> acknowledges without auto-replying.
func (c *Connector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}
	userID := strings.TrimPrefix(from, "whatsapp:")

	ev := c.parseWebhook(r)
	in := connector.Inbound{
		Channel:     civic.ChannelWhatsApp,
		UserID:      userID,
		DisplayName: whatsappDisplayName(r.PostFormValue("ProfileName"), userID),
		Event:       ev,
	}

	if err := c.handler(r.Context(), in); err != nil {
		c.logger.Error("whatsapp inbound handler error", "user", userID, "error", err)
	}

	w.Header().Set("Content-Type", "text/xml")
	io.WriteString(w, "<Response></Response>")
}

// parseWebhook extracts a civic event from a Twilio webhook form.
func (c *Connector) parseWebhook(r *http.Request) civic.Event {
	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	if numMedia > 0 {
		mediaURL := r.PostFormValue("MediaUrl0")
		mime := r.PostFormValue("MediaContentType0")
		if strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "video/") {
			return c.fetchMedia(r.Context(), mediaURL, mime)
		}
		// Unsupported media type: treat like a failed fetch so the user is
		// asked to resend something usable.
		return civic.Event{Kind: civic.EventMediaError}
	}

	if lat, lon := r.PostFormValue("Latitude"), r.PostFormValue("Longitude"); lat != "" && lon != "" {
		latF, latErr := strconv.ParseFloat(lat, 64)
		lonF, lonErr := strconv.ParseFloat(lon, 64)
		if latErr == nil && lonErr == nil {
			return civic.Event{
				Kind:     civic.EventLocation,
				Location: &civic.Location{Latitude: latF, Longitude: lonF},
			}
		}
	}

	body := strings.TrimSpace(r.PostFormValue("Body"))
	if strings.HasPrefix(body, "/") {
		name, args, _ := strings.Cut(body[1:], " ")
		name = strings.ToLower(name)
		if name == "cancel" {
			return civic.Event{Kind: civic.EventCancel}
		}
		return civic.Event{Kind: civic.EventCommand, Command: name, Text: strings.TrimSpace(args)}
	}

	return civic.Event{Kind: civic.EventText, Text: body}
}

// fetchMedia downloads one media item from Twilio's media URL using basic
// auth. Failures map to EventMediaError.
func (c *Connector) fetchMedia(ctx context.Context, mediaURL, mime string) civic.Event {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		c.logger.Error("media request failed", "url", mediaURL, "error", err)
		return civic.Event{Kind: civic.EventMediaError}
	}
	req.SetBasicAuth(c.config.AccountSID, c.config.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("media download failed", "url", mediaURL, "error", err)
		return civic.Event{Kind: civic.EventMediaError}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("media download rejected", "url", mediaURL, "status", resp.StatusCode)
		return civic.Event{Kind: civic.EventMediaError}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("media read failed", "url", mediaURL, "error", err)
		return civic.Event{Kind: civic.EventMediaError}
	}

	ext := "jpg"
	if strings.HasPrefix(mime, "video/") {
		ext = "mp4"
	}
	return civic.Event{
		Kind: civic.EventMedia,
		Media: &civic.MediaItem{
			Data:     data,
			Filename: fmt.Sprintf("%d.%s", time.Now().UnixMilli(), ext),
			MIME:     mime,
		},
	}
}

func withPrefix(userID string) string {
	if strings.HasPrefix(userID, "whatsapp:") {
		return userID
	}
	return "whatsapp:" + userID
}

func whatsappDisplayName(profileName, userID string) string {
	if profileName != "" {
		return profileName
	}
	if len(userID) >= 4 {
		return "WhatsApp User " + userID[len(userID)-4:]
	}
	return "WhatsApp User"
}
