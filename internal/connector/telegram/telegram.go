package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/civicline/civicline/internal/connector"
	"github.com/civicline/civicline/pkg/civic"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token         string  // Bot token from @BotFather
	AllowFrom     []int64 // Allowed Telegram user IDs (empty = allow all)
	MaxVideoBytes int64   // Reject larger videos before download (0 = no limit)
}

// Connector implements the connector.Connector interface for Telegram.
type Connector struct {
	bot     *tgbotapi.BotAPI
	config  Config
	handler connector.Handler
	logger  *slog.Logger
	client  *http.Client
	cancel  context.CancelFunc
}

// New creates a new Telegram connector.
func New(cfg Config, handler connector.Handler, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:     bot,
		config:  cfg,
		handler: handler,
		logger:  logger,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Connector) Name() civic.Channel { return civic.ChannelTelegram }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			c.handleUpdate(ctx, update.Message)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// SendText delivers a message to a Telegram user.
func (c *Connector) SendText(_ context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid user id %q: %w", userID, err)
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("skipping empty message", "user", userID)
		return nil
	}

	for _, chunk := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := c.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram: send: %w", err)
		}
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	// Access control
	if len(c.config.AllowFrom) > 0 && !contains(c.config.AllowFrom, userID) {
		c.logger.Warn("unauthorized user", "user_id", userID, "username", msg.From.UserName)
		return
	}

	ev, ok := c.parseMessage(msg)
	if !ok {
		return
	}

	in := connector.Inbound{
		Channel:     civic.ChannelTelegram,
		UserID:      strconv.FormatInt(userID, 10),
		DisplayName: displayName(msg.From),
		Event:       ev,
	}

	if err := c.handler(ctx, in); err != nil {
		c.logger.Error("inbound handler error", "user", userID, "error", err)
	}
}

// parseMessage turns a Telegram update into a civic event. Returns false for
// payloads the system doesn't react to.
func (c *Connector) parseMessage(msg *tgbotapi.Message) (civic.Event, bool) {
	switch {
	case msg.IsCommand():
		name := strings.ToLower(msg.Command())
		if name == "cancel" {
			return civic.Event{Kind: civic.EventCancel}, true
		}
		return civic.Event{
			Kind:    civic.EventCommand,
			Command: name,
			Text:    msg.CommandArguments(),
		}, true

	case msg.Location != nil:
		return civic.Event{
			Kind: civic.EventLocation,
			Location: &civic.Location{
				Latitude:  msg.Location.Latitude,
				Longitude: msg.Location.Longitude,
			},
		}, true

	case len(msg.Photo) > 0:
		// Highest resolution variant is last.
		photo := msg.Photo[len(msg.Photo)-1]
		return c.fetchMedia(photo.FileID, "jpg", "image/jpeg"), true

	case msg.Video != nil:
		if c.config.MaxVideoBytes > 0 && int64(msg.Video.FileSize) > c.config.MaxVideoBytes {
			c.logger.Warn("video too large", "size", msg.Video.FileSize)
			return civic.Event{Kind: civic.EventMediaError}, true
		}
		return c.fetchMedia(msg.Video.FileID, "mp4", "video/mp4"), true

	case msg.Text != "":
		return civic.Event{Kind: civic.EventText, Text: msg.Text}, true

	default:
		return civic.Event{}, false
	}
}

// fetchMedia downloads a file from the Telegram file API. Fetch failures map
// to EventMediaError so the intake flow can ask for a resend.
func (c *Connector) fetchMedia(fileID, ext, mime string) civic.Event {
	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		c.logger.Error("media file link failed", "file_id", fileID, "error", err)
		return civic.Event{Kind: civic.EventMediaError}
	}

	data, err := c.download(url)
	if err != nil {
		c.logger.Error("media download failed", "file_id", fileID, "error", err)
		return civic.Event{Kind: civic.EventMediaError}
	}

	c.logger.Debug("media downloaded", "file_id", fileID, "bytes", len(data))

	return civic.Event{
		Kind: civic.EventMedia,
		Media: &civic.MediaItem{
			Data:     data,
			Filename: fmt.Sprintf("%d.%s", time.Now().UnixMilli(), ext),
			MIME:     mime,
		},
	}
}

func (c *Connector) download(url string) ([]byte, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = "Telegram User"
	}
	return name
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
