package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level civicline configuration.
type Config struct {
	DataDir    string           `json:"data_dir"`
	Classifier ClassifierConfig `json:"classifier"`
	Connectors ConnectorConfig  `json:"connectors"`
	API        APIConfig        `json:"api"`
}

// ClassifierConfig holds Gemini classification settings. Multiple API keys
// enable credential rotation when one key is exhausted or rate limited.
type ClassifierConfig struct {
	APIKeys []string `json:"api_keys"`
	Model   string   `json:"model,omitempty"`
	BaseURL string   `json:"base_url,omitempty"`
}

// ConnectorConfig holds settings for the chat platform connectors.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	WhatsApp *WhatsAppConfig `json:"whatsapp,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// WhatsAppConfig holds Twilio WhatsApp settings.
type WhatsAppConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with CIVIC_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DataDir: getenv("CIVIC_DATA_DIR", "/data"),
		Classifier: ClassifierConfig{
			APIKeys: splitList(os.Getenv("CIVIC_GEMINI_API_KEYS")),
			Model:   os.Getenv("CIVIC_GEMINI_MODEL"),
			BaseURL: os.Getenv("CIVIC_GEMINI_BASE_URL"),
		},
		API: APIConfig{
			Host: getenv("CIVIC_API_HOST", "0.0.0.0"),
			Port: getenvInt("CIVIC_API_PORT", 8080),
			Key:  os.Getenv("CIVIC_API_KEY"),
		},
	}

	if token := os.Getenv("CIVIC_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("CIVIC_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: CIVIC_TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}

	if sid := os.Getenv("CIVIC_TWILIO_ACCOUNT_SID"); sid != "" {
		cfg.Connectors.WhatsApp = &WhatsAppConfig{
			AccountSID: sid,
			AuthToken:  os.Getenv("CIVIC_TWILIO_AUTH_TOKEN"),
			FromNumber: os.Getenv("CIVIC_TWILIO_FROM_NUMBER"),
		}
	}

	return cfg, nil
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}

	// An empty key list is allowed; the classifier degrades to fallback
	// results instead of refusing to start.
	for i, key := range c.Classifier.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("classifier.api_keys[%d] is empty", i))
		}
	}

	if c.Connectors.Telegram == nil && c.Connectors.WhatsApp == nil {
		errs = append(errs, "at least one connector (telegram or whatsapp) is required")
	}
	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if wa := c.Connectors.WhatsApp; wa != nil {
		if wa.AccountSID == "" {
			errs = append(errs, "connectors.whatsapp.account_sid is required")
		}
		if wa.AuthToken == "" {
			errs = append(errs, "connectors.whatsapp.auth_token is required")
		}
		if wa.FromNumber == "" {
			errs = append(errs, "connectors.whatsapp.from_number is required")
		}
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
