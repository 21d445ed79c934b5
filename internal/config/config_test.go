package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJSON = `{
  "data_dir": "/tmp/civicline-test",
  "classifier": {
    "api_keys": ["key-one", "key-two"],
    "model": "gemini-2.0-flash-exp"
  },
  "connectors": {
    "telegram": {
      "token": "123456:ABC",
      "allow_from": [100, 200]
    },
    "whatsapp": {
      "account_sid": "AC123",
      "auth_token": "secret",
      "from_number": "whatsapp:+14155238886"
    }
  },
  "api": {
    "host": "0.0.0.0",
    "port": 8080,
    "api_key": "dashboard-key"
  }
}`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(validJSON), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/tmp/civicline-test" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if len(cfg.Classifier.APIKeys) != 2 || cfg.Classifier.APIKeys[1] != "key-two" {
		t.Errorf("api_keys = %v", cfg.Classifier.APIKeys)
	}
	if cfg.Connectors.Telegram == nil || cfg.Connectors.Telegram.Token != "123456:ABC" {
		t.Errorf("telegram = %+v", cfg.Connectors.Telegram)
	}
	if len(cfg.Connectors.Telegram.AllowFrom) != 2 {
		t.Errorf("allow_from = %v", cfg.Connectors.Telegram.AllowFrom)
	}
	if cfg.Connectors.WhatsApp == nil || cfg.Connectors.WhatsApp.AccountSID != "AC123" {
		t.Errorf("whatsapp = %+v", cfg.Connectors.WhatsApp)
	}
	if cfg.API.Port != 8080 || cfg.API.Key != "dashboard-key" {
		t.Errorf("api = %+v", cfg.API)
	}
}

func TestLoad_FileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Connectors: ConnectorConfig{
			Telegram: &TelegramConfig{},
			WhatsApp: &WhatsAppConfig{AccountSID: "AC1"},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"data_dir is required",
		"connectors.telegram.token is required",
		"connectors.whatsapp.auth_token is required",
		"connectors.whatsapp.from_number is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidate_NoConnectors(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one connector") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_EmptyAPIKeysAllowed(t *testing.T) {
	cfg := &Config{
		DataDir:    "/data",
		Connectors: ConnectorConfig{Telegram: &TelegramConfig{Token: "t"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("no classifier keys should validate (fallback mode): %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CIVIC_DATA_DIR", "/srv/civic")
	t.Setenv("CIVIC_GEMINI_API_KEYS", "k1, k2 ,k3")
	t.Setenv("CIVIC_TELEGRAM_TOKEN", "tok")
	t.Setenv("CIVIC_TELEGRAM_ALLOW_FROM", "11,22")
	t.Setenv("CIVIC_TWILIO_ACCOUNT_SID", "AC9")
	t.Setenv("CIVIC_TWILIO_AUTH_TOKEN", "tw-secret")
	t.Setenv("CIVIC_TWILIO_FROM_NUMBER", "whatsapp:+1555")
	t.Setenv("CIVIC_API_PORT", "9090")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.DataDir != "/srv/civic" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if len(cfg.Classifier.APIKeys) != 3 || cfg.Classifier.APIKeys[2] != "k3" {
		t.Errorf("api_keys = %v", cfg.Classifier.APIKeys)
	}
	if cfg.Connectors.Telegram == nil || len(cfg.Connectors.Telegram.AllowFrom) != 2 {
		t.Errorf("telegram = %+v", cfg.Connectors.Telegram)
	}
	if cfg.Connectors.WhatsApp == nil || cfg.Connectors.WhatsApp.FromNumber != "whatsapp:+1555" {
		t.Errorf("whatsapp = %+v", cfg.Connectors.WhatsApp)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("port = %d", cfg.API.Port)
	}
}

func TestLoadFromEnv_BadAllowFrom(t *testing.T) {
	t.Setenv("CIVIC_TELEGRAM_TOKEN", "tok")
	t.Setenv("CIVIC_TELEGRAM_ALLOW_FROM", "11,abc")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric allow_from")
	}
}
