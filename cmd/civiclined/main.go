package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	apiPkg "github.com/civicline/civicline/internal/api"
	"github.com/civicline/civicline/internal/classify"
	"github.com/civicline/civicline/internal/config"
	"github.com/civicline/civicline/internal/connector"
	"github.com/civicline/civicline/internal/connector/telegram"
	"github.com/civicline/civicline/internal/connector/whatsapp"
	"github.com/civicline/civicline/internal/dispatch"
	"github.com/civicline/civicline/internal/intake"
	"github.com/civicline/civicline/internal/logbuf"
	"github.com/civicline/civicline/internal/orchestrator"
	"github.com/civicline/civicline/internal/scheduler"
	"github.com/civicline/civicline/internal/ticket"
	"github.com/civicline/civicline/pkg/civic"
)

const sessionMaxIdle = 30 * time.Minute

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	envFile := flag.String("env-file", "", "Path to .env file (optional)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// .env is optional; a missing file is not an error unless named explicitly.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load env file %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		godotenv.Load()
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logRing := logbuf.NewRing(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logRing))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("civiclined starting", "data_dir", cfg.DataDir)

	// 1. Ticket store
	os.MkdirAll(cfg.DataDir, 0o755)
	dbPath := filepath.Join(cfg.DataDir, "tickets.db")
	store, err := ticket.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open ticket store", "path", dbPath, "error", err)
		os.Exit(1)
	}

	// 2. Classifier
	var geminiOpts []classify.GeminiOption
	if cfg.Classifier.BaseURL != "" {
		geminiOpts = append(geminiOpts, classify.WithGeminiBaseURL(cfg.Classifier.BaseURL))
	}
	if cfg.Classifier.Model != "" {
		geminiOpts = append(geminiOpts, classify.WithGeminiModel(cfg.Classifier.Model))
	}
	gateway := classify.NewGateway(
		classify.NewGemini(geminiOpts...),
		cfg.Classifier.APIKeys,
		logger.With("component", "classifier"),
	)
	if len(cfg.Classifier.APIKeys) == 0 {
		logger.Warn("no classifier API keys configured, tickets will use fallback classification")
	}

	// 3. Outbound queue + dispatcher
	queue, err := dispatch.NewQueue(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open outbound queue", "error", err)
		os.Exit(1)
	}
	dispatcher := dispatch.NewDispatcher(queue, logger.With("component", "dispatch"))

	// 4. Intake machine + orchestrator
	sessions := intake.NewMemoryStore()
	machine := intake.NewMachine(sessions, logger.With("component", "intake"))
	orch := orchestrator.New(machine, store, gateway, dispatcher, logger.With("component", "orchestrator"))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Connectors
	handler := connector.Handler(orch.HandleInbound)

	if cfg.Connectors.Telegram != nil {
		tgConn, err := telegram.New(
			telegram.Config{
				Token:         cfg.Connectors.Telegram.Token,
				AllowFrom:     cfg.Connectors.Telegram.AllowFrom,
				MaxVideoBytes: intake.PolicyFor(civic.ChannelTelegram).MaxVideoBytes,
			},
			handler,
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		dispatcher.Register(tgConn)
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
		logger.Info("telegram connector started")
	}

	var webhook http.Handler
	if cfg.Connectors.WhatsApp != nil {
		waConn, err := whatsapp.New(
			whatsapp.Config{
				AccountSID: cfg.Connectors.WhatsApp.AccountSID,
				AuthToken:  cfg.Connectors.WhatsApp.AuthToken,
				FromNumber: cfg.Connectors.WhatsApp.FromNumber,
			},
			handler,
			logger.With("connector", "whatsapp"),
		)
		if err != nil {
			logger.Error("failed to init whatsapp connector", "error", err)
			os.Exit(1)
		}
		dispatcher.Register(waConn)
		webhook = waConn
		go safeGo(logger, "whatsapp", func() { waConn.Start(ctx) })
		logger.Info("whatsapp connector started")
	}

	// 6. Maintenance jobs
	sched := scheduler.New(logger.With("component", "scheduler"))
	sched.AddJob("queue-flush", "@every 5m", func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := dispatcher.FlushQueue(flushCtx); err != nil {
			logger.Error("queue flush failed", "error", err)
		} else if n > 0 {
			logger.Info("queued messages delivered", "count", n)
		}
	})
	sched.AddJob("session-sweep", "@every 10m", func() {
		if n := intake.SweepStale(sessions, sessionMaxIdle); n > 0 {
			logger.Info("stale sessions swept", "count", n)
		}
	})
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 7. API server (also hosts the WhatsApp webhook)
	apiSrv := apiPkg.NewServer(store, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logRing, webhook)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	orch.Wait()
	logger.Info("civiclined stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
