package classify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/civicline/civicline/pkg/civic"
)

const (
	defaultMaxErrors  = 3
	defaultCooldown   = 60 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
	defaultBackoff    = time.Second
	defaultMaxBackoff = 10 * time.Second
)

// Client issues one classification call against the external service using
// the given credential and returns the raw generated text.
type Client interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// credHealth tracks one credential's recent failures. Approximate by design:
// a lost increment under contention is tolerable, corruption is not, so all
// access goes through the gateway mutex.
type credHealth struct {
	consecutiveErrors int
	cooldownUntil     time.Time
}

// Gateway wraps the external classification service behind multiple
// credentials with health-aware rotation, bounded retry, and a deterministic
// fallback. Classify never returns an error: on total failure the result has
// IsFallback set and downstream code has no error path to handle.
type Gateway struct {
	client Client
	logger *slog.Logger

	maxErrors  int
	cooldown   time.Duration
	maxRetries int
	timeout    time.Duration
	backoff    time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	keys   []string
	health []credHealth
	cursor int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout bounds each individual classification call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithMaxRetries sets the total number of attempts per Classify call.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// WithBackoff sets the base and cap of the exponential retry backoff.
func WithBackoff(base, max time.Duration) Option {
	return func(g *Gateway) { g.backoff = base; g.maxBackoff = max }
}

// WithCooldown sets how long an exhausted credential stays benched.
func WithCooldown(d time.Duration) Option {
	return func(g *Gateway) { g.cooldown = d }
}

// NewGateway creates a classification gateway over the given credentials.
// An empty key list is accepted; Classify then always returns the fallback.
func NewGateway(client Client, apiKeys []string, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		client:     client,
		logger:     logger,
		maxErrors:  defaultMaxErrors,
		cooldown:   defaultCooldown,
		maxRetries: defaultMaxRetries,
		timeout:    defaultTimeout,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		keys:       apiKeys,
		health:     make([]credHealth, len(apiKeys)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify analyzes a complaint and returns a structured result. It never
// fails: timeouts, rate limits, malformed responses, and missing credentials
// all resolve to a fallback result with IsFallback set.
func (g *Gateway) Classify(ctx context.Context, query string) civic.ClassificationResult {
	if len(g.keys) == 0 {
		g.logger.Warn("no classification credentials configured")
		return fallbackResult(query, "no credentials configured")
	}

	prompt := buildPrompt(query)
	var lastClass string

	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			if !g.wait(ctx, attempt) {
				lastClass = "timeout"
				break
			}
		}

		idx := g.pickCredential()
		key := g.keys[idx]

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		raw, err := g.client.Generate(callCtx, key, prompt)
		cancel()

		if err == nil {
			g.recordSuccess(idx)
			result, perr := parseResult(raw)
			if perr != nil {
				g.logger.Warn("classification response unparseable",
					"attempt", attempt+1, "error", perr)
				return fallbackResult(query, "parse error")
			}
			g.logger.Info("classification complete",
				"department", result.Department,
				"priority", result.Priority,
				"request_type", result.RequestType,
			)
			return result
		}

		lastClass = classOf(err)
		g.recordFailure(idx)
		g.logger.Warn("classification attempt failed",
			"attempt", attempt+1,
			"credential", idx,
			"class", lastClass,
			"error", err,
		)

		// A definitive client error means the request itself is bad; retrying
		// with another credential cannot help.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Definitive() {
			return fallbackResult(query, lastClass)
		}

		// Rotate past the failed credential for the next attempt.
		g.mu.Lock()
		g.cursor = (idx + 1) % len(g.keys)
		g.mu.Unlock()
	}

	if lastClass == "" {
		lastClass = "unknown"
	}
	return fallbackResult(query, lastClass)
}

// pickCredential returns the index of the next healthy credential, starting
// from the rotation cursor. A credential is healthy when its error count is
// under the limit or its cooldown has elapsed (which also clears the count).
// If every credential is unhealthy, all health records are reset and the
// first credential is used.
func (g *Gateway) pickCredential() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for i := 0; i < len(g.keys); i++ {
		idx := (g.cursor + i) % len(g.keys)
		h := &g.health[idx]

		if h.consecutiveErrors >= g.maxErrors {
			if now.Before(h.cooldownUntil) {
				continue
			}
			// Cooldown expired: the credential gets a clean slate.
			h.consecutiveErrors = 0
			h.cooldownUntil = time.Time{}
		}

		g.cursor = idx
		return idx
	}

	g.logger.Warn("all credentials unhealthy, resetting health records")
	for i := range g.health {
		g.health[i] = credHealth{}
	}
	g.cursor = 0
	return 0
}

func (g *Gateway) recordSuccess(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.health[idx].consecutiveErrors > 0 {
		g.health[idx].consecutiveErrors--
	}
}

func (g *Gateway) recordFailure(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := &g.health[idx]
	h.consecutiveErrors++
	if h.consecutiveErrors >= g.maxErrors {
		h.cooldownUntil = time.Now().Add(g.cooldown)
		g.logger.Warn("credential benched",
			"credential", idx,
			"errors", h.consecutiveErrors,
			"cooldown", g.cooldown,
		)
	}
}

// wait sleeps for the exponential backoff before retry n. Returns false if
// the context expired first.
func (g *Gateway) wait(ctx context.Context, attempt int) bool {
	d := g.backoff << (attempt - 1)
	if d > g.maxBackoff {
		d = g.maxBackoff
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// classOf maps an error to the failure class used in fallback reasoning.
func classOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 400:
			return "bad request"
		case 429:
			return "rate limited"
		case 503:
			return "service unavailable"
		default:
			return "api error"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

// fallbackResult is the deterministic degraded-mode classification: the
// complaint is treated as valid, routed to the general department at medium
// priority, and flagged for manual review.
func fallbackResult(query, failureClass string) civic.ClassificationResult {
	summary := truncate(query, 100)
	return civic.ClassificationResult{
		RequestType:       civic.RequestValid,
		Department:        "general",
		SimplifiedSummary: summary,
		Priority:          civic.PriorityMedium,
		Confidence:        0,
		Reasoning:         "Automatic analysis failed (" + failureClass + "). Manual review required.",
		SuggestedActions: []string{
			"Manual review required",
			"Verify query content",
			"Assign to appropriate department",
		},
		IsFallback: true,
	}
}

// truncate caps s at max characters, counting runes so multi-byte scripts are
// never cut mid-character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
