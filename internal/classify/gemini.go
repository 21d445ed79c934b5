package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the classification service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("classification api error (status %d): %s", e.StatusCode, e.Message)
}

// Definitive reports whether retrying can't help: the service judged the
// request itself malformed.
func (e *APIError) Definitive() bool {
	return e.StatusCode == http.StatusBadRequest
}

// GeminiClient calls the Google Generative Language API. The credential is
// supplied per call so the gateway can rotate keys.
type GeminiClient struct {
	client  *http.Client
	baseURL string
	model   string
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithGeminiBaseURL sets a custom API base URL.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = url }
}

// WithGeminiModel sets the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(c *GeminiClient) { c.model = model }
}

// NewGemini creates a Gemini API client. Per-call deadlines come from the
// caller's context; the transport-level timeout is only a safety net.
func NewGemini(opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: "https://generativelanguage.googleapis.com",
		model:   "gemini-2.0-flash-exp",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends one prompt and returns the generated text of the first
// candidate.
func (c *GeminiClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: geminiGenConfig{
			Temperature:     0.7,
			MaxOutputTokens: 1024,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", fmt.Errorf("gemini: unmarshal response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// --- Gemini wire format types ---

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}
