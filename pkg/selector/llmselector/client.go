// Package llmselector is the default implementation of the selector.Port,
// backed by Gemini via google.golang.org/genai. It asks the model for a
// starting set, backups and rejections in one structured call; the caller
// (pkg/selector.Select) is responsible for reconciling the result against
// the catalog, so this package only needs to get a reasonable JSON answer
// back, with retries on transient failures.
package llmselector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"tripweave/pkg/config"
	"tripweave/pkg/llm"
	"tripweave/pkg/logging"
)

// Client wraps a *genai.Client with the intent->model profile resolution
// and retry policy the Selector port needs.
type Client struct {
	client   *genai.Client
	profiles map[string]string
	maxRetries int
	timeout    time.Duration
}

// New dials the Gemini backend with the given API key and profile map
// (selection intent name -> model id, e.g. "select_pois" -> "gemini-2.5-flash").
func New(ctx context.Context, apiKey string, cfg config.SelectorConfig) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{
		client:     c,
		profiles:   cfg.Profiles,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
	}, nil
}

// HasProfile reports whether an intent has a configured model, so startup
// validation can fail fast on a misconfigured deployment.
func (c *Client) HasProfile(intent string) bool {
	_, ok := c.profiles[intent]
	return ok
}

func (c *Client) resolveModel(intent string) (string, error) {
	m, ok := c.profiles[intent]
	if !ok || m == "" {
		return "", fmt.Errorf("no model configured for intent %q", intent)
	}
	return m, nil
}

// ValidateModels checks every configured profile resolves to a non-empty
// model id, run once at startup.
func (c *Client) ValidateModels() error {
	for intent, m := range c.profiles {
		if m == "" {
			return fmt.Errorf("profile %q has an empty model id", intent)
		}
	}
	return nil
}

// GenerateText sends a prompt and returns the raw text response.
func (c *Client) GenerateText(ctx context.Context, intent, prompt string) (string, error) {
	model, err := c.resolveModel(intent)
	if err != nil {
		return "", err
	}
	return c.generateWithRetry(ctx, model, prompt, nil)
}

// GenerateJSON sends a prompt asking for strict JSON output and unmarshals
// the cleaned response into target.
func (c *Client) GenerateJSON(ctx context.Context, intent, prompt string, target any) error {
	model, err := c.resolveModel(intent)
	if err != nil {
		return err
	}
	jsonConfig := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	text, err := c.generateWithRetry(ctx, model, prompt, jsonConfig)
	if err != nil {
		return err
	}
	cleaned := llm.CleanJSONBlock(text)
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("unmarshaling selector response: %w", err)
	}
	return nil
}

// Configure swaps in new retry/timeout settings (e.g. after a config reload).
func (c *Client) Configure(cfg config.SelectorConfig) error {
	c.profiles = cfg.Profiles
	c.maxRetries = cfg.MaxRetries
	c.timeout = cfg.Timeout
	return nil
}

// HealthCheck confirms the client has at least one usable profile.
func (c *Client) HealthCheck(ctx context.Context) error {
	if len(c.profiles) == 0 {
		return fmt.Errorf("no selector profiles configured")
	}
	return nil
}

// generateWithRetry retries on 429/529/connection errors with exponential
// backoff (base 1s, doubling per attempt), matching the retry idiom spec §6
// names for LLM calls: "120s timeout + 5 retries exponential 1*2^k".
func (c *Client) generateWithRetry(ctx context.Context, model, prompt string, genConfig *genai.GenerateContentConfig) (string, error) {
	maxRetries := c.maxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if callCtx.Err() != nil {
			return "", callCtx.Err()
		}

		resp, err := c.client.Models.GenerateContent(callCtx, model, genai.Text(prompt), genConfig)
		if err == nil {
			return resp.Text(), nil
		}

		lastErr = err
		if !isRetryable(err) {
			return "", fmt.Errorf("selector generation failed (permanent): %w", err)
		}

		if logging.LLMLogger != nil {
			logging.LLMLogger.Warn("llm selector call failed, retrying", "attempt", attempt+1, "model", model, "error", err)
		}

		delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		select {
		case <-time.After(delay):
		case <-callCtx.Done():
			return "", callCtx.Err()
		}
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// isRetryable classifies rate-limit, overload and connection errors as
// transient; anything else (bad request, auth failure) is treated as
// permanent so callers fail fast instead of burning the retry budget.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "resource_exhausted", "529", "unavailable", "connection", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
