package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"collabbot/internal/domain"
)

const (
	defaultAPIRetries        = 2
	defaultAPIRetryBackoff   = 1500 * time.Millisecond
	defaultAPITimeout        = 5 * time.Minute
	maxHTTPErrorBodyReadSize = 64 * 1024
	maxResponseBodySize      = 8 * 1024 * 1024
)

var defaultEndpoints = map[domain.Engine]string{
	domain.EngineOpenAI:     "https://api.openai.com/v1/chat/completions",
	domain.EngineGroq:       "https://api.groq.com/openai/v1/chat/completions",
	domain.EngineDeepSeek:   "https://api.deepseek.com/chat/completions",
	domain.EngineXAI:        "https://api.x.ai/v1/chat/completions",
	domain.EngineOpenRouter: "https://openrouter.ai/api/v1/chat/completions",
	domain.EngineMistral:    "https://api.mistral.ai/v1/chat/completions",
}

// DefaultEndpoint returns the public chat-completions URL for engine.
func DefaultEndpoint(engine domain.Engine) (string, bool) {
	endpoint, ok := defaultEndpoints[engine]
	return endpoint, ok
}

type ChatClientConfig struct {
	Engine       domain.Engine
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Headers      map[string]string
	Logger       *slog.Logger
	Client       *http.Client
}

// ChatClient speaks the OpenAI-compatible chat-completions protocol shared
// by every remote engine.
type ChatClient struct {
	engine       domain.Engine
	endpoint     string
	apiKey       string
	retries      int
	retryBackoff time.Duration
	headers      map[string]string
	logger       *slog.Logger
	client       *http.Client
}

func NewChatClient(cfg ChatClientConfig) (*ChatClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint, _ = DefaultEndpoint(cfg.Engine)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("empty API endpoint for engine %q", cfg.Engine)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid API endpoint %q: %w", endpoint, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	retries := cfg.Retries
	switch {
	case retries < 0:
		retries = 0
	case retries == 0:
		retries = defaultAPIRetries
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultAPIRetryBackoff
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
		}
	}

	return &ChatClient{
		engine:       cfg.Engine,
		endpoint:     endpoint,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		retries:      retries,
		retryBackoff: retryBackoff,
		headers:      cfg.Headers,
		logger:       cfg.Logger,
		client:       client,
	}, nil
}

func (c *ChatClient) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		text, err := c.completeOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableAPIError(err) || attempt == c.retries+1 || ctx.Err() != nil {
			break
		}
		wait := time.Duration(attempt) * c.retryBackoff
		c.logger.Warn("chat completion retry",
			"engine", c.engine,
			"agent", req.Agent,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown chat completion error")
	}
	return "", lastErr
}

func (c *ChatClient) completeOnce(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	payload := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create API request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyReadSize))
		if readErr != nil {
			return "", fmt.Errorf("chat api status=%d and read body failed: %w", resp.StatusCode, readErr)
		}
		return "", apiHTTPError{
			statusCode: resp.StatusCode,
			body:       strings.TrimSpace(string(body)),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("chat api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func isRetryableAPIError(err error) bool {
	var statusErr apiHTTPError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode == http.StatusTooManyRequests || statusErr.statusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice  `json:"choices"`
	Error   *chatAPIError `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type chatAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type apiHTTPError struct {
	statusCode int
	body       string
}

func (e apiHTTPError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("chat api status=%d", e.statusCode)
	}
	return fmt.Sprintf("chat api status=%d body=%s", e.statusCode, e.body)
}
