package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

var defaultBaseURLs = map[Provider]string{
	ProviderClaude: "https://api.anthropic.com/v1",
	ProviderOpenAI: "https://api.openai.com/v1",
	ProviderGemini: "https://generativelanguage.googleapis.com/v1beta",
}

// ErrNotConfigured is returned when a provider has no API key
var ErrNotConfigured = errors.New("llm provider not configured")

// ClientConfig holds LLM client configuration
type ClientConfig struct {
	Provider    Provider      `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	BaseURL     string        `json:"base_url"` // overrides the provider default
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o",
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
}

// Client is the LLM API client
type Client struct {
	config     *ClientConfig
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new LLM client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[config.Provider]
	}
	return &Client{
		config:  config,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeRequest represents a Claude API request
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
}

// OpenAIRequest represents an OpenAI API request
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// GeminiRequest represents a Gemini generateContent request
type GeminiRequest struct {
	SystemInstruction *GeminiContent         `json:"systemInstruction,omitempty"`
	Contents          []GeminiContent        `json:"contents"`
	GenerationConfig  GeminiGenerationConfig `json:"generationConfig"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text"`
}

type GeminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// Complete sends the conversation to the configured provider and returns the reply text.
// messages use the roles "user" and "assistant".
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	switch c.config.Provider {
	case ProviderClaude:
		return c.completeClaude(ctx, systemPrompt, messages)
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, systemPrompt, messages)
	case ProviderGemini:
		return c.completeGemini(ctx, systemPrompt, messages)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

// completeClaude sends a request to Claude API
func (c *Client) completeClaude(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	req := ClaudeRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      systemPrompt,
		Messages:    messages,
	}
	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	}

	respBody, err := c.post(ctx, c.baseURL+"/messages", headers, req)
	if err != nil {
		return "", err
	}
	return extractText(respBody, "content.0.text", "Claude")
}

// completeOpenAI sends a request to OpenAI API
func (c *Client) completeOpenAI(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	all := make([]Message, 0, len(messages)+1)
	all = append(all, Message{Role: "system", Content: systemPrompt})
	all = append(all, messages...)

	req := OpenAIRequest{
		Model:       c.config.Model,
		Messages:    all,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}

	respBody, err := c.post(ctx, c.baseURL+"/chat/completions", headers, req)
	if err != nil {
		return "", err
	}
	return extractText(respBody, "choices.0.message.content", "OpenAI")
}

// completeGemini sends a request to the Gemini generateContent API
func (c *Client) completeGemini(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	req := GeminiRequest{
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxTokens,
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: systemPrompt}}}
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, GeminiContent{Role: role, Parts: []GeminiPart{{Text: m.Content}}})
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.config.Model), url.QueryEscape(c.config.APIKey))

	respBody, err := c.post(ctx, endpoint, nil, req)
	if err != nil {
		return "", err
	}
	return extractText(respBody, "candidates.0.content.parts.0.text", "Gemini")
}

func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := gjson.GetBytes(respBody, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, msg)
	}
	return respBody, nil
}

func extractText(respBody []byte, path, provider string) (string, error) {
	if !gjson.ValidBytes(respBody) {
		return "", fmt.Errorf("invalid JSON response from %s", provider)
	}
	if msg := gjson.GetBytes(respBody, "error.message"); msg.Exists() {
		return "", fmt.Errorf("API error: %s", msg.String())
	}
	text := gjson.GetBytes(respBody, path)
	if !text.Exists() || text.String() == "" {
		return "", fmt.Errorf("empty response from %s", provider)
	}
	return text.String(), nil
}

// IsConfigured checks if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
