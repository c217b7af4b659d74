package llm

import (
	"context"
	"errors"

	"github.com/ppiankov/aem/internal/model"
)

// Client is the LLM fabric consumed by the contradiction detector and the attack judge
type Client interface {
	// Name returns the provider name
	Name() string

	// Complete runs one synchronous completion
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one completion call
type Request struct {
	// Model is the provider model id; empty uses the client default
	Model string

	// System and User are the two prompt halves
	System string
	User   string

	// MaxTokens limits the response length
	MaxTokens int

	// ProjectID attributes spend to a project
	ProjectID string
}

// Response is the text and token accounting of one completion
type Response struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Cached       bool   `json:"-"`
}

// TotalTokens returns input plus output tokens
func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ErrEmptyResponse is returned when a provider answers without content
var ErrEmptyResponse = errors.New("empty completion")

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "static", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom or OpenAI-compatible endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 1000,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		MaxTokens:  c.MaxTokens,
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
	}
}

func (c Config) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}
