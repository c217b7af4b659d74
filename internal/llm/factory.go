package llm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/budget"
	"github.com/ppiankov/aem/internal/cache"
)

// NewClient creates a provider client based on configuration.
// An empty provider returns (nil, nil): the LLM is disabled.
func NewClient(config Config) (Client, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIClient(config)

	case "anthropic", "claude":
		return NewAnthropicClient(config)

	case "static":
		return NewStaticClient("{}"), nil

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, static)", config.Provider)
	}
}

// Options wires the decorators around a provider client
type Options struct {
	Cache             cache.Cache
	CacheTTL          time.Duration
	RequestsPerSecond float64
	Burst             int
	Oracle            budget.Oracle
	Logger            *zap.Logger
}

// Wrap layers budget, cache and rate limiting around base, outermost first.
// A nil base returns nil.
func Wrap(base Client, opts Options) *BudgetedClient {
	if base == nil {
		return nil
	}

	var c Client = base
	if opts.RequestsPerSecond > 0 {
		c = NewRateLimitedClient(c, NewLimiter(opts.RequestsPerSecond, opts.Burst))
	}
	if opts.Cache != nil {
		c = NewCachedClient(c, opts.Cache, opts.CacheTTL)
	}
	return NewBudgetedClient(c, opts.Oracle, opts.Logger)
}
