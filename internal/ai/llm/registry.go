package llm

import (
	"context"
	"errors"
	"fmt"

	"tradebot-architect/internal/circuit"
	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/logging"
)

// ErrBreakerOpen is returned when a provider's breaker rejects the call
var ErrBreakerOpen = errors.New("llm provider circuit open")

func log() *logging.Logger {
	return logging.WithComponent("llm")
}

// ProviderKeys carries the API keys per provider
type ProviderKeys struct {
	OpenAI string
	Claude string
	Gemini string
}

// modelRoutes maps a chat model label to the provider and upstream model id
var modelRoutes = map[conversation.Model]struct {
	provider Provider
	model    string
}{
	conversation.ModelGPT4o:          {ProviderOpenAI, "gpt-4o"},
	conversation.ModelClaude37Sonnet: {ProviderClaude, "claude-3-7-sonnet-20250219"},
	conversation.ModelGemini20Flash:  {ProviderGemini, "gemini-2.0-flash"},
}

// completer is satisfied by *Client
type completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)
	IsConfigured() bool
}

// Registry routes chat model labels to provider clients guarded by circuit breakers
type Registry struct {
	clients  map[conversation.Model]completer
	breakers *circuit.Group
}

// NewRegistry builds one client per known model label. base supplies the
// shared token/temperature/timeout settings.
func NewRegistry(keys ProviderKeys, base ClientConfig, breakers *circuit.Group) *Registry {
	if breakers == nil {
		breakers = circuit.NewGroup(nil)
	}
	r := &Registry{
		clients:  make(map[conversation.Model]completer, len(modelRoutes)),
		breakers: breakers,
	}
	for label, route := range modelRoutes {
		cfg := base
		cfg.Provider = route.provider
		cfg.Model = route.model
		cfg.BaseURL = ""
		switch route.provider {
		case ProviderOpenAI:
			cfg.APIKey = keys.OpenAI
		case ProviderClaude:
			cfg.APIKey = keys.Claude
		case ProviderGemini:
			cfg.APIKey = keys.Gemini
		}
		r.clients[label] = NewClient(&cfg)

		cb := breakers.For(string(label))
		cb.OnTrip(func(name, reason string) {
			log().Warn("LLM provider circuit opened", "model", name, "reason", reason)
		})
		cb.OnReset(func(name string) {
			log().Info("LLM provider circuit closed", "model", name)
		})
	}
	return r
}

// Available reports whether the model has a configured provider
func (r *Registry) Available(model conversation.Model) bool {
	c, ok := r.clients[model]
	return ok && c.IsConfigured()
}

// Reply asks the provider behind model for a free-form reply.
func (r *Registry) Reply(ctx context.Context, model conversation.Model, state conversation.State, history []conversation.Turn, message string) (string, error) {
	c, ok := r.clients[model]
	if !ok {
		return "", fmt.Errorf("unknown model %q", model)
	}
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	cb := r.breakers.For(string(model))
	if allowed, reason := cb.Allow(); !allowed {
		return "", fmt.Errorf("%w: %s", ErrBreakerOpen, reason)
	}

	reply, err := c.Complete(ctx, BuildSystemPrompt(state), BuildMessages(history, message))
	if err != nil {
		cb.RecordFailure(err)
		return "", err
	}
	cb.RecordSuccess()
	return reply, nil
}
