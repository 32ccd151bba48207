package llmproxy

import (
	"context"
	"errors"
	"fmt"
)

// compositeForwarder dispatches a /call request to the OpenAI or Anthropic
// forwarder by ModelEntry.Provider. The miner-supplied api_key travels with
// each request (spec.md §4.6 callRequest.APIKey) rather than coming from
// the proxy process's own environment, so both sub-forwarders resolve
// their key from a per-call context value set by apiKeyContext.
type compositeForwarder struct {
	openai    Forwarder
	anthropic Forwarder
}

// NewProviderForwarder builds the production Forwarder used by the proxy's
// HTTP server, forwarding to the real OpenAI and Anthropic APIs.
func NewProviderForwarder() Forwarder {
	keyFor := func(ctx context.Context) (string, error) {
		key, ok := apiKeyFromContext(ctx)
		if !ok || key == "" {
			return "", errors.New("no api_key supplied for this call")
		}
		return key, nil
	}
	return &compositeForwarder{
		openai:    newOpenAIForwarder(keyFor),
		anthropic: newAnthropicForwarder(keyFor),
	}
}

func (f *compositeForwarder) Call(ctx context.Context, entry ModelEntry, query string, temperature *float64, maxTokens *int64) (string, int64, int64, error) {
	switch entry.Provider {
	case "openai":
		return f.openai.Call(ctx, entry, query, temperature, maxTokens)
	case "anthropic":
		return f.anthropic.Call(ctx, entry, query, temperature, maxTokens)
	default:
		return "", 0, 0, fmt.Errorf("unsupported provider %q", entry.Provider)
	}
}

func (f *compositeForwarder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.openai.Embed(ctx, text)
}

type apiKeyContextKey struct{}

func withAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, key)
}

func apiKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(apiKeyContextKey{}).(string)
	return key, ok
}
