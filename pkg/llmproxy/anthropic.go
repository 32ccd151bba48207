package llmproxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// anthropicForwarder forwards /call requests to the Anthropic API,
// grounded on the teacher's pkg/model/provider/anthropic/client.go request
// shape (anthropic.MessageNewParams, client.Messages.New, Usage.InputTokens
// /OutputTokens). Anthropic has no first-party embeddings endpoint, so
// Embed always errs; the proxy's /embed route is OpenAI-only.
type anthropicForwarder struct {
	apiKeyFor func(ctx context.Context) (string, error)
}

func newAnthropicForwarder(apiKeyFor func(ctx context.Context) (string, error)) *anthropicForwarder {
	return &anthropicForwarder{apiKeyFor: apiKeyFor}
}

func (f *anthropicForwarder) client(ctx context.Context) (*anthropic.Client, error) {
	key, err := f.apiKeyFor(ctx)
	if err != nil {
		return nil, err
	}
	c := anthropic.NewClient(option.WithAPIKey(key))
	return &c, nil
}

func (f *anthropicForwarder) Call(ctx context.Context, entry ModelEntry, query string, temperature *float64, maxTokens *int64) (string, int64, int64, error) {
	client, err := f.client(ctx)
	if err != nil {
		return "", 0, 0, err
	}

	maxT := entry.MaxTokens
	if maxTokens != nil && *maxTokens < maxT {
		maxT = *maxTokens
	}
	if maxT <= 0 {
		maxT = entry.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(entry.Model),
		MaxTokens: maxT,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(query)),
		},
	}
	if temperature != nil {
		params.Temperature = param.NewOpt(*temperature)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && isRetryableStatus(apiErr.StatusCode) {
			return "", 0, 0, RateLimited(err)
		}
		return "", 0, 0, fmt.Errorf("anthropic message: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", 0, 0, errors.New("anthropic response contained no content blocks")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return text, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil
}

func (f *anthropicForwarder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("anthropic provider does not support embeddings")
}
