package llmproxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// openAIForwarder forwards /call and /embed requests to the OpenAI API,
// grounded on the teacher's pkg/model/provider/openai/client.go request
// shape (openai.ChatCompletionNewParams, client.Chat.Completions.New,
// resp.Choices[0].Message, resp.Usage.PromptTokens/CompletionTokens).
type openAIForwarder struct {
	apiKeyFor func(ctx context.Context) (string, error)
}

func newOpenAIForwarder(apiKeyFor func(ctx context.Context) (string, error)) *openAIForwarder {
	return &openAIForwarder{apiKeyFor: apiKeyFor}
}

func (f *openAIForwarder) client(ctx context.Context) (*openai.Client, error) {
	key, err := f.apiKeyFor(ctx)
	if err != nil {
		return nil, err
	}
	c := openai.NewClient(option.WithAPIKey(key))
	return &c, nil
}

func (f *openAIForwarder) Call(ctx context.Context, entry ModelEntry, query string, temperature *float64, maxTokens *int64) (string, int64, int64, error) {
	client, err := f.client(ctx)
	if err != nil {
		return "", 0, 0, err
	}

	params := openai.ChatCompletionNewParams{
		Model: entry.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(query),
		},
	}
	if temperature != nil {
		params.Temperature = param.NewOpt(*temperature)
	}
	limit := entry.MaxTokens
	if maxTokens != nil && *maxTokens < limit {
		limit = *maxTokens
	}
	if limit > 0 {
		params.MaxCompletionTokens = param.NewOpt(limit)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && isRetryableStatus(apiErr.StatusCode) {
			return "", 0, 0, RateLimited(err)
		}
		return "", 0, 0, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, errors.New("openai response contained no choices")
	}

	return resp.Choices[0].Message.Content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}

func (f *openAIForwarder) Embed(ctx context.Context, text string) ([]float64, error) {
	client, err := f.client(ctx)
	if err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Model: DefaultEmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	}

	resp, err := client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && isRetryableStatus(apiErr.StatusCode) {
			return nil, RateLimited(err)
		}
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}
