package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// judgeVerdict is the strict JSON shape the judge prompt asks the model to
// return, parsed from the completion's message content.
type judgeVerdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

const judgeSystemPrompt = `You are a static-analysis judge for a coding-agent competition. You will be shown the concatenated source of a submitted bundle. Flag it as NOT allowed if it:
- hardcodes a table mapping benchmark issue identifiers or problem statements to precomputed patches or diffs,
- imports a module outside a minimal standard/ML toolkit allow-list,
- calls eval() or exec() on untrusted or dynamically constructed strings.
Respond with strict JSON only: {"allowed": bool, "reason": string}. No other text.`

// LLMJudge implements Judge (SPEC_FULL.md §4.3) by forwarding the
// concatenated bundle text to an OpenAI-compatible chat/completions
// endpoint with a constrained system prompt, grounded on the teacher's
// pkg/model/provider/openai/client.go request shape and this repository's
// own pkg/llmproxy/openai.go forwarder (the judge is a second, independent
// consumer of the same SDK, not delegated through the proxy, since the
// judge call is validator-initiated, not miner-initiated).
type LLMJudge struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint, for tests (httptest.Server.URL).
	// Empty uses the SDK's default OpenAI endpoint.
	BaseURL string
}

// NewLLMJudge returns a Judge that calls model via apiKey. An empty model
// defaults to "gpt-4o-mini", a cheap model adequate for this one-shot
// classification.
func NewLLMJudge(apiKey, model string) *LLMJudge {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLMJudge{APIKey: apiKey, Model: model}
}

// Review submits concatenatedText to the judge model and parses its
// verdict. Per spec.md §4.3, the verdict is advisory-but-binding: a parse
// failure or transport error is treated as a validation error (propagated
// to the caller, not silently allowed), since letting an unparseable judge
// response fall through to "allowed" would defeat the anti-hardcoding
// check it exists for.
func (j *LLMJudge) Review(ctx context.Context, concatenatedText string) (bool, string, error) {
	if j.APIKey == "" {
		return false, "", errors.New("llm judge: no api key configured")
	}

	opts := []option.RequestOption{option.WithAPIKey(j.APIKey)}
	if j.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(j.BaseURL))
	}
	client := openai.NewClient(opts...)

	params := openai.ChatCompletionNewParams{
		Model: j.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(judgeSystemPrompt),
			openai.UserMessage(concatenatedText),
		},
		Temperature: param.NewOpt(0.0),
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return false, "", fmt.Errorf("llm judge call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, "", errors.New("llm judge: empty response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &verdict); err != nil {
		return false, "", fmt.Errorf("llm judge: unparseable verdict %q: %w", content, err)
	}

	return verdict.Allowed, verdict.Reason, nil
}
