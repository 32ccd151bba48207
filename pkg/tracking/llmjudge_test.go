package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatCompletionResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
}

func TestLLMJudgeReviewParsesAllowedVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4o-mini", payload["model"])

		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionResponse(`{"allowed": true, "reason": "looks fine"}`))
	}))
	defer server.Close()

	judge := &LLMJudge{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: server.URL}

	allowed, reason, err := judge.Review(context.Background(), "print('hello')")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, "looks fine", reason)
}

func TestLLMJudgeReviewParsesRejectedVerdictWithFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionResponse("```json\n{\"allowed\": false, \"reason\": \"hardcoded issue->diff table\"}\n```"))
	}))
	defer server.Close()

	judge := &LLMJudge{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: server.URL}

	allowed, reason, err := judge.Review(context.Background(), "ISSUE_TO_PATCH = {...}")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "hardcoded issue->diff table", reason)
}

func TestLLMJudgeReviewFailsOnUnparseableVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionResponse("not json at all"))
	}))
	defer server.Close()

	judge := &LLMJudge{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: server.URL}

	_, _, err := judge.Review(context.Background(), "whatever")
	require.Error(t, err)
}

func TestLLMJudgeReviewRequiresAPIKey(t *testing.T) {
	judge := &LLMJudge{}
	_, _, err := judge.Review(context.Background(), "whatever")
	require.Error(t, err)
}
