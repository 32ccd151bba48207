package llmproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyForwarder struct {
	failTimes int
	calls     int
}

func (f *flakyForwarder) Call(context.Context, ModelEntry, string, *float64, *int64) (string, int64, int64, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return "", 0, 0, RateLimited(errors.New("429"))
	}
	return "ok", 1, 1, nil
}

func (f *flakyForwarder) Embed(context.Context, string) ([]float64, error) { return nil, nil }

func TestCallWithRetryRecoversFromRateLimit(t *testing.T) {
	fwd := &flakyForwarder{failTimes: 3}
	result, prompt, completion, err := callWithRetry(context.Background(), fwd, ModelEntry{Model: "x"}, "q", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int64(1), prompt)
	assert.Equal(t, int64(1), completion)
	assert.Equal(t, 4, fwd.calls)
}

func TestCallWithRetryStopsOnPermanentError(t *testing.T) {
	fwd := &permanentErrForwarder{}
	_, _, _, err := callWithRetry(context.Background(), fwd, ModelEntry{Model: "x"}, "q", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, fwd.calls)
}

type permanentErrForwarder struct{ calls int }

func (f *permanentErrForwarder) Call(context.Context, ModelEntry, string, *float64, *int64) (string, int64, int64, error) {
	f.calls++
	return "", 0, 0, errors.New("bad request")
}

func (f *permanentErrForwarder) Embed(context.Context, string) ([]float64, error) { return nil, nil }
