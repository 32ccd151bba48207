package tracking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJudge struct {
	allowed bool
	reason  string
	calls   int
}

func (f *fakeJudge) Review(context.Context, string) (bool, string, error) {
	f.calls++
	return f.allowed, f.reason, nil
}

func TestValidateEmptyBundleIsValid(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	valid, _, err := v.Validate(context.Background(), Bundle{})
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateRejectsDisallowedExtension(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	valid, reason, err := v.Validate(context.Background(), Bundle{"cheats.json5": "{}"})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Contains(t, reason, "extension")
}

func TestValidateRejectsOversizedBundle(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	v.MaxChars = 10
	valid, reason, err := v.Validate(context.Background(), Bundle{"a.py": strings.Repeat("x", 20)})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Contains(t, reason, "MAX_CHARS")
}

func TestValidateAtExactMaxCharsPasses(t *testing.T) {
	judge := &fakeJudge{allowed: true}
	v := NewValidator(judge)
	// "a.py" contributes 4 chars to the budget alongside its content
	// (spec §3 counts path + content, not content alone).
	v.MaxChars = 10
	valid, _, err := v.Validate(context.Background(), Bundle{"a.py": strings.Repeat("x", 6)})
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateRejectsDisallowedImport(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	valid, reason, err := v.Validate(context.Background(), Bundle{"a.py": "import socket\n"})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Contains(t, reason, "disallowed import")
}

func TestValidateRejectsEvalExec(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	valid, reason, err := v.Validate(context.Background(), Bundle{"a.py": "eval('1+1')\n"})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Contains(t, reason, "eval/exec")
}

func TestValidateRejectsOversizedLiteralList(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	v.MaxItems = 3
	items := make([]string, 5)
	for i := range items {
		items[i] = "1"
	}
	src := "x = [" + strings.Join(items, ", ") + "]\n"
	valid, reason, err := v.Validate(context.Background(), Bundle{"a.py": src})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Contains(t, reason, "MAX_ITEMS")
}

func TestValidateRejectsOversizedStringLiteral(t *testing.T) {
	v := NewValidator(&fakeJudge{allowed: true})
	v.MaxStrLen = 5
	src := `s = "` + strings.Repeat("a", 20) + "\"\n"
	valid, reason, err := v.Validate(context.Background(), Bundle{"a.py": src})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Contains(t, reason, "MAX_STRLEN")
}

func TestValidateDelegatesToJudge(t *testing.T) {
	judge := &fakeJudge{allowed: false, reason: "hardcoded issue->patch table detected"}
	v := NewValidator(judge)
	valid, reason, err := v.Validate(context.Background(), Bundle{"a.py": "x = 1\n"})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, "hardcoded issue->patch table detected", reason)
	assert.Equal(t, 1, judge.calls)
}

func TestValidateCachesByHash(t *testing.T) {
	judge := &fakeJudge{allowed: true}
	v := NewValidator(judge)
	b := Bundle{"a.py": "x = 1\n"}

	_, _, err := v.Validate(context.Background(), b)
	require.NoError(t, err)
	_, _, err = v.Validate(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, 1, judge.calls, "second validation of identical content must hit cache, not re-invoke judge")
}
