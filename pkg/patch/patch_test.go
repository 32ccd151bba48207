package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEditsExtendsShortFiles(t *testing.T) {
	p := Patch{
		{FileName: "a.py", LineNumber: 0, NewLineContent: "first"},
		{FileName: "a.py", LineNumber: 3, NewLineContent: "fourth"},
	}

	got := p.ApplyEdits("a.py", []string{"old"})
	require.Equal(t, []string{"first", "", "", "fourth"}, got)
}

func TestApplyEditsEmptyPatchIsIdentity(t *testing.T) {
	var p Patch
	content := []string{"a", "b", "c"}
	got := p.ApplyEdits("a.py", content)
	assert.Equal(t, content, got)
}

func TestSerializeRoundTrip(t *testing.T) {
	p := Patch{
		{FileName: "a.py", LineNumber: 2, LineContent: "old", NewLineContent: "new"},
	}

	s, err := p.Serialize()
	require.NoError(t, err)

	got, err := ParseSerialized(s)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParsePayloadJSON(t *testing.T) {
	payload := `[{"file_name": "a.py", "line_number": 1, "line_content": "x", "new_line_content": "y"}]`
	p, err := ParsePayload(payload)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, "a.py", p[0].FileName)
}

func TestParsePayloadPythonLiteral(t *testing.T) {
	payload := `[{'file_name': 'a.py', 'line_number': 1, 'line_content': "it's fine", 'new_line_content': 'y'}]`
	p, err := ParsePayload(payload)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, "a.py", p[0].FileName)
	assert.Equal(t, "it's fine", p[0].LineContent)
}

func TestParsePayloadEmpty(t *testing.T) {
	p, err := ParsePayload("")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestExtractPatchLineUsesLastMatch(t *testing.T) {
	output := "Patch: [{\"a\":1}]\nsome log\nPatch: [{\"b\":2}]\n"
	got, ok := ExtractPatchLine(output)
	require.True(t, ok)
	assert.Equal(t, `[{"b":2}]`, got)
}

func TestExtractPatchLineNoMatch(t *testing.T) {
	_, ok := ExtractPatchLine("nothing here")
	assert.False(t, ok)
}

func TestUnifiedDiffEmptyWhenIdentical(t *testing.T) {
	d, err := UnifiedDiff("a.py", "same\n", "same\n", 3)
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestUnifiedDiffProducesGitHeaders(t *testing.T) {
	d, err := UnifiedDiff("a.py", "one\ntwo\nthree\n", "one\ntwo\nTHREE\n", 3)
	require.NoError(t, err)
	assert.Contains(t, d, "--- a/a.py")
	assert.Contains(t, d, "+++ b/a.py")
	assert.Contains(t, d, "@@ -")
	assert.Contains(t, d, "-three")
	assert.Contains(t, d, "+THREE")
}
