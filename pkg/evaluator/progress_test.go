package evaluator

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressRendersPlainLineWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	require.False(t, p.isTTY)

	p.Start(2)
	p.SetRunning("hk1")
	p.Complete("hk1", true)
	p.SetRunning("hk2")
	p.Complete("hk2", false)
	p.Stop()

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "✓1")
	assert.Contains(t, out, "✗1")
}

func TestProgressTicksWhileRunning(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Start(1)
	p.SetRunning("hk1")
	time.Sleep(250 * time.Millisecond)
	p.Complete("hk1", true)
	p.Stop()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 2)
}
