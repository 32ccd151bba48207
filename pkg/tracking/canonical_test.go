package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := Bundle{"b.py": "2", "a.py": "1"}
	b := Bundle{"a.py": "1", "b.py": "2"}

	canonA, err := Canonical(a)
	require.NoError(t, err)
	canonB, err := Canonical(b)
	require.NoError(t, err)

	assert.Equal(t, canonA, canonB)
}

func TestHashChangesWithContent(t *testing.T) {
	h1, err := Hash(Bundle{"a.py": "1"})
	require.NoError(t, err)
	h2, err := Hash(Bundle{"a.py": "2"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
