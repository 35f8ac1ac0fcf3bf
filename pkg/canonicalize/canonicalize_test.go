package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSKeyOrdering(t *testing.T) {
	out, err := JCS(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]any{"k": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"<&>"}`, string(out))
}

func TestCanonicalHashDeterministic(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Contains(t, h1, "sha256:")
}

func TestCanonicalHashDiffers(t *testing.T) {
	h1, _ := CanonicalHash(map[string]any{"x": 1})
	h2, _ := CanonicalHash(map[string]any{"x": 2})
	assert.NotEqual(t, h1, h2)
}
