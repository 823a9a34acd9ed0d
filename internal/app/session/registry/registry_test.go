package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := New[string](2)

	require.NoError(t, r.Add("b", "second"))
	require.NoError(t, r.Add("a", "first"))
	assert.ErrorIs(t, r.Add("a", "again"), ErrDuplicate)
	assert.ErrorIs(t, r.Add("c", "third"), ErrFull)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"first", "second"}, r.All())
	assert.Equal(t, 2, r.Count())

	removed, ok := r.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, "first", removed)
	_, ok = r.Remove("a")
	assert.False(t, ok)

	require.NoError(t, r.Add("c", "third"))
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_Unlimited(t *testing.T) {
	r := New[int](0)
	for i := 0; i < 100; i++ {
		require.NoError(t, r.Add(string(rune('a'+i%26))+string(rune('0'+i/26)), i))
	}
	assert.Equal(t, 100, r.Count())
}
