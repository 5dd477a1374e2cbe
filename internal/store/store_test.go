package store_test

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hypernova/arena/internal/store"
)

func TestPushKeyOrdering(t *testing.T) {
	base := time.Now()
	keys := []string{
		store.PushKey(base.Add(2 * time.Second)),
		store.PushKey(base),
		store.PushKey(base.Add(time.Second)),
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	assert.Equal(t, []string{keys[1], keys[2], keys[0]}, sorted,
		"lexicographic key order must match timestamp order")
}

func TestPushKeyUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		k := store.PushKey(now)
		require.False(t, seen[k], "duplicate push key %q", k)
		seen[k] = true
	}
}

func TestSplitPath(t *testing.T) {
	segs, err := store.SplitPath("games/abc/gameState")
	require.NoError(t, err)
	assert.Equal(t, []string{"games", "abc", "gameState"}, segs)

	segs, err = store.SplitPath("/games/")
	require.NoError(t, err)
	assert.Equal(t, []string{"games"}, segs)
}

func TestSplitPathRejectsEmpty(t *testing.T) {
	_, err := store.SplitPath("")
	assert.Error(t, err)

	_, err = store.SplitPath("games//abc")
	assert.Error(t, err)
}

// TestPushKeyOrdering_Property verifies key ordering for arbitrary timestamp pairs.
func TestPushKeyOrdering_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Int64Range(0, 1<<50).Draw(rt, "a")
		b := rapid.Int64Range(0, 1<<50).Draw(rt, "b")
		if a >= b {
			a, b = b, a+1
		}
		ka := store.PushKey(time.Unix(0, a))
		kb := store.PushKey(time.Unix(0, b))
		assert.Less(rt, ka, kb, "earlier timestamp must yield smaller key")
	})
}
