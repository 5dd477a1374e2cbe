package postgres_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypernova/arena/internal/store"
	"github.com/hypernova/arena/internal/store/postgres"
	"github.com/hypernova/arena/internal/testutil"
)

// newTestStore starts a disposable PostgreSQL container with the schema
// applied. Requires Docker; run with -short to skip.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewStore(pc.Pool)
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", map[string]any{"status": "waiting"}))

	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"waiting"}`, string(raw))
}

func TestDeepPathReadWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", map[string]any{"status": "waiting"}))
	require.NoError(t, s.Set(ctx, "games/g1/gameState/players/p1/health", 80))

	raw, err := s.Get(ctx, "games/g1/gameState/players/p1/health")
	require.NoError(t, err)
	assert.JSONEq(t, `80`, string(raw))

	raw, err = s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"waiting","gameState":{"players":{"p1":{"health":80}}}}`, string(raw))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "games/nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx, "games/g1", map[string]any{"status": "waiting"}))
	_, err = s.Get(ctx, "games/g1/no/such/path")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", map[string]any{"n": 1}))
	require.NoError(t, s.Set(ctx, "games/g2", map[string]any{"n": 2}))

	raw, err := s.Get(ctx, "games")
	require.NoError(t, err)
	assert.JSONEq(t, `{"g1":{"n":1},"g2":{"n":2}}`, string(raw))
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", map[string]any{"status": "waiting", "round": 1}))
	require.NoError(t, s.Remove(ctx, "games/g1/round"))

	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"waiting"}`, string(raw))

	require.NoError(t, s.Remove(ctx, "games/g1"))
	_, err = s.Get(ctx, "games/g1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, s.Remove(ctx, "games/never-existed"))
}

func TestPushAndKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k1, err := s.Push(ctx, "games", map[string]any{"status": "waiting"})
	require.NoError(t, err)
	k2, err := s.Push(ctx, "games", map[string]any{"status": "waiting"})
	require.NoError(t, err)

	keys, err := s.Keys(ctx, "games")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{k1, k2}, keys)
}

func TestUpdateAtomicUnderContention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "counters/c", map[string]int{"n": 0}))

	const workers = 4
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := s.Update(ctx, "counters/c", func(current []byte) ([]byte, error) {
					var v map[string]int
					if err := json.Unmarshal(current, &v); err != nil {
						return nil, err
					}
					v["n"]++
					return json.Marshal(v)
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	raw, err := s.Get(ctx, "counters/c")
	require.NoError(t, err)
	var v map[string]int
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, workers*perWorker, v["n"], "row locking must serialize updates")
}

func TestWatchSeesWrites(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, "games/g1", map[string]any{"status": "waiting"}))

	ch, err := s.Watch(ctx, "games/g1")
	require.NoError(t, err)

	// Initial snapshot.
	select {
	case snap := <-ch:
		assert.JSONEq(t, `{"status":"waiting"}`, string(snap))
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.Set(ctx, "games/g1/status", "playing"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			var v struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.Unmarshal(snap, &v))
			if v.Status == "playing" {
				return
			}
		case <-deadline:
			t.Fatal("watcher never observed the write")
		}
	}
}
