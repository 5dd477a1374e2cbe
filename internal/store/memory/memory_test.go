package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypernova/arena/internal/store"
	"github.com/hypernova/arena/internal/store/memory"
)

func TestSetGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1/status", "waiting"))

	raw, err := s.Get(ctx, "games/g1/status")
	require.NoError(t, err)
	assert.JSONEq(t, `"waiting"`, string(raw))
}

func TestGetSubtree(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1/status", "waiting"))
	require.NoError(t, s.Set(ctx, "games/g1/createdAt", 123))

	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"waiting","createdAt":123}`, string(raw))
}

func TestGetMissing(t *testing.T) {
	s := memory.New()
	_, err := s.Get(context.Background(), "games/nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetOverwritesLeafWithSubtree(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", "leaf"))
	require.NoError(t, s.Set(ctx, "games/g1/status", "waiting"))

	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"waiting"}`, string(raw))
}

func TestRemove(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1/status", "waiting"))
	require.NoError(t, s.Remove(ctx, "games/g1"))

	_, err := s.Get(ctx, "games/g1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Empty interior nodes are pruned with the subtree.
	_, err = s.Get(ctx, "games")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, s.Remove(ctx, "games/never-existed"))
}

func TestPush(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	k1, err := s.Push(ctx, "games", map[string]string{"status": "waiting"})
	require.NoError(t, err)
	k2, err := s.Push(ctx, "games", map[string]string{"status": "waiting"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	keys, err := s.Keys(ctx, "games")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{k1, k2}, keys)
}

func TestKeysSorted(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Set(ctx, "games/"+k, 1))
	}

	keys, err := s.Keys(ctx, "games")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestKeysMissingPath(t *testing.T) {
	s := memory.New()
	keys, err := s.Keys(context.Background(), "games")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUpdate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", map[string]int{"count": 1}))

	err := s.Update(ctx, "games/g1", func(current []byte) ([]byte, error) {
		var v map[string]int
		require.NoError(t, json.Unmarshal(current, &v))
		v["count"]++
		return json.Marshal(v)
	})
	require.NoError(t, err)

	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, string(raw))
}

func TestUpdateMissingPathGetsNil(t *testing.T) {
	s := memory.New()
	var got []byte = []byte("sentinel")
	err := s.Update(context.Background(), "games/g1", func(current []byte) ([]byte, error) {
		got = current
		return []byte(`{"created":true}`), nil
	})
	require.NoError(t, err)
	assert.Nil(t, got, "fn must receive nil for a missing path")
}

func TestUpdateNilResultDeletes(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "games/g1", 1))
	require.NoError(t, s.Update(ctx, "games/g1", func([]byte) ([]byte, error) {
		return nil, nil
	}))

	_, err := s.Get(ctx, "games/g1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateErrorLeavesStoreUnchanged(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, s.Set(ctx, "games/g1", 1))
	err := s.Update(ctx, "games/g1", func([]byte) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom, "fn errors must surface verbatim")

	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `1`, string(raw))
}

func TestUpdatePanicReleasesLock(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "games/g1", 1))

	// A panicking fn must not leave the write lock held, or every later
	// store call in the process deadlocks.
	func() {
		defer func() { require.NotNil(t, recover()) }()
		_ = s.Update(ctx, "games/g1", func([]byte) ([]byte, error) {
			panic("boom")
		})
	}()

	require.NoError(t, s.Set(ctx, "games/g2", 2))
	raw, err := s.Get(ctx, "games/g1")
	require.NoError(t, err)
	assert.JSONEq(t, `1`, string(raw), "the aborted update must not land")
}

func TestUpdateAtomicUnderContention(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "counters/c", 0))

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := s.Update(ctx, "counters/c", func(current []byte) ([]byte, error) {
					var n int
					if err := json.Unmarshal(current, &n); err != nil {
						return nil, err
					}
					return json.Marshal(n + 1)
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
	var n int
	require.NoError(t, json.Unmarshal(raw, &n))
	assert.Equal(t, workers*perWorker, n, "no increment may be lost")
}

func TestWatchDeliversInitialSnapshot(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, "games/g1/status", "waiting"))

	ch, err := s.Watch(ctx, "games/g1")
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.JSONEq(t, `{"status":"waiting"}`, string(snap))
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestWatchSeesWrites(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, "games/g1/status", "waiting"))

	ch, err := s.Watch(ctx, "games/g1")
	require.NoError(t, err)
	<-ch // initial snapshot

	require.NoError(t, s.Set(ctx, "games/g1/status", "playing"))

	deadline := time.After(time.Second)
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

func TestWatchClosesOnCancel(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := s.Watch(ctx, "games/g1")
	require.NoError(t, err)

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestWatchUnrelatedPathSilent(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, "games/g1")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "games/g2/status", "waiting"))

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for unrelated write: %s", snap)
	case <-time.After(100 * time.Millisecond):
	}
}
