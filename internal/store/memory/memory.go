// Package memory provides an in-process implementation of the state store,
// used by unit tests and the "-store memory" development mode.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hypernova/arena/internal/store"
)

// Store holds the state tree as nested map[string]any nodes guarded by a
// single RWMutex. All methods are safe for concurrent use.
//
// Invariant: every interior node is a map[string]any; leaves are the values
// produced by encoding/json unmarshalling.
type Store struct {
	mu       sync.RWMutex
	root     map[string]any
	watchers []*watcher
}

type watcher struct {
	path string
	ch   chan []byte
	done <-chan struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{root: make(map[string]any)}
}

// Get returns the raw JSON at path.
//
// Postcondition: Returns store.ErrNotFound when no value exists at path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.lookup(segs)
	if !ok {
		return nil, store.ErrNotFound
	}
	return json.Marshal(node)
}

// Set writes value at path, creating intermediate nodes.
//
// Precondition: value must be marshallable with encoding/json.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	decoded, err := decode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.write(segs, decoded)
	s.mu.Unlock()

	s.notify(path)
	return nil
}

// Remove deletes the subtree at path. Missing paths are a no-op.
func (s *Store) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.delete(segs)
	s.mu.Unlock()

	s.notify(path)
	return nil
}

// Push writes value under a generated time-ordered child key of path.
//
// Postcondition: Returns the generated key; the value is readable at
// path + "/" + key.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	key := store.PushKey(time.Now())
	if err := s.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Update atomically transforms the JSON at path. fn runs under the store
// write lock and must not call back into the store.
//
// Postcondition: Either fn's result is installed at path (nil result deletes
// it) or the store is unchanged and fn's error is returned.
func (s *Store) Update(ctx context.Context, path string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}

	changed, err := s.applyUpdate(path, segs, fn)
	if err != nil {
		return err
	}
	if changed {
		s.notify(path)
	}
	return nil
}

// applyUpdate runs fn and installs its result under the write lock. The
// deferred unlock keeps a panicking fn from wedging the whole store.
func (s *Store) applyUpdate(path string, segs []string, fn func(current []byte) ([]byte, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if node, ok := s.lookup(segs); ok {
		raw, err := json.Marshal(node)
		if err != nil {
			return false, err
		}
		current = raw
	}

	next, err := fn(current)
	if err != nil {
		return false, err
	}

	if next == nil {
		s.delete(segs)
		return true, nil
	}

	var decoded any
	if err := json.Unmarshal(next, &decoded); err != nil {
		return false, fmt.Errorf("memory: update produced invalid JSON at %q: %w", path, err)
	}
	s.write(segs, decoded)
	return true, nil
}

// Keys returns the sorted immediate child keys of path.
//
// Postcondition: Returns an empty slice for missing or leaf paths.
func (s *Store) Keys(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.lookup(segs)
	if !ok {
		return []string{}, nil
	}
	m, ok := node.(map[string]any)
	if !ok {
		return []string{}, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch delivers the snapshot of path after every change at or beneath it.
// The current snapshot is delivered first. Slow consumers lose intermediate
// snapshots but always eventually observe the latest state.
func (s *Store) Watch(ctx context.Context, path string) (<-chan []byte, error) {
	if _, err := store.SplitPath(path); err != nil {
		return nil, err
	}

	w := &watcher{
		path: trimmed(path),
		ch:   make(chan []byte, 16),
		done: ctx.Done(),
	}

	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	// Initial snapshot.
	if snap, err := s.Get(ctx, path); err == nil {
		w.ch <- snap
	}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, cand := range s.watchers {
			if cand == w {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}

// notify sends fresh snapshots to every watcher overlapping changedPath.
func (s *Store) notify(changedPath string) {
	changed := trimmed(changedPath)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.watchers {
		if !overlaps(w.path, changed) {
			continue
		}
		select {
		case <-w.done:
			continue
		default:
		}

		segs, err := store.SplitPath(w.path)
		if err != nil {
			continue
		}
		var snap []byte
		if node, ok := s.lookup(segs); ok {
			snap, err = json.Marshal(node)
			if err != nil {
				continue
			}
		} else {
			snap = []byte("null")
		}

		// Drop the oldest pending snapshot rather than block a writer.
		select {
		case w.ch <- snap:
		default:
			select {
			case <-w.ch:
			default:
			}
			select {
			case w.ch <- snap:
			default:
			}
		}
	}
}

// lookup walks segs from the root. Caller must hold s.mu.
func (s *Store) lookup(segs []string) (any, bool) {
	var node any = s.root
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// write installs value at segs, creating interior maps. Caller must hold s.mu.
func (s *Store) write(segs []string, value any) {
	m := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[seg] = child
		}
		m = child
	}
	m[segs[len(segs)-1]] = value
}

// delete removes the subtree at segs and prunes empty interior maps.
// Caller must hold s.mu.
func (s *Store) delete(segs []string) {
	parents := make([]map[string]any, 0, len(segs))
	m := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			return
		}
		parents = append(parents, m)
		m = child
	}
	delete(m, segs[len(segs)-1])

	// Prune now-empty interior nodes.
	for i := len(parents) - 1; i >= 0; i-- {
		if len(m) > 0 {
			break
		}
		delete(parents[i], segs[i])
		m = parents[i]
	}
}

// decode round-trips value through encoding/json so the tree only ever holds
// json-native types.
func decode(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("memory: marshalling value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// overlaps reports whether a change at changed is visible from a watch at path:
// one must be an ancestor of (or equal to) the other.
func overlaps(watch, changed string) bool {
	return watch == changed ||
		hasPrefix(changed, watch) ||
		hasPrefix(watch, changed)
}

func hasPrefix(path, prefix string) bool {
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

func trimmed(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
