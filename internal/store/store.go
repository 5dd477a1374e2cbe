// Package store defines the shared state store abstraction: a tree of JSON
// values addressed by slash-separated key paths, with change notification.
// Match data lives entirely in this store; the orchestrator keeps no
// authoritative in-process copy.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no value exists at the requested path.
var ErrNotFound = errors.New("store: path not found")

// Store is the key-path interface to the shared mutable state tree.
//
// Paths are slash-separated, e.g. "games/abc/gameState/players/p1/health".
// Reading a non-leaf path returns the JSON encoding of the whole subtree.
//
// Implementations must make Update atomic per top-level entry: while fn runs,
// no other writer may modify the entry it addresses. All other operations are
// last-write-wins per leaf path.
type Store interface {
	// Get returns the raw JSON at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// Set marshals value and writes it at path, creating intermediate nodes.
	Set(ctx context.Context, path string, value any) error
	// Remove deletes the subtree at path. Removing a missing path is a no-op.
	Remove(ctx context.Context, path string) error
	// Push writes value under a generated, time-ordered child key of path
	// and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Update atomically transforms the JSON at path. fn receives the current
	// value (nil when absent) and returns the replacement; returning nil
	// deletes the path. fn errors abort the update and are returned verbatim.
	Update(ctx context.Context, path string, fn func(current []byte) ([]byte, error)) error
	// Keys returns the immediate child keys of path in iteration order.
	// A missing path yields an empty slice.
	Keys(ctx context.Context, path string) ([]string, error)
	// Watch delivers the JSON snapshot of path after every change beneath it,
	// until ctx is cancelled. The current snapshot is delivered first.
	Watch(ctx context.Context, path string) (<-chan []byte, error)
}

// PushKey generates a time-ordered child key: a zero-padded nanosecond
// timestamp followed by a UUID suffix for uniqueness. Lexicographic order of
// keys matches generation order, which keeps event logs sorted.
func PushKey(now time.Time) string {
	return fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.NewString()[:8])
}

// SplitPath splits a key path into its segments.
//
// Precondition: path must not be empty and must not contain empty segments.
// Postcondition: Returns at least one segment, or an error.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("store: path %q has an empty segment", path)
		}
	}
	return segs, nil
}
