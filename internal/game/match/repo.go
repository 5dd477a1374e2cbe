package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hypernova/arena/internal/store"
)

// gamesRoot is the store collection holding all matches.
const gamesRoot = "games"

// Repository is the typed access layer between the orchestrator and the
// shared state store. Every call runs under the configured per-operation
// timeout; a timeout is indistinguishable from any other transient store
// failure to callers.
type Repository struct {
	store     store.Store
	opTimeout time.Duration
}

// NewRepository creates a Repository over the given store.
//
// Precondition: st must be non-nil; opTimeout must be positive.
func NewRepository(st store.Store, opTimeout time.Duration) *Repository {
	if opTimeout <= 0 {
		panic("match.NewRepository: opTimeout must be positive")
	}
	return &Repository{store: st, opTimeout: opTimeout}
}

func matchPath(id string) string {
	return gamesRoot + "/" + id
}

func (r *Repository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// Create writes a new match under a store-generated id.
//
// Postcondition: Returns the new match id; the match is readable at games/<id>.
func (r *Repository) Create(ctx context.Context, m *Match) (string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	id, err := r.store.Push(ctx, gamesRoot, m)
	if err != nil {
		return "", fmt.Errorf("creating match: %w", err)
	}
	return id, nil
}

// Get reads the full match record.
//
// Postcondition: Returns ErrMatchNotFound when the id is unknown.
func (r *Repository) Get(ctx context.Context, id string) (*Match, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	raw, err := r.store.Get(ctx, matchPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading match %s: %w", id, err)
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding match %s: %w", id, err)
	}
	return &m, nil
}

// ListIDs returns all match ids in store iteration order.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	ids, err := r.store.Keys(ctx, gamesRoot)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return ids, nil
}

// Update atomically transforms one match record. fn may mutate the match in
// place; returning an error aborts the write and surfaces that error.
//
// Postcondition: Returns ErrMatchNotFound when the id is unknown;
// fn's error verbatim when fn fails; otherwise the mutated match is stored.
func (r *Repository) Update(ctx context.Context, id string, fn func(m *Match) error) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.store.Update(ctx, matchPath(id), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrMatchNotFound
		}
		var m Match
		if err := json.Unmarshal(current, &m); err != nil {
			return nil, fmt.Errorf("decoding match %s: %w", id, err)
		}
		if err := fn(&m); err != nil {
			return nil, err
		}
		return json.Marshal(&m)
	})
}

// SetTimeRemaining writes the countdown leaf. Last-write-wins is acceptable
// here: the scheduler is the only writer of this path.
func (r *Repository) SetTimeRemaining(ctx context.Context, id string, remaining int) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	path := matchPath(id) + "/gameState/timeRemaining"
	if err := r.store.Set(ctx, path, remaining); err != nil {
		return fmt.Errorf("writing time remaining: %w", err)
	}
	return nil
}

// Remove discards the entire match record.
func (r *Repository) Remove(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.store.Remove(ctx, matchPath(id)); err != nil {
		return fmt.Errorf("removing match %s: %w", id, err)
	}
	return nil
}

// Watch streams raw JSON snapshots of the match record. The channel closes
// when ctx is cancelled. Watch calls are not subject to the per-operation
// timeout; they live as long as their context.
func (r *Repository) Watch(ctx context.Context, id string) (<-chan []byte, error) {
	ch, err := r.store.Watch(ctx, matchPath(id))
	if err != nil {
		return nil, fmt.Errorf("watching match %s: %w", id, err)
	}
	return ch, nil
}
