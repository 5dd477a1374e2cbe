package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypernova/arena/internal/store"
)

// notifyChannel is the LISTEN/NOTIFY channel carrying changed entry keys.
const notifyChannel = "arena_store"

// Store implements store.Store over the store_entries table. The first path
// segment is the collection, the second the entry id; deeper segments address
// into the entry's jsonb document.
//
// Invariant: every row's doc column holds a JSON object or value produced by
// this store; inner-path writes always go through a row-locked transaction.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
//
// Precondition: the store_entries table must exist (see migrations/).
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool.DB()}
}

// Get returns the raw JSON at path.
//
// Postcondition: Returns store.ErrNotFound when no value exists at path.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	if len(segs) == 1 {
		return s.getCollection(ctx, segs[0])
	}

	var doc []byte
	err = s.pool.QueryRow(ctx,
		`SELECT doc FROM store_entries WHERE collection = $1 AND id = $2`,
		segs[0], segs[1],
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	if len(segs) == 2 {
		return doc, nil
	}
	inner, ok := lookupJSON(doc, segs[2:])
	if !ok {
		return nil, store.ErrNotFound
	}
	return inner, nil
}

// getCollection assembles all entries of a collection into one JSON object.
func (s *Store) getCollection(ctx context.Context, collection string) ([]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, doc FROM store_entries WHERE collection = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("reading collection %q: %w", collection, err)
	}
	defer rows.Close()

	entries := make(map[string]json.RawMessage)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning collection %q: %w", collection, err)
		}
		entries[id] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection %q: %w", collection, err)
	}
	if len(entries) == 0 {
		return nil, store.ErrNotFound
	}
	return json.Marshal(entries)
}

// Set writes value at path, creating the entry and interior nodes as needed.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	if len(segs) < 2 {
		return fmt.Errorf("postgres: cannot set collection root %q", path)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling value for %q: %w", path, err)
	}

	if len(segs) == 2 {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO store_entries (collection, id, doc, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (collection, id)
			 DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
			segs[0], segs[1], raw,
		)
		if err != nil {
			return fmt.Errorf("writing %q: %w", path, err)
		}
		return s.notify(ctx, segs[0], segs[1])
	}

	return s.mutateEntry(ctx, segs, func(doc map[string]any) error {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		writeTree(doc, segs[2:], decoded)
		return nil
	})
}

// Remove deletes the subtree at path. Missing paths are a no-op.
func (s *Store) Remove(ctx context.Context, path string) error {
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}

	switch len(segs) {
	case 1:
		_, err = s.pool.Exec(ctx,
			`DELETE FROM store_entries WHERE collection = $1`, segs[0])
		if err != nil {
			return fmt.Errorf("removing collection %q: %w", path, err)
		}
		return s.notify(ctx, segs[0], "")
	case 2:
		_, err = s.pool.Exec(ctx,
			`DELETE FROM store_entries WHERE collection = $1 AND id = $2`,
			segs[0], segs[1])
		if err != nil {
			return fmt.Errorf("removing %q: %w", path, err)
		}
		return s.notify(ctx, segs[0], segs[1])
	default:
		return s.mutateEntry(ctx, segs, func(doc map[string]any) error {
			deleteTree(doc, segs[2:])
			return nil
		})
	}
}

// Push writes value under a generated time-ordered child key of path.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	key := store.PushKey(time.Now())
	if err := s.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Update atomically transforms the JSON at path. The entry row is locked
// (SELECT ... FOR UPDATE) for the duration of fn, which serializes competing
// read-modify-write sequences on the same match.
//
// Postcondition: Either fn's result is installed at path (nil result deletes
// it) or the row is unchanged and fn's error is returned.
func (s *Store) Update(ctx context.Context, path string, fn func(current []byte) ([]byte, error)) error {
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	if len(segs) < 2 {
		return fmt.Errorf("postgres: cannot update collection root %q", path)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning update of %q: %w", path, err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	exists := true
	err = tx.QueryRow(ctx,
		`SELECT doc FROM store_entries WHERE collection = $1 AND id = $2 FOR UPDATE`,
		segs[0], segs[1],
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("locking %q: %w", path, err)
	}

	// Extract the addressed value for fn.
	var current []byte
	if exists {
		if len(segs) == 2 {
			current = doc
		} else if inner, ok := lookupJSON(doc, segs[2:]); ok {
			current = inner
		}
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	newDoc, changed, err := applyResult(doc, exists, segs, next)
	if err != nil {
		return err
	}
	if !changed {
		return tx.Commit(ctx)
	}

	if newDoc == nil {
		_, err = tx.Exec(ctx,
			`DELETE FROM store_entries WHERE collection = $1 AND id = $2`,
			segs[0], segs[1])
	} else {
		_, err = tx.Exec(ctx,
			`INSERT INTO store_entries (collection, id, doc, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (collection, id)
			 DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
			segs[0], segs[1], newDoc,
		)
	}
	if err != nil {
		return fmt.Errorf("writing update of %q: %w", path, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing update of %q: %w", path, err)
	}
	return s.notify(ctx, segs[0], segs[1])
}

// applyResult folds fn's output back into the entry document.
// Returns the new document (nil = delete row) and whether anything changed.
func applyResult(doc []byte, exists bool, segs []string, next []byte) ([]byte, bool, error) {
	if len(segs) == 2 {
		if next == nil {
			return nil, exists, nil
		}
		return next, true, nil
	}

	root := make(map[string]any)
	if exists {
		if err := json.Unmarshal(doc, &root); err != nil {
			return nil, false, fmt.Errorf("postgres: corrupt document: %w", err)
		}
	}
	if next == nil {
		if !exists {
			return nil, false, nil
		}
		deleteTree(root, segs[2:])
	} else {
		var decoded any
		if err := json.Unmarshal(next, &decoded); err != nil {
			return nil, false, fmt.Errorf("postgres: update produced invalid JSON: %w", err)
		}
		writeTree(root, segs[2:], decoded)
	}
	newDoc, err := json.Marshal(root)
	if err != nil {
		return nil, false, err
	}
	return newDoc, true, nil
}

// Keys returns the sorted immediate child keys of path.
func (s *Store) Keys(ctx context.Context, path string) ([]string, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	if len(segs) == 1 {
		rows, err := s.pool.Query(ctx,
			`SELECT id FROM store_entries WHERE collection = $1 ORDER BY id`,
			segs[0])
		if err != nil {
			return nil, fmt.Errorf("listing collection %q: %w", path, err)
		}
		defer rows.Close()
		keys := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			keys = append(keys, id)
		}
		return keys, rows.Err()
	}

	raw, err := s.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return []string{}, nil // leaf value has no children
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch delivers the snapshot of path after every change to its entry.
// It acquires a dedicated connection for LISTEN and releases it when ctx ends.
//
// Precondition: path must address an entry or a path within one (>= 2 segments).
func (s *Store) Watch(ctx context.Context, path string) (<-chan []byte, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) < 2 {
		return nil, fmt.Errorf("postgres: watch requires an entry path, got %q", path)
	}
	entryKey := segs[0] + "/" + segs[1]

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	ch := make(chan []byte, 16)

	// Initial snapshot.
	if snap, err := s.Get(ctx, path); err == nil {
		ch <- snap
	}

	go func() {
		defer close(ch)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return // ctx cancelled or connection lost
			}
			if n.Payload != entryKey && n.Payload != segs[0]+"/" {
				continue
			}
			snap, err := s.Get(ctx, path)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					select {
					case ch <- []byte("null"):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// notify publishes the changed entry key on the notification channel.
func (s *Store) notify(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection+"/"+id)
	if err != nil {
		return fmt.Errorf("notifying change of %s/%s: %w", collection, id, err)
	}
	return nil
}

// mutateEntry runs a row-locked read-modify-write of one entry's document.
func (s *Store) mutateEntry(ctx context.Context, segs []string, mutate func(doc map[string]any) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning mutation: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	doc := make(map[string]any)
	err = tx.QueryRow(ctx,
		`SELECT doc FROM store_entries WHERE collection = $1 AND id = $2 FOR UPDATE`,
		segs[0], segs[1],
	).Scan(&raw)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("locking %s/%s: %w", segs[0], segs[1], err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("postgres: corrupt document at %s/%s: %w", segs[0], segs[1], err)
		}
	}

	if err := mutate(doc); err != nil {
		return err
	}

	newDoc, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO store_entries (collection, id, doc, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (collection, id)
		 DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
		segs[0], segs[1], newDoc,
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", segs[0], segs[1], err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s/%s: %w", segs[0], segs[1], err)
	}
	return s.notify(ctx, segs[0], segs[1])
}

// lookupJSON walks segs into raw JSON, returning the addressed sub-document.
func lookupJSON(raw []byte, segs []string) ([]byte, bool) {
	current := json.RawMessage(raw)
	for _, seg := range segs {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, false
		}
		next, ok := obj[seg]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// writeTree installs value at segs inside root, creating interior maps.
func writeTree(root map[string]any, segs []string, value any) {
	m := root
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

// deleteTree removes the subtree at segs inside root.
func deleteTree(root map[string]any, segs []string) {
	m := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	delete(m, segs[len(segs)-1])
}
