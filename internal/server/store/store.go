package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/muralapp/mural/internal/util/timefmt"
	"github.com/muralapp/mural/internal/wire"
)

// ErrNotFound is returned when a space id has no row.
var ErrNotFound = errors.New("space not found")

// Store provides space persistence on top of an opened database.
type Store struct {
	db *sql.DB
}

// New wraps an opened, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert writes a space's canvas state, creating the row on first
// save. The state blob is compressed before insert; created_at is kept
// from the first save, saved_at always advances. An empty name falls
// back to the space id on first save and leaves an existing name
// untouched on later saves, so writers that only carry state (the
// autosave path, image deletion) cannot clobber a chosen display name.
func (s *Store) Upsert(ctx context.Context, spaceID, name string, state wire.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	blob, compression := compressBlob(raw)
	now := timefmt.Format(time.Now())

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, name, state, compression, node_count, created_at, saved_at)
		VALUES (?1, CASE WHEN ?2 = '' THEN ?1 ELSE ?2 END, ?3, ?4, ?5, ?6, ?6)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN ?2 = '' THEN spaces.name ELSE ?2 END,
			state = excluded.state,
			compression = excluded.compression,
			node_count = excluded.node_count,
			saved_at = excluded.saved_at`,
		spaceID, name, blob, int(compression), len(state.Nodes), now)
	if err != nil {
		return fmt.Errorf("upsert space %q: %w", spaceID, err)
	}
	return nil
}

// Get loads a space's canvas state. Returns ErrNotFound for an unknown
// id.
func (s *Store) Get(ctx context.Context, spaceID string) (wire.State, error) {
	var (
		blob        []byte
		compression int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, compression FROM spaces WHERE id = ?`, spaceID).
		Scan(&blob, &compression)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.State{}, ErrNotFound
	}
	if err != nil {
		return wire.State{}, fmt.Errorf("get space %q: %w", spaceID, err)
	}

	raw, err := decompressBlob(blob, Compression(compression))
	if err != nil {
		return wire.State{}, fmt.Errorf("decode space %q: %w", spaceID, err)
	}
	var state wire.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return wire.State{}, fmt.Errorf("unmarshal space %q: %w", spaceID, err)
	}
	return state, nil
}

// List returns all spaces, most recently saved first.
func (s *Store) List(ctx context.Context) ([]wire.SpaceInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, node_count, saved_at FROM spaces ORDER BY saved_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []wire.SpaceInfo
	for rows.Next() {
		var info wire.SpaceInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.NodeCount, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("scan space row: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return out, nil
}

// Delete removes a space. Returns ErrNotFound for an unknown id.
func (s *Store) Delete(ctx context.Context, spaceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM spaces WHERE id = ?`, spaceID)
	if err != nil {
		return fmt.Errorf("delete space %q: %w", spaceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete space %q: %w", spaceID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Bootstrap guarantees the default space row exists, so a fresh
// install always has somewhere to land.
func (s *Store) Bootstrap(ctx context.Context) error {
	_, err := s.Get(ctx, wire.DefaultSpace)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	empty := wire.State{Viewport: wire.DefaultViewport()}
	return s.Upsert(ctx, wire.DefaultSpace, wire.DefaultSpace, empty)
}
