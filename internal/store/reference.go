package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	_queryLocation  = `SELECT system_id, region_id FROM locations WHERE location_id = $1`
	_insertLocation = `INSERT INTO locations (location_id, system_id, region_id)
		VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`

	_queryJumpDistance = `SELECT jumps FROM jump_distances
		WHERE origin_system_id = $1 AND destination_system_id = $2`
	// Stored in both directions; the graph is undirected.
	_insertJumpDistance = `INSERT INTO jump_distances (origin_system_id, destination_system_id, jumps)
		VALUES ($1,$2,$3), ($2,$1,$3) ON CONFLICT DO NOTHING`

	_queryNames = `SELECT id, name FROM names WHERE id = ANY($1)`
	_insertName = `INSERT INTO names (id, name, category) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category`
)

// Location is a station or structure resolved to its system and region.
type Location struct {
	SystemID int64 `db:"system_id"`
	RegionID int64 `db:"region_id"`
}

func (s *Store) Location(ctx context.Context, locationID int64) (Location, bool, error) {
	var loc Location
	if err := s.q.GetContext(ctx, &loc, _queryLocation, locationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Location{}, false, nil
		}
		return Location{}, false, fmt.Errorf("can't query location %d: %w", locationID, err)
	}
	return loc, true, nil
}

func (s *Store) SaveLocation(ctx context.Context, locationID int64, loc Location) error {
	if _, err := s.q.ExecContext(ctx, _insertLocation, locationID, loc.SystemID, loc.RegionID); err != nil {
		return fmt.Errorf("can't save location %d: %w", locationID, err)
	}
	return nil
}

func (s *Store) JumpDistance(ctx context.Context, origin, destination int64) (int, bool, error) {
	var jumps int
	if err := s.q.GetContext(ctx, &jumps, _queryJumpDistance, origin, destination); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("can't query jump distance %d->%d: %w", origin, destination, err)
	}
	return jumps, true, nil
}

func (s *Store) SaveJumpDistance(ctx context.Context, origin, destination int64, jumps int) error {
	if _, err := s.q.ExecContext(ctx, _insertJumpDistance, origin, destination, jumps); err != nil {
		return fmt.Errorf("can't save jump distance %d->%d: %w", origin, destination, err)
	}
	return nil
}

func (s *Store) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows := []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}{}
	if err := s.q.SelectContext(ctx, &rows, _queryNames, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("can't query names: %w", err)
	}
	names := make(map[int64]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

func (s *Store) SaveNames(ctx context.Context, names map[int64]string, category string) error {
	for id, name := range names {
		if _, err := s.q.ExecContext(ctx, _insertName, id, name, category); err != nil {
			return fmt.Errorf("can't save name %d: %w", id, err)
		}
	}
	return nil
}
