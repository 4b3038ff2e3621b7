package store

import (
	"context"
	"fmt"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/lib/pq"
)

const (
	_queryUndercutFlags = `SELECT order_id, account_id, undercut, competitor_price, competitor_location_id
		FROM undercut_flags WHERE account_id = $1`

	_upsertUndercutFlag = `INSERT INTO undercut_flags (order_id, account_id, undercut, competitor_price, competitor_location_id)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id, account_id) DO UPDATE SET
			undercut = EXCLUDED.undercut,
			competitor_price = EXCLUDED.competitor_price,
			competitor_location_id = EXCLUDED.competitor_location_id`

	_deleteAllUndercutFlags   = `DELETE FROM undercut_flags WHERE account_id = $1`
	_deleteStaleUndercutFlags = `DELETE FROM undercut_flags WHERE account_id = $1 AND NOT (order_id = ANY($2))`
)

func (s *Store) UndercutFlags(ctx context.Context, accountID int64) (map[int64]model.UndercutFlag, error) {
	var flags []model.UndercutFlag
	if err := s.q.SelectContext(ctx, &flags, _queryUndercutFlags, accountID); err != nil {
		return nil, fmt.Errorf("can't query undercut flags: %w", err)
	}
	byOrder := make(map[int64]model.UndercutFlag, len(flags))
	for _, f := range flags {
		byOrder[f.OrderID] = f
	}
	return byOrder, nil
}

func (s *Store) SaveUndercutFlags(ctx context.Context, accountID int64, flags []model.UndercutFlag) error {
	for _, f := range flags {
		if _, err := s.q.ExecContext(ctx, _upsertUndercutFlag,
			f.OrderID, accountID, f.Undercut, f.CompetitorPrice, f.CompetitorLocationID,
		); err != nil {
			return fmt.Errorf("can't save undercut flag for order %d: %w", f.OrderID, err)
		}
	}
	return nil
}

// RemoveStaleUndercutFlags drops flags for orders no longer open.
func (s *Store) RemoveStaleUndercutFlags(ctx context.Context, accountID int64, openOrderIDs []int64) error {
	if len(openOrderIDs) == 0 {
		if _, err := s.q.ExecContext(ctx, _deleteAllUndercutFlags, accountID); err != nil {
			return fmt.Errorf("can't clear undercut flags: %w", err)
		}
		return nil
	}
	if _, err := s.q.ExecContext(ctx, _deleteStaleUndercutFlags, accountID, pq.Array(openOrderIDs)); err != nil {
		return fmt.Errorf("can't remove stale undercut flags: %w", err)
	}
	return nil
}
