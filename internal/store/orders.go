package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bizkut/EveSalesNotification/internal/model"
)

const (
	_queryOrderSnapshots = `SELECT order_id, account_id, is_buy_order, type_id, price,
			volume_remain, volume_total, location_id, region_id, duration, issued
		FROM order_snapshots WHERE account_id = $1`

	_deleteOrderSnapshots = `DELETE FROM order_snapshots WHERE account_id = $1`

	_insertOrderSnapshot = `INSERT INTO order_snapshots (
			order_id, account_id, is_buy_order, type_id, price,
			volume_remain, volume_total, location_id, region_id, duration, issued
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_upsertHistoricOrder = `INSERT INTO historic_orders (order_id, account_id, state, volume_remain)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (order_id, account_id) DO UPDATE
		SET state = EXCLUDED.state, volume_remain = EXCLUDED.volume_remain`

	_queryHistoricOrder = `SELECT order_id, account_id, state, volume_remain
		FROM historic_orders WHERE account_id = $1 AND order_id = $2`
)

func (s *Store) OrderSnapshots(ctx context.Context, accountID int64) ([]model.OrderSnapshot, error) {
	var snaps []model.OrderSnapshot
	if err := s.q.SelectContext(ctx, &snaps, _queryOrderSnapshots, accountID); err != nil {
		return nil, fmt.Errorf("can't query order snapshots: %w", err)
	}
	return snaps, nil
}

// ReplaceOrderSnapshots swaps the stored snapshot set wholesale. Run it
// inside WithTx with the diff so readers never see a mixed set.
func (s *Store) ReplaceOrderSnapshots(ctx context.Context, accountID int64, snaps []model.OrderSnapshot) error {
	if _, err := s.q.ExecContext(ctx, _deleteOrderSnapshots, accountID); err != nil {
		return fmt.Errorf("can't clear order snapshots: %w", err)
	}
	for _, o := range snaps {
		if _, err := s.q.ExecContext(ctx, _insertOrderSnapshot,
			o.OrderID, accountID, o.IsBuyOrder, o.TypeID, o.Price,
			o.VolumeRemain, o.VolumeTotal, o.LocationID, o.RegionID, o.Duration, o.Issued,
		); err != nil {
			return fmt.Errorf("can't insert order snapshot %d: %w", o.OrderID, err)
		}
	}
	return nil
}

func (s *Store) UpsertHistoricOrders(ctx context.Context, accountID int64, orders []model.HistoricOrder) error {
	for _, o := range orders {
		if _, err := s.q.ExecContext(ctx, _upsertHistoricOrder, o.OrderID, accountID, o.State, o.VolumeRemain); err != nil {
			return fmt.Errorf("can't upsert historic order %d: %w", o.OrderID, err)
		}
	}
	return nil
}

func (s *Store) HistoricOrder(ctx context.Context, accountID, orderID int64) (model.HistoricOrder, bool, error) {
	var order model.HistoricOrder
	if err := s.q.GetContext(ctx, &order, _queryHistoricOrder, accountID, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.HistoricOrder{}, false, nil
		}
		return model.HistoricOrder{}, false, fmt.Errorf("can't query historic order %d: %w", orderID, err)
	}
	return order, true, nil
}
