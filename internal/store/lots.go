package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
)

const (
	_queryOpenLots = `SELECT id, account_id, type_id, quantity, unit_cost, acquired_at, source_tx_id
		FROM lots
		WHERE account_id = $1 AND type_id = $2 AND quantity > 0
		ORDER BY acquired_at, id
		FOR UPDATE`

	_insertLot = `INSERT INTO lots (account_id, type_id, quantity, unit_cost, acquired_at, source_tx_id)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`

	_updateLotQuantity = `UPDATE lots SET quantity = $2 WHERE id = $1`
	_retireLot         = `DELETE FROM lots WHERE id = $1`

	// Average unit price over every buy ever recorded for the item, used to
	// cost sales that outrun the open lot history.
	_queryAvgAcquisitionPrice = `SELECT COALESCE(SUM(unit_price * quantity) / NULLIF(SUM(quantity), 0), 0)
		FROM transactions
		WHERE account_id = $1 AND type_id = $2 AND is_buy`
)

// OpenLots returns unconsumed lots oldest-first, row-locked for the duration
// of the surrounding transaction so concurrent reconciliation of the same
// (account, item) pair cannot interleave.
func (s *Store) OpenLots(ctx context.Context, accountID, typeID int64) ([]model.Lot, error) {
	var lots []model.Lot
	if err := s.q.SelectContext(ctx, &lots, _queryOpenLots, accountID, typeID); err != nil {
		return nil, fmt.Errorf("can't query open lots: %w", err)
	}
	return lots, nil
}

func (s *Store) InsertLot(ctx context.Context, lot model.Lot) (int64, error) {
	var id int64
	if err := s.q.GetContext(ctx, &id, _insertLot,
		lot.AccountID, lot.TypeID, lot.Quantity, lot.UnitCost, lot.AcquiredAt, lot.SourceTxID,
	); err != nil {
		return 0, fmt.Errorf("can't insert lot: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateLotQuantity(ctx context.Context, lotID, quantity int64) error {
	if _, err := s.q.ExecContext(ctx, _updateLotQuantity, lotID, quantity); err != nil {
		return fmt.Errorf("can't update lot %d quantity: %w", lotID, err)
	}
	return nil
}

func (s *Store) RetireLot(ctx context.Context, lotID int64) error {
	if _, err := s.q.ExecContext(ctx, _retireLot, lotID); err != nil {
		return fmt.Errorf("can't retire lot %d: %w", lotID, err)
	}
	return nil
}

// AvgAcquisitionPrice derives the historical average buy price for an item,
// or false when no buy was ever recorded.
func (s *Store) AvgAcquisitionPrice(ctx context.Context, accountID, typeID int64) (decimal.Decimal, bool, error) {
	var avg decimal.Decimal
	if err := s.q.GetContext(ctx, &avg, _queryAvgAcquisitionPrice, accountID, typeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("can't query avg acquisition price: %w", err)
	}
	return avg, !avg.IsZero(), nil
}
