package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/lib/pq"
)

const (
	_insertTransaction = `INSERT INTO transactions (
			transaction_id, account_id, is_buy, type_id, quantity,
			unit_price, location_id, client_id, journal_ref_id, date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (transaction_id, account_id) DO NOTHING`

	_queryExistingTransactionIDs = `SELECT transaction_id FROM transactions
		WHERE account_id = $1 AND transaction_id = ANY($2)`

	_queryTransactionsInWindow = `SELECT transaction_id, account_id, is_buy, type_id, quantity,
			unit_price, location_id, client_id, journal_ref_id, date
		FROM transactions
		WHERE account_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, transaction_id`

	_queryAllTransactions = `SELECT transaction_id, account_id, is_buy, type_id, quantity,
			unit_price, location_id, client_id, journal_ref_id, date
		FROM transactions WHERE account_id = $1 ORDER BY date, transaction_id`
)

// InsertTransactions stores records, skipping ones already present, and
// returns the subset that was actually new. The unique external id keeps
// re-fetched pages from double counting.
func (s *Store) InsertTransactions(ctx context.Context, accountID int64, records []model.TransactionRecord) ([]model.TransactionRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.TransactionID)
	}

	var existing []int64
	if err := s.q.SelectContext(ctx, &existing, _queryExistingTransactionIDs, accountID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("can't query existing transaction ids: %w", err)
	}
	seen := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	fresh := make([]model.TransactionRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.TransactionID]; ok {
			continue
		}
		if _, err := s.q.ExecContext(ctx, _insertTransaction,
			r.TransactionID, accountID, r.IsBuy, r.TypeID, r.Quantity,
			r.UnitPrice, r.LocationID, r.ClientID, r.JournalRefID, r.Date,
		); err != nil {
			return nil, fmt.Errorf("can't insert transaction %d: %w", r.TransactionID, err)
		}
		fresh = append(fresh, r)
	}

	return fresh, nil
}

func (s *Store) TransactionsInWindow(ctx context.Context, accountID int64, from, to time.Time) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	if err := s.q.SelectContext(ctx, &records, _queryTransactionsInWindow, accountID, from, to); err != nil {
		return nil, fmt.Errorf("can't query transactions in window: %w", err)
	}
	return records, nil
}

func (s *Store) AllTransactions(ctx context.Context, accountID int64) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	if err := s.q.SelectContext(ctx, &records, _queryAllTransactions, accountID); err != nil {
		return nil, fmt.Errorf("can't query transactions: %w", err)
	}
	return records, nil
}
