package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/lib/pq"
)

const (
	_insertJournal = `INSERT INTO journal (
			ref_id, account_id, ref_type, amount, context_id, description, date
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (ref_id, account_id) DO NOTHING`

	_queryExistingJournalIDs = `SELECT ref_id FROM journal
		WHERE account_id = $1 AND ref_id = ANY($2)`

	_queryJournalInWindow = `SELECT ref_id, account_id, ref_type, amount, context_id, description, date
		FROM journal
		WHERE account_id = $1 AND date >= $2 AND date < $3
		ORDER BY date, ref_id`

	_queryJournalByContext = `SELECT ref_id, account_id, ref_type, amount, context_id, description, date
		FROM journal
		WHERE account_id = $1 AND context_id = $2 AND ref_type = ANY($3)`
)

// InsertJournal stores journal entries and returns the newly seen subset.
func (s *Store) InsertJournal(ctx context.Context, accountID int64, entries []model.JournalRecord) ([]model.JournalRecord, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.RefID)
	}

	var existing []int64
	if err := s.q.SelectContext(ctx, &existing, _queryExistingJournalIDs, accountID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("can't query existing journal ids: %w", err)
	}
	seen := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	fresh := make([]model.JournalRecord, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.RefID]; ok {
			continue
		}
		if _, err := s.q.ExecContext(ctx, _insertJournal,
			e.RefID, accountID, e.RefType, e.Amount, e.ContextID, e.Description, e.Date,
		); err != nil {
			return nil, fmt.Errorf("can't insert journal entry %d: %w", e.RefID, err)
		}
		fresh = append(fresh, e)
	}

	return fresh, nil
}

func (s *Store) JournalInWindow(ctx context.Context, accountID int64, from, to time.Time) ([]model.JournalRecord, error) {
	var entries []model.JournalRecord
	if err := s.q.SelectContext(ctx, &entries, _queryJournalInWindow, accountID, from, to); err != nil {
		return nil, fmt.Errorf("can't query journal in window: %w", err)
	}
	return entries, nil
}

// FeeEntriesForContext finds fee entries directly referencing a transaction.
func (s *Store) FeeEntriesForContext(ctx context.Context, accountID, contextID int64) ([]model.JournalRecord, error) {
	var entries []model.JournalRecord
	refTypes := pq.Array([]string{model.RefTypeTransactionTax, model.RefTypeBrokersFee})
	if err := s.q.SelectContext(ctx, &entries, _queryJournalByContext, accountID, contextID, refTypes); err != nil {
		return nil, fmt.Errorf("can't query fee entries for context %d: %w", contextID, err)
	}
	return entries, nil
}
