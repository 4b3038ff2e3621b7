package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bizkut/EveSalesNotification/internal/model"
)

const (
	_queryCursor = `SELECT account_id, stream, etag, body, expires_at, last_fetched_at,
			last_processed_id, suspended, alert_sent
		FROM stream_cursors WHERE account_id = $1 AND stream = $2`

	// last_processed_id is monotonic: GREATEST keeps a late or replayed
	// round from moving it backwards.
	_upsertCursor = `INSERT INTO stream_cursors (
			account_id, stream, etag, body, expires_at, last_fetched_at,
			last_processed_id, suspended, alert_sent
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (account_id, stream) DO UPDATE SET
			etag = EXCLUDED.etag,
			body = EXCLUDED.body,
			expires_at = EXCLUDED.expires_at,
			last_fetched_at = EXCLUDED.last_fetched_at,
			last_processed_id = GREATEST(stream_cursors.last_processed_id, EXCLUDED.last_processed_id),
			suspended = EXCLUDED.suspended,
			alert_sent = EXCLUDED.alert_sent`

	_queryBackfillState = `SELECT account_id, phase, before_id, completed_at
		FROM backfill_states WHERE account_id = $1`

	_upsertBackfillState = `INSERT INTO backfill_states (account_id, phase, before_id, completed_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (account_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			before_id = EXCLUDED.before_id,
			completed_at = EXCLUDED.completed_at`

	_queryBackfillingAccounts = `SELECT account_id FROM backfill_states WHERE phase IN ('fast_synced', 'backfilling')`
)

func (s *Store) Cursor(ctx context.Context, accountID int64, stream model.StreamKind) (model.StreamCursor, error) {
	var cursor model.StreamCursor
	if err := s.q.GetContext(ctx, &cursor, _queryCursor, accountID, stream); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StreamCursor{AccountID: accountID, Stream: stream}, nil
		}
		return model.StreamCursor{}, fmt.Errorf("can't query cursor %s/%d: %w", stream, accountID, err)
	}
	return cursor, nil
}

func (s *Store) SaveCursor(ctx context.Context, c model.StreamCursor) error {
	if _, err := s.q.ExecContext(ctx, _upsertCursor,
		c.AccountID, c.Stream, c.ETag, c.Body, c.ExpiresAt, c.LastFetchedAt,
		c.LastProcessedID, c.Suspended, c.AlertSent,
	); err != nil {
		return fmt.Errorf("can't save cursor %s/%d: %w", c.Stream, c.AccountID, err)
	}
	return nil
}

func (s *Store) BackfillState(ctx context.Context, accountID int64) (model.BackfillState, error) {
	var state model.BackfillState
	if err := s.q.GetContext(ctx, &state, _queryBackfillState, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BackfillState{AccountID: accountID, Phase: model.BackfillNew}, nil
		}
		return model.BackfillState{}, fmt.Errorf("can't query backfill state for account %d: %w", accountID, err)
	}
	return state, nil
}

func (s *Store) SaveBackfillState(ctx context.Context, state model.BackfillState) error {
	if _, err := s.q.ExecContext(ctx, _upsertBackfillState,
		state.AccountID, state.Phase, state.BeforeID, state.CompletedAt,
	); err != nil {
		return fmt.Errorf("can't save backfill state for account %d: %w", state.AccountID, err)
	}
	return nil
}

func (s *Store) BackfillingAccounts(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.q.SelectContext(ctx, &ids, _queryBackfillingAccounts); err != nil {
		return nil, fmt.Errorf("can't query backfilling accounts: %w", err)
	}
	return ids, nil
}
