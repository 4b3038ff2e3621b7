package poller

import (
	"context"
	"errors"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/ledger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bizkut/EveSalesNotification/internal/retry"
)

// runBackfill walks older transaction history in the background, one page
// per account per tick, so a deep history never blocks the live rounds.
func (s *Scheduler) runBackfill(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := s.store.BackfillingAccounts(ctx)
		if err != nil {
			s.logger.Errorf("can't list backfilling accounts: %v", err)
			continue
		}
		for _, id := range ids {
			s.backfillStep(ctx, id)
		}
	}
}

func (s *Scheduler) backfillStep(ctx context.Context, accountID int64) {
	account, err := s.store.Account(ctx, accountID)
	if err != nil {
		s.logger.Errorf("can't load account %d for backfill: %v", accountID, err)
		return
	}
	if account.PendingDelete() {
		return
	}

	state, err := s.store.BackfillState(ctx, accountID)
	if err != nil {
		s.logger.Errorf("can't load backfill state for account %d: %v", accountID, err)
		return
	}

	if state.Phase == model.BackfillFastSynced {
		if err := s.lifecycle.MarkBackfilling(ctx, accountID); err != nil {
			s.logger.Errorf("can't start backfill for account %d: %v", accountID, err)
			return
		}
	}

	if state.BeforeID == nil || *state.BeforeID <= 0 {
		s.finishBackfill(ctx, accountID)
		return
	}

	mu := s.accountMu(accountID)
	mu.Lock()
	defer mu.Unlock()

	var records []model.TransactionRecord
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		fetched, _, ferr := s.client.WalletTransactions(ctx, account, *state.BeforeID, "")
		if ferr != nil {
			if esi.Transient(ferr) {
				return ferr
			}
			return retry.Persistent(ferr)
		}
		records = fetched
		return nil
	})
	if err != nil {
		// The live poll raises the credential alert; here we just wait for
		// the next tick.
		if !errors.Is(err, esi.ErrAuthExpired) {
			s.logger.Errorf("backfill fetch for account %d: %v", accountID, err)
		}
		return
	}

	if len(records) == 0 {
		s.finishBackfill(ctx, accountID)
		return
	}

	// Backfilled buys open lots so sales of pre-sync inventory get a known
	// cost basis; OpenLots orders by acquired_at, so older lots slot ahead
	// of the live ones. Backfilled sells stay history only: the walk runs
	// newest-first, so replaying them against the book is not possible.
	if err := s.store.WithTx(ctx, func(tx Store) error {
		fresh, txErr := tx.InsertTransactions(ctx, accountID, records)
		if txErr != nil {
			return txErr
		}
		reconciler := ledger.NewReconciler(tx, s.logger)
		for _, record := range fresh {
			if !record.IsBuy {
				continue
			}
			if err := reconciler.ApplyBuy(ctx, record); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		s.logger.Errorf("can't store backfill page for account %d: %v", accountID, err)
		return
	}

	if err := s.lifecycle.AdvanceBackfillCursor(ctx, accountID, oldestTransactionID(records)); err != nil {
		s.logger.Errorf("can't advance backfill cursor for account %d: %v", accountID, err)
	}
}

func (s *Scheduler) finishBackfill(ctx context.Context, accountID int64) {
	if err := s.lifecycle.MarkComplete(ctx, accountID, time.Now().UTC()); err != nil {
		s.logger.Errorf("can't complete backfill for account %d: %v", accountID, err)
		return
	}
	s.logger.Infof("backfill complete for account %d, notification grace started", accountID)
}
