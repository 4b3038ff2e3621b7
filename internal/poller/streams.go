package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/ledger"
	"github.com/bizkut/EveSalesNotification/internal/lifecycle"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bizkut/EveSalesNotification/internal/retry"
	"github.com/bizkut/EveSalesNotification/internal/snapshot"
	"github.com/shopspring/decimal"
)

// fetch wraps one conditional stream request with cursor handling: the
// stored Expires is honoured without a network call, transient failures are
// retried, 304 leaves state untouched and an auth failure suspends the
// stream with a single alert. The returned cursor carries the new ETag and
// expiry; the caller persists it in the same transaction as the payload.
func (s *Scheduler) fetch(
	ctx context.Context,
	account model.Account,
	kind model.StreamKind,
	fn func(ctx context.Context, etag string) (esi.Page, error),
) (model.StreamCursor, error) {
	cursor, err := s.store.Cursor(ctx, account.ID, kind)
	if err != nil {
		return cursor, err
	}

	now := time.Now().UTC()
	if now.Before(cursor.ExpiresAt) {
		return cursor, esi.ErrNotModified
	}

	var page esi.Page
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		p, ferr := fn(ctx, cursor.ETag)
		if ferr != nil {
			if esi.Transient(ferr) {
				return ferr
			}
			return retry.Persistent(ferr)
		}
		page = p
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, esi.ErrNotModified):
			cursor.LastFetchedAt = now
			if saveErr := s.store.SaveCursor(ctx, cursor); saveErr != nil {
				return cursor, saveErr
			}
			return cursor, esi.ErrNotModified
		case errors.Is(err, esi.ErrAuthExpired):
			if suspendErr := s.suspendStream(ctx, account, cursor); suspendErr != nil {
				return cursor, suspendErr
			}
			return cursor, esi.ErrAuthExpired
		default:
			return cursor, err
		}
	}

	if cursor.Suspended {
		s.logger.Infof("stream %s for account %d resumed", kind, account.ID)
	}
	cursor.ETag = page.ETag
	cursor.Body = page.Body
	cursor.ExpiresAt = page.ExpiresAt
	cursor.LastFetchedAt = now
	cursor.Suspended = false
	cursor.AlertSent = false
	return cursor, nil
}

// suspendStream marks the cursor suspended and raises the credential alert
// exactly once. The next successful fetch clears both flags, so polling
// resumes on its own after a re-auth.
func (s *Scheduler) suspendStream(ctx context.Context, account model.Account, cursor model.StreamCursor) error {
	if cursor.Suspended && cursor.AlertSent {
		return nil
	}

	cursor.Suspended = true
	if !cursor.AlertSent {
		alert := model.Notification{
			Kind:      model.NotifyAuthExpired,
			AccountID: account.ID,
			ChatID:    account.ChatID,
			At:        time.Now().UTC(),
		}
		if err := s.sink.Send(ctx, alert); err != nil {
			s.logger.Errorf("can't send auth alert for account %d: %v", account.ID, err)
		} else {
			cursor.AlertSent = true
		}
	}
	return s.store.SaveCursor(ctx, cursor)
}

// skippable errors end a stream's round without noise; everything else is
// reported by pollAccount.
func skippable(err error) bool {
	return errors.Is(err, esi.ErrNotModified) || errors.Is(err, esi.ErrAuthExpired)
}

func (s *Scheduler) pollOrderHistory(ctx context.Context, account model.Account, _ lifecycle.Gate) error {
	var orders []model.HistoricOrder
	cursor, err := s.fetch(ctx, account, model.StreamOrderHistory, func(ctx context.Context, etag string) (esi.Page, error) {
		fetched, page, ferr := s.client.OrderHistory(ctx, account, etag)
		orders = fetched
		return page, ferr
	})
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	if !s.stillActive(ctx, account.ID) {
		return nil
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpsertHistoricOrders(ctx, account.ID, orders); err != nil {
			return err
		}
		return tx.SaveCursor(ctx, cursor)
	})
}

func (s *Scheduler) pollOrders(ctx context.Context, account model.Account, gate lifecycle.Gate) error {
	var snaps []model.OrderSnapshot
	cursor, err := s.fetch(ctx, account, model.StreamOrders, func(ctx context.Context, etag string) (esi.Page, error) {
		fetched, page, ferr := s.client.MarketOrders(ctx, account, etag)
		snaps = fetched
		return page, ferr
	})
	if err != nil {
		if errors.Is(err, esi.ErrNotModified) {
			// The own-orders ETag says nothing about competitors, who
			// reprice independently. Run the book check against the stored
			// snapshot so undercuts surface while our orders sit unchanged.
			stored, serr := s.store.OrderSnapshots(ctx, account.ID)
			if serr != nil {
				return serr
			}
			return s.evaluateUndercuts(ctx, account, stored, gate)
		}
		if skippable(err) {
			return nil
		}
		return err
	}

	previous, err := s.store.OrderSnapshots(ctx, account.ID)
	if err != nil {
		return err
	}
	changes := snapshot.Diff(previous, snaps)

	if !s.stillActive(ctx, account.ID) {
		return nil
	}

	if err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.ReplaceOrderSnapshots(ctx, account.ID, snaps); err != nil {
			return err
		}
		open := make([]int64, 0, len(snaps))
		for _, o := range snaps {
			open = append(open, o.OrderID)
		}
		if err := tx.RemoveStaleUndercutFlags(ctx, account.ID, open); err != nil {
			return err
		}
		return tx.SaveCursor(ctx, cursor)
	}); err != nil {
		return err
	}

	if gate.Allows(time.Now().UTC()) {
		s.notifyRemovals(ctx, account, changes.Removed)
	}
	return s.evaluateUndercuts(ctx, account, snaps, gate)
}

func (s *Scheduler) notifyRemovals(ctx context.Context, account model.Account, removed []model.OrderSnapshot) {
	for _, order := range removed {
		historic, found, err := s.store.HistoricOrder(ctx, account.ID, order.OrderID)
		if err != nil {
			s.logger.Errorf("can't classify removed order %d: %v", order.OrderID, err)
			continue
		}

		var kind model.NotificationKind
		switch snapshot.ClassifyRemoval(historic, found) {
		case snapshot.RemovalCancelled:
			kind = model.NotifyOrderCancelled
		case snapshot.RemovalExpired:
			kind = model.NotifyOrderExpired
		default:
			// Fills announce themselves through the transaction stream.
			continue
		}

		s.send(ctx, model.Notification{
			Kind:      kind,
			AccountID: account.ID,
			ChatID:    account.ChatID,
			TypeID:    order.TypeID,
			TypeName:  s.typeName(ctx, order.TypeID),
			Quantity:  order.VolumeRemain,
			UnitPrice: order.Price,
			At:        time.Now().UTC(),
		})
	}
}

func (s *Scheduler) evaluateUndercuts(ctx context.Context, account model.Account, snaps []model.OrderSnapshot, gate lifecycle.Gate) error {
	if len(snaps) == 0 {
		return nil
	}

	prior, err := s.store.UndercutFlags(ctx, account.ID)
	if err != nil {
		return err
	}

	results := s.undercut.EvaluateAll(ctx, account, snaps, prior)
	allowed := gate.Allows(time.Now().UTC())

	flags := make([]model.UndercutFlag, 0, len(snaps))
	for _, order := range snaps {
		res, ok := results[order.OrderID]
		if !ok {
			// Check failed; keep the stored flag so the transition is not
			// lost.
			if p, ok := prior[order.OrderID]; ok {
				flags = append(flags, p)
			}
			continue
		}
		flags = append(flags, res.Flag)

		if res.Notify && allowed {
			jumps := -1
			if res.Flag.CompetitorLocationID != nil {
				jumps = s.competitorJumps(ctx, account, order.LocationID, *res.Flag.CompetitorLocationID)
			}
			s.send(ctx, model.Notification{
				Kind:            model.NotifyUndercut,
				AccountID:       account.ID,
				ChatID:          account.ChatID,
				TypeID:          order.TypeID,
				TypeName:        s.typeName(ctx, order.TypeID),
				UnitPrice:       order.Price,
				CompetitorPrice: res.CompetitorPrice,
				Jumps:           jumps,
				At:              time.Now().UTC(),
			})
		}
	}

	return s.store.SaveUndercutFlags(ctx, account.ID, flags)
}

func (s *Scheduler) competitorJumps(ctx context.Context, account model.Account, ownLocation, competitorLocation int64) int {
	if ownLocation == competitorLocation {
		return 0
	}
	own, err := s.undercut.ResolveRegion(ctx, account, ownLocation)
	if err != nil {
		return -1
	}
	other, err := s.undercut.ResolveRegion(ctx, account, competitorLocation)
	if err != nil {
		return -1
	}
	jumps, err := s.distances.Between(ctx, own.SystemID, other.SystemID)
	if err != nil {
		return -1
	}
	return jumps
}

func (s *Scheduler) pollTransactions(ctx context.Context, account model.Account, gate lifecycle.Gate) error {
	var records []model.TransactionRecord
	cursor, err := s.fetch(ctx, account, model.StreamTransactions, func(ctx context.Context, etag string) (esi.Page, error) {
		fetched, page, ferr := s.client.WalletTransactions(ctx, account, 0, etag)
		records = fetched
		return page, ferr
	})
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	state, err := s.store.BackfillState(ctx, account.ID)
	if err != nil {
		return err
	}

	// Monotonic in Go as well as in SQL: a replayed or out-of-order page
	// must not move the cursor backwards.
	if m := maxTransactionID(records); m > cursor.LastProcessedID {
		cursor.LastProcessedID = m
	}

	if !s.stillActive(ctx, account.ID) {
		return nil
	}

	var fresh []model.TransactionRecord
	results := make(map[int64]*ledger.SaleResult)
	if err := s.store.WithTx(ctx, func(tx Store) error {
		inserted, txErr := tx.InsertTransactions(ctx, account.ID, records)
		if txErr != nil {
			return txErr
		}
		sortTransactions(inserted)
		fresh = inserted

		reconciler := ledger.NewReconciler(tx, s.logger)
		for _, record := range fresh {
			res, applyErr := reconciler.Apply(ctx, record)
			if applyErr != nil {
				return applyErr
			}
			if res != nil {
				results[record.TransactionID] = res
			}
		}
		return tx.SaveCursor(ctx, cursor)
	}); err != nil {
		return err
	}

	// First successful live fetch: the fast sync is done, the background
	// walk picks it up from the oldest id seen here.
	if state.Phase == model.BackfillNew {
		beforeID := int64(0)
		if len(records) > 0 {
			beforeID = oldestTransactionID(records)
		}
		if err := s.lifecycle.MarkFastSynced(ctx, account.ID, beforeID); err != nil {
			return err
		}
	}

	for _, record := range fresh {
		// Gate on the trade's own timestamp: a record dated inside the
		// grace window stays silent however late it is fetched.
		if !gate.Allows(record.Date) {
			continue
		}
		s.notifyTrade(ctx, account, record, results[record.TransactionID])
	}
	return nil
}

func (s *Scheduler) notifyTrade(ctx context.Context, account model.Account, record model.TransactionRecord, res *ledger.SaleResult) {
	n := model.Notification{
		AccountID: account.ID,
		ChatID:    account.ChatID,
		TypeID:    record.TypeID,
		TypeName:  s.typeName(ctx, record.TypeID),
		Quantity:  record.Quantity,
		UnitPrice: record.UnitPrice,
		At:        record.Date,
	}

	if record.IsBuy {
		n.Kind = model.NotifyBuy
	} else {
		n.Kind = model.NotifySale
		if res != nil && res.ProfitKnown() {
			n.ProfitKnown = true
			n.Profit = res.GrossProfit.Sub(s.saleFees(ctx, account, record))
		}
	}

	s.send(ctx, n)
}

// saleFees attributes journal fees to one sale: direct context match first,
// then a proportional split over the sales in the same window.
func (s *Scheduler) saleFees(ctx context.Context, account model.Account, sale model.TransactionRecord) decimal.Decimal {
	from := sale.Date.Add(-ledger.DefaultFeeWindow)
	to := sale.Date.Add(ledger.DefaultFeeWindow)

	journal, err := s.store.JournalInWindow(ctx, account.ID, from, to)
	if err != nil {
		s.logger.Errorf("can't load journal for fee attribution: %v", err)
		return decimal.Zero
	}
	// Entries referencing the sale directly can land outside the window.
	direct, err := s.store.FeeEntriesForContext(ctx, account.ID, sale.TransactionID)
	if err != nil {
		s.logger.Errorf("can't load fee entries for transaction %d: %v", sale.TransactionID, err)
		return decimal.Zero
	}
	seen := make(map[int64]struct{}, len(journal))
	for _, e := range journal {
		seen[e.RefID] = struct{}{}
	}
	for _, e := range direct {
		if _, ok := seen[e.RefID]; !ok {
			journal = append(journal, e)
		}
	}
	sales, err := s.store.TransactionsInWindow(ctx, account.ID, from, to)
	if err != nil {
		s.logger.Errorf("can't load sales for fee attribution: %v", err)
		return decimal.Zero
	}

	return ledger.AttributeFees(sale, sales, journal, ledger.DefaultFeeWindow)
}

func (s *Scheduler) pollJournal(ctx context.Context, account model.Account, _ lifecycle.Gate) error {
	var entries []model.JournalRecord
	cursor, err := s.fetch(ctx, account, model.StreamJournal, func(ctx context.Context, etag string) (esi.Page, error) {
		fetched, page, ferr := s.client.WalletJournal(ctx, account, 1, etag)
		entries = fetched
		return page, ferr
	})
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.RefID > cursor.LastProcessedID {
			cursor.LastProcessedID = e.RefID
		}
	}

	if !s.stillActive(ctx, account.ID) {
		return nil
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.InsertJournal(ctx, account.ID, entries); err != nil {
			return err
		}
		return tx.SaveCursor(ctx, cursor)
	})
}

func (s *Scheduler) pollContracts(ctx context.Context, account model.Account, gate lifecycle.Gate) error {
	var contracts []model.Contract
	cursor, err := s.fetch(ctx, account, model.StreamContracts, func(ctx context.Context, etag string) (esi.Page, error) {
		fetched, page, ferr := s.client.Contracts(ctx, account, etag)
		contracts = fetched
		return page, ferr
	})
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	if !s.stillActive(ctx, account.ID) {
		return nil
	}

	var fresh []model.Contract
	if err := s.store.WithTx(ctx, func(tx Store) error {
		inserted, txErr := tx.UpsertContracts(ctx, account.ID, contracts)
		if txErr != nil {
			return txErr
		}
		fresh = inserted

		current := make([]int64, 0, len(contracts))
		for _, c := range contracts {
			current = append(current, c.ContractID)
		}
		if err := tx.RemoveStaleContracts(ctx, account.ID, current); err != nil {
			return err
		}
		return tx.SaveCursor(ctx, cursor)
	}); err != nil {
		return err
	}

	for _, c := range fresh {
		if !gate.Allows(c.DateIssued) {
			continue
		}
		s.send(ctx, model.Notification{
			Kind:      model.NotifyContract,
			AccountID: account.ID,
			ChatID:    account.ChatID,
			Text:      fmt.Sprintf("New %s contract (%s), price %s ISK", c.Type, c.Status, c.Price.StringFixed(2)),
			At:        c.DateIssued,
		})
	}
	return nil
}

func (s *Scheduler) pollWallet(ctx context.Context, account model.Account, _ lifecycle.Gate) error {
	var balance decimal.Decimal
	cursor, err := s.fetch(ctx, account, model.StreamWallet, func(ctx context.Context, etag string) (esi.Page, error) {
		fetched, page, ferr := s.client.WalletBalance(ctx, account, etag)
		balance = fetched
		return page, ferr
	})
	if err != nil {
		if skippable(err) {
			return nil
		}
		return err
	}

	if !s.stillActive(ctx, account.ID) {
		return nil
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateWalletBalance(ctx, account.ID, balance); err != nil {
			return err
		}
		return tx.SaveCursor(ctx, cursor)
	})
}

// typeName resolves an item name through the local cache, falling back to
// the upstream bulk endpoint. Failures degrade to an empty name.
func (s *Scheduler) typeName(ctx context.Context, typeID int64) string {
	if cached, err := s.store.Names(ctx, []int64{typeID}); err == nil {
		if name, ok := cached[typeID]; ok {
			return name
		}
	}

	resolved, err := s.client.Names(ctx, []int64{typeID})
	if err != nil || resolved[typeID] == "" {
		return ""
	}
	if err := s.store.SaveNames(ctx, resolved, "inventory_type"); err != nil {
		s.logger.Debugf("can't cache name for type %d: %v", typeID, err)
	}
	return resolved[typeID]
}

func sortTransactions(records []model.TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date.Equal(records[j].Date) {
			return records[i].TransactionID < records[j].TransactionID
		}
		return records[i].Date.Before(records[j].Date)
	})
}

func maxTransactionID(records []model.TransactionRecord) int64 {
	var max int64
	for _, r := range records {
		if r.TransactionID > max {
			max = r.TransactionID
		}
	}
	return max
}

func oldestTransactionID(records []model.TransactionRecord) int64 {
	oldest := records[0].TransactionID
	for _, r := range records[1:] {
		if r.TransactionID < oldest {
			oldest = r.TransactionID
		}
	}
	return oldest
}
