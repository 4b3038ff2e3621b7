package poller

import (
	"context"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/ledger"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bizkut/EveSalesNotification/internal/notify"
)

// maybeSendOverview emits the per-account daily summary at most once per
// 24 hours. The last-sent time rides on an overview cursor row so restarts
// don't re-send.
func (s *Scheduler) maybeSendOverview(ctx context.Context, log logger.Logger, account model.Account, now time.Time) {
	cursor, err := s.store.Cursor(ctx, account.ID, model.StreamOverview)
	if err != nil {
		log.Errorf("can't load overview cursor for account %d: %v", account.ID, err)
		return
	}
	lastSent := cursor.LastFetchedAt
	if !overviewDue(lastSent, now) {
		return
	}

	from, to := ledger.Last24h(now)
	// Full history: sales inside the window may consume lots bought long
	// before it.
	history, err := s.store.AllTransactions(ctx, account.ID)
	if err != nil {
		log.Errorf("can't load transactions for overview: %v", err)
		return
	}
	journal, err := s.store.JournalInWindow(ctx, account.ID, from, to)
	if err != nil {
		log.Errorf("can't load journal for overview: %v", err)
		return
	}

	totals := ledger.Summarize(history, journal, from, to)
	if balance, err := s.store.WalletBalance(ctx, account.ID); err == nil {
		totals.Balance = balance
	}

	if err := s.sink.Send(ctx, model.Notification{
		Kind:      model.NotifyDailyOverview,
		AccountID: account.ID,
		ChatID:    account.ChatID,
		Text:      notify.RenderOverview(account.CharacterName, totals),
		At:        now,
	}); err != nil {
		log.Errorf("can't send overview for account %d: %v", account.ID, err)
		return
	}

	if monthRolledOver(lastSent, now) {
		s.sendMonthlySummary(ctx, log, account, history, lastSent, now)
	}

	cursor.LastFetchedAt = now
	if err := s.store.SaveCursor(ctx, cursor); err != nil {
		log.Errorf("can't save overview cursor for account %d: %v", account.ID, err)
	}
}

// sendMonthlySummary closes out the month the previous overview was sent in.
func (s *Scheduler) sendMonthlySummary(ctx context.Context, log logger.Logger, account model.Account, history []model.TransactionRecord, lastSent, now time.Time) {
	from, to := ledger.CalendarMonth(lastSent)
	journal, err := s.store.JournalInWindow(ctx, account.ID, from, to)
	if err != nil {
		log.Errorf("can't load journal for monthly summary: %v", err)
		return
	}

	totals := ledger.Summarize(history, journal, from, to)
	if err := s.sink.Send(ctx, model.Notification{
		Kind:      model.NotifyMonthlyOverview,
		AccountID: account.ID,
		ChatID:    account.ChatID,
		Text:      notify.RenderMonthlyOverview(account.CharacterName, lastSent, totals),
		At:        now,
	}); err != nil {
		log.Errorf("can't send monthly summary for account %d: %v", account.ID, err)
	}
}

func overviewDue(lastSent, now time.Time) bool {
	return now.Sub(lastSent) >= 24*time.Hour
}

// monthRolledOver reports whether now sits in a later calendar month than
// the previous overview. A zero lastSent means there is no closed month to
// report yet.
func monthRolledOver(lastSent, now time.Time) bool {
	if lastSent.IsZero() {
		return false
	}
	return lastSent.Year() != now.Year() || lastSent.Month() != now.Month()
}
