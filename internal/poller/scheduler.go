package poller

import (
	"context"
	"sync"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/config"
	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/ledger"
	"github.com/bizkut/EveSalesNotification/internal/lifecycle"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bizkut/EveSalesNotification/internal/notify"
	"github.com/bizkut/EveSalesNotification/internal/retry"
	"github.com/bizkut/EveSalesNotification/internal/store"
	"github.com/bizkut/EveSalesNotification/internal/undercut"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the slice of the persistence layer the scheduler uses. WithTx
// yields a transaction-scoped view of the same interface.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	ActiveAccounts(ctx context.Context) ([]model.Account, error)
	Account(ctx context.Context, id int64) (model.Account, error)
	BackfillState(ctx context.Context, accountID int64) (model.BackfillState, error)
	BackfillingAccounts(ctx context.Context) ([]int64, error)

	Cursor(ctx context.Context, accountID int64, stream model.StreamKind) (model.StreamCursor, error)
	SaveCursor(ctx context.Context, c model.StreamCursor) error

	InsertTransactions(ctx context.Context, accountID int64, records []model.TransactionRecord) ([]model.TransactionRecord, error)
	AllTransactions(ctx context.Context, accountID int64) ([]model.TransactionRecord, error)
	TransactionsInWindow(ctx context.Context, accountID int64, from, to time.Time) ([]model.TransactionRecord, error)
	InsertJournal(ctx context.Context, accountID int64, entries []model.JournalRecord) ([]model.JournalRecord, error)
	JournalInWindow(ctx context.Context, accountID int64, from, to time.Time) ([]model.JournalRecord, error)
	FeeEntriesForContext(ctx context.Context, accountID, contextID int64) ([]model.JournalRecord, error)

	OrderSnapshots(ctx context.Context, accountID int64) ([]model.OrderSnapshot, error)
	ReplaceOrderSnapshots(ctx context.Context, accountID int64, snaps []model.OrderSnapshot) error
	UpsertHistoricOrders(ctx context.Context, accountID int64, orders []model.HistoricOrder) error
	HistoricOrder(ctx context.Context, accountID, orderID int64) (model.HistoricOrder, bool, error)

	UndercutFlags(ctx context.Context, accountID int64) (map[int64]model.UndercutFlag, error)
	SaveUndercutFlags(ctx context.Context, accountID int64, flags []model.UndercutFlag) error
	RemoveStaleUndercutFlags(ctx context.Context, accountID int64, openOrderIDs []int64) error

	UpsertContracts(ctx context.Context, accountID int64, contracts []model.Contract) ([]model.Contract, error)
	RemoveStaleContracts(ctx context.Context, accountID int64, currentIDs []int64) error

	UpdateWalletBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	WalletBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)

	Names(ctx context.Context, ids []int64) (map[int64]string, error)
	SaveNames(ctx context.Context, names map[int64]string, category string) error

	ledger.LotStore
}

// Client is the slice of the upstream client the scheduler uses.
type Client interface {
	MarketOrders(ctx context.Context, account model.Account, etag string) ([]model.OrderSnapshot, esi.Page, error)
	OrderHistory(ctx context.Context, account model.Account, etag string) ([]model.HistoricOrder, esi.Page, error)
	WalletTransactions(ctx context.Context, account model.Account, beforeID int64, etag string) ([]model.TransactionRecord, esi.Page, error)
	WalletJournal(ctx context.Context, account model.Account, pageNum int, etag string) ([]model.JournalRecord, esi.Page, error)
	WalletBalance(ctx context.Context, account model.Account, etag string) (decimal.Decimal, esi.Page, error)
	Contracts(ctx context.Context, account model.Account, etag string) ([]model.Contract, esi.Page, error)
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

// sqlStore adapts the sqlx-backed store; the only mismatch with the
// scheduler's interface is the transaction callback type.
type sqlStore struct {
	*store.Store
}

func (s sqlStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.WithTx(ctx, func(tx *store.Store) error {
		return fn(sqlStore{tx})
	})
}

// Scheduler drives the polling rounds: every interval it fans the active
// accounts out over a bounded worker pool, while a background loop walks
// transaction history for accounts still backfilling.
type Scheduler struct {
	store     Store
	client    Client
	lifecycle *lifecycle.Manager
	undercut  *undercut.Evaluator
	distances *undercut.Distances
	sink      notify.Sink
	retry     *retry.Policy
	cfg       config.PollerConfig

	logger logger.Logger

	// per-account mutexes serialize reconciliation; two rounds must never
	// mutate the same account's lots concurrently.
	mu       sync.Mutex
	accounts map[int64]*sync.Mutex
}

func NewScheduler(
	st *store.Store,
	client *esi.Client,
	lm *lifecycle.Manager,
	eval *undercut.Evaluator,
	distances *undercut.Distances,
	sink notify.Sink,
	cfg config.PollerConfig,
	logger logger.Logger,
) *Scheduler {
	return &Scheduler{
		store:     sqlStore{st},
		client:    client,
		lifecycle: lm,
		undercut:  eval,
		distances: distances,
		sink:      sink,
		retry: retry.New(
			retry.WithMaxAttempts(cfg.RetryAttempts),
			retry.WithBaseDelay(cfg.RetryBaseDelay),
			retry.WithMaxDelay(cfg.RetryMaxDelay),
		),
		cfg:      cfg,
		logger:   logger,
		accounts: make(map[int64]*sync.Mutex),
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	go s.runBackfill(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.round(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	log := s.logger.With("round", uuid.NewString()[:8])

	if n, err := s.lifecycle.Reap(ctx, time.Now().UTC()); err != nil {
		log.Errorf("can't reap expired accounts: %v", err)
	} else if n > 0 {
		log.Infof("reaped %d expired accounts", n)
	}

	accounts, err := s.store.ActiveAccounts(ctx)
	if err != nil {
		log.Errorf("can't list active accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	jobs := make(chan model.Account)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				s.pollAccount(ctx, log, account)
			}
		}()
	}

	for _, account := range accounts {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- account:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Scheduler) pollAccount(ctx context.Context, log logger.Logger, account model.Account) {
	mu := s.accountMu(account.ID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	gate, err := s.lifecycle.NotificationGate(ctx, account)
	if err != nil {
		log.Errorf("can't check notification gate for account %d: %v", account.ID, err)
		gate = lifecycle.Gate{}
	}

	streams := []struct {
		kind model.StreamKind
		poll func(context.Context, model.Account, lifecycle.Gate) error
	}{
		{model.StreamOrderHistory, s.pollOrderHistory},
		{model.StreamOrders, s.pollOrders},
		{model.StreamTransactions, s.pollTransactions},
		{model.StreamJournal, s.pollJournal},
		{model.StreamContracts, s.pollContracts},
		{model.StreamWallet, s.pollWallet},
	}
	for _, stream := range streams {
		streamCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
		err := stream.poll(streamCtx, account, gate)
		cancel()
		if err != nil {
			log.Errorf("account %d stream %s: %v", account.ID, stream.kind, err)
		}
	}

	if gate.Allows(now) {
		s.maybeSendOverview(ctx, log, account, now)
	}
}

func (s *Scheduler) accountMu(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.accounts[id]
	if !ok {
		mu = &sync.Mutex{}
		s.accounts[id] = mu
	}
	return mu
}

// stillActive re-checks the account right before persisting fetched data, so
// results in flight when a deletion request lands are discarded.
func (s *Scheduler) stillActive(ctx context.Context, accountID int64) bool {
	current, err := s.store.Account(ctx, accountID)
	if err != nil {
		s.logger.Errorf("can't re-check account %d: %v", accountID, err)
		return false
	}
	return current.Status == model.AccountActive
}

func (s *Scheduler) send(ctx context.Context, n model.Notification) {
	if err := s.sink.Send(ctx, n); err != nil {
		// Best effort: reconciliation already committed, delivery failures
		// must not unwind it.
		s.logger.Errorf("can't deliver %s notification for account %d: %v", n.Kind, n.AccountID, err)
	}
}
