package model

import "time"

// StreamKind enumerates the upstream data streams polled per account.
type StreamKind string

const (
	StreamOrders       StreamKind = "orders"
	StreamOrderHistory StreamKind = "order_history"
	StreamTransactions StreamKind = "transactions"
	StreamJournal      StreamKind = "journal"
	StreamContracts    StreamKind = "contracts"
	StreamWallet       StreamKind = "wallet"
	// StreamOverview is not fetched upstream; its cursor row tracks when the
	// daily summary was last sent.
	StreamOverview StreamKind = "overview"
)

// StreamCursor is the sync state for one (account, stream) pair.
// LastProcessedID never decreases.
type StreamCursor struct {
	AccountID       int64      `db:"account_id"`
	Stream          StreamKind `db:"stream"`
	ETag            string     `db:"etag"`
	Body            []byte     `db:"body"`
	ExpiresAt       time.Time  `db:"expires_at"`
	LastFetchedAt   time.Time  `db:"last_fetched_at"`
	LastProcessedID int64      `db:"last_processed_id"`
	Suspended       bool       `db:"suspended"`
	AlertSent       bool       `db:"alert_sent"`
}

// BackfillPhase transitions one way only: new, fast_synced, backfilling, complete.
type BackfillPhase string

const (
	BackfillNew         BackfillPhase = "new"
	BackfillFastSynced  BackfillPhase = "fast_synced"
	BackfillBackfilling BackfillPhase = "backfilling"
	BackfillComplete    BackfillPhase = "complete"
)

// BackfillState is the per-account history sync progress. BeforeID is the
// cursor for the next older transaction page; nil means start from the latest.
type BackfillState struct {
	AccountID   int64         `db:"account_id"`
	Phase       BackfillPhase `db:"phase"`
	BeforeID    *int64        `db:"before_id"`
	CompletedAt *time.Time    `db:"completed_at"`
}

func (p BackfillPhase) CanTransitionTo(next BackfillPhase) bool {
	order := map[BackfillPhase]int{
		BackfillNew:         0,
		BackfillFastSynced:  1,
		BackfillBackfilling: 2,
		BackfillComplete:    3,
	}
	a, ok := order[p]
	b, ok2 := order[next]
	return ok && ok2 && b == a+1
}
