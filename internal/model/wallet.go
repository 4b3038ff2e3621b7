package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is one market fill from the wallet transaction stream.
// TransactionID is unique per account and immutable once stored.
type TransactionRecord struct {
	TransactionID int64           `db:"transaction_id"`
	AccountID     int64           `db:"account_id"`
	IsBuy         bool            `db:"is_buy"`
	TypeID        int64           `db:"type_id"`
	Quantity      int64           `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	LocationID    int64           `db:"location_id"`
	ClientID      int64           `db:"client_id"`
	JournalRefID  int64           `db:"journal_ref_id"`
	Date          time.Time       `db:"date"`
}

// JournalRecord is one wallet journal entry (taxes, broker fees, transfers).
type JournalRecord struct {
	RefID       int64           `db:"ref_id"`
	AccountID   int64           `db:"account_id"`
	RefType     string          `db:"ref_type"`
	Amount      decimal.Decimal `db:"amount"`
	ContextID   *int64          `db:"context_id"`
	Description string          `db:"description"`
	Date        time.Time       `db:"date"`
}

// Fee-bearing ref types used for sale attribution.
const (
	RefTypeTransactionTax = "transaction_tax"
	RefTypeBrokersFee     = "brokers_fee"
)

func (j JournalRecord) IsFee() bool {
	return j.RefType == RefTypeTransactionTax || j.RefType == RefTypeBrokersFee
}

// Lot is an open purchase batch awaiting sale. Quantity only decreases;
// a lot that reaches zero is retired and never reused.
type Lot struct {
	ID           int64           `db:"id"`
	AccountID    int64           `db:"account_id"`
	TypeID       int64           `db:"type_id"`
	Quantity     int64           `db:"quantity"`
	UnitCost     decimal.Decimal `db:"unit_cost"`
	AcquiredAt   time.Time       `db:"acquired_at"`
	SourceTxID   int64           `db:"source_tx_id"`
}
