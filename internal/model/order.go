package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSnapshot is the current state of one open market order. The snapshot
// table for an account is replaced wholesale on each successful full fetch.
type OrderSnapshot struct {
	OrderID      int64           `db:"order_id"`
	AccountID    int64           `db:"account_id"`
	IsBuyOrder   bool            `db:"is_buy_order"`
	TypeID       int64           `db:"type_id"`
	Price        decimal.Decimal `db:"price"`
	VolumeRemain int64           `db:"volume_remain"`
	VolumeTotal  int64           `db:"volume_total"`
	LocationID   int64           `db:"location_id"`
	RegionID     int64           `db:"region_id"`
	Duration     int             `db:"duration"`
	Issued       time.Time       `db:"issued"`
}

// HistoricOrder is a closed order from the order-history stream, used to
// tell cancellations apart from expirations and fills.
type HistoricOrder struct {
	OrderID      int64  `db:"order_id"`
	AccountID    int64  `db:"account_id"`
	State        string `db:"state"`
	VolumeRemain int64  `db:"volume_remain"`
}

const (
	OrderStateCancelled = "cancelled"
	OrderStateExpired   = "expired"
)

// UndercutFlag tracks per-order competitiveness. A notification fires only
// on a false-to-true transition of Undercut.
type UndercutFlag struct {
	OrderID              int64            `db:"order_id"`
	AccountID            int64            `db:"account_id"`
	Undercut             bool             `db:"undercut"`
	CompetitorPrice      *decimal.Decimal `db:"competitor_price"`
	CompetitorLocationID *int64           `db:"competitor_location_id"`
}

// Contract is one character contract, tracked so newly observed ids can be
// announced exactly once.
type Contract struct {
	ContractID int64           `db:"contract_id"`
	AccountID  int64           `db:"account_id"`
	Type       string          `db:"type"`
	Status     string          `db:"status"`
	Price      decimal.Decimal `db:"price"`
	Reward     decimal.Decimal `db:"reward"`
	IssuerID   int64           `db:"issuer_id"`
	DateIssued time.Time       `db:"date_issued"`
}
