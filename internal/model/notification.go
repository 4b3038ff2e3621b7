package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotifySale            NotificationKind = "sale"
	NotifyBuy             NotificationKind = "buy"
	NotifyOrderCancelled  NotificationKind = "order_cancelled"
	NotifyOrderExpired    NotificationKind = "order_expired"
	NotifyUndercut        NotificationKind = "undercut"
	NotifyContract        NotificationKind = "contract"
	NotifyAuthExpired     NotificationKind = "auth_expired"
	NotifyDailyOverview   NotificationKind = "daily_overview"
	NotifyMonthlyOverview NotificationKind = "monthly_overview"
)

// Notification is the structured payload handed to the sink. Rendering is
// the sink's problem.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	AccountID int64            `json:"account_id"`
	ChatID    int64            `json:"chat_id"`
	TypeID    int64            `json:"type_id,omitempty"`
	TypeName  string           `json:"type_name,omitempty"`
	Quantity  int64            `json:"quantity,omitempty"`
	UnitPrice decimal.Decimal  `json:"unit_price,omitempty"`
	Profit    decimal.Decimal  `json:"profit,omitempty"`
	// ProfitKnown is false when the sale predates known purchase history.
	ProfitKnown     bool            `json:"profit_known,omitempty"`
	CompetitorPrice decimal.Decimal `json:"competitor_price,omitempty"`
	Jumps           int             `json:"jumps,omitempty"`
	Text            string          `json:"text,omitempty"`
	At              time.Time       `json:"at"`
}

// OverviewTotals is the daily per-account summary over the last 24 hours.
type OverviewTotals struct {
	Balance     decimal.Decimal
	TotalSales  decimal.Decimal
	TotalBuys   decimal.Decimal
	GrossProfit decimal.Decimal
	Fees        decimal.Decimal
	SalesCount  int
	BuysCount   int
	// UnknownSales counts sales excluded from profit for lack of lot history.
	UnknownSales int
}
