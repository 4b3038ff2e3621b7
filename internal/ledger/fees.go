package ledger

import (
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultFeeWindow bounds the time-window fallback when a fee entry carries
// no transaction reference.
const DefaultFeeWindow = 5 * time.Minute

// AttributeFees computes the fee total attributable to one sale.
//
// Entries referencing the sale directly (context id equal to the sale's
// journal ref or transaction id) are attributed in full. Fee entries with no
// reference are matched by time window and split across the window's sales
// proportionally to revenue. The window heuristic is approximate by nature;
// it is a documented policy, not an inference.
func AttributeFees(sale model.TransactionRecord, windowSales []model.TransactionRecord, journal []model.JournalRecord, window time.Duration) decimal.Decimal {
	total := decimal.Zero

	saleRevenue := sale.UnitPrice.Mul(decimal.NewFromInt(sale.Quantity))

	for _, entry := range journal {
		if !entry.IsFee() {
			continue
		}

		if entry.ContextID != nil {
			if *entry.ContextID == sale.JournalRefID || *entry.ContextID == sale.TransactionID {
				total = total.Add(entry.Amount.Abs())
			}
			continue
		}

		// No reference: correlate by time window.
		if absDuration(entry.Date.Sub(sale.Date)) > window {
			continue
		}

		windowRevenue := decimal.Zero
		for _, tx := range windowSales {
			if tx.IsBuy || absDuration(entry.Date.Sub(tx.Date)) > window {
				continue
			}
			windowRevenue = windowRevenue.Add(tx.UnitPrice.Mul(decimal.NewFromInt(tx.Quantity)))
		}
		if windowRevenue.IsZero() {
			continue
		}

		share := saleRevenue.Div(windowRevenue)
		total = total.Add(entry.Amount.Abs().Mul(share))
	}

	return total
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
