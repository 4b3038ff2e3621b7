package ledger

import (
	"sort"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
)

// Replay runs the FIFO engine over a full transaction history in memory and
// returns the sale results keyed by transaction id. It reads nothing but its
// arguments, so summaries derived from it are reproducible: replaying the
// same stored history always yields the same figures.
func Replay(history []model.TransactionRecord) map[int64]SaleResult {
	records := make([]model.TransactionRecord, len(history))
	copy(records, history)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date.Equal(records[j].Date) {
			return records[i].TransactionID < records[j].TransactionID
		}
		return records[i].Date.Before(records[j].Date)
	})

	type memLot struct {
		qty  int64
		cost decimal.Decimal
	}
	books := make(map[int64][]memLot)
	boughtQty := make(map[int64]int64)
	boughtValue := make(map[int64]decimal.Decimal)

	results := make(map[int64]SaleResult)

	for _, tx := range records {
		if tx.IsBuy {
			books[tx.TypeID] = append(books[tx.TypeID], memLot{qty: tx.Quantity, cost: tx.UnitPrice})
			boughtQty[tx.TypeID] += tx.Quantity
			boughtValue[tx.TypeID] = boughtValue[tx.TypeID].Add(tx.UnitPrice.Mul(decimal.NewFromInt(tx.Quantity)))
			continue
		}

		res := SaleResult{
			Revenue: tx.UnitPrice.Mul(decimal.NewFromInt(tx.Quantity)),
			Basis:   BasisKnown,
		}

		remaining := tx.Quantity
		book := books[tx.TypeID]
		for len(book) > 0 && remaining > 0 {
			lot := &book[0]
			consumed := min(remaining, lot.qty)
			res.COGS = res.COGS.Add(lot.cost.Mul(decimal.NewFromInt(consumed)))
			res.MatchedQty += consumed
			remaining -= consumed
			lot.qty -= consumed
			if lot.qty == 0 {
				book = book[1:]
			}
		}
		books[tx.TypeID] = book

		if remaining > 0 {
			res.ShortfallQty = remaining
			if boughtQty[tx.TypeID] > 0 {
				avg := boughtValue[tx.TypeID].Div(decimal.NewFromInt(boughtQty[tx.TypeID]))
				res.COGS = res.COGS.Add(avg.Mul(decimal.NewFromInt(remaining)))
				res.Basis = BasisEstimated
			} else {
				res.Basis = BasisUnknown
			}
		}

		if res.Basis != BasisUnknown {
			res.GrossProfit = res.Revenue.Sub(res.COGS)
		}
		results[tx.TransactionID] = res
	}

	return results
}

// Summarize reduces stored history to window totals. Records outside
// [from, to) are used for lot matching but excluded from the totals.
func Summarize(history []model.TransactionRecord, journal []model.JournalRecord, from, to time.Time) model.OverviewTotals {
	profits := Replay(history)

	var totals model.OverviewTotals
	totals.Balance = decimal.Zero
	totals.TotalSales = decimal.Zero
	totals.TotalBuys = decimal.Zero
	totals.GrossProfit = decimal.Zero
	totals.Fees = decimal.Zero

	for _, tx := range history {
		if tx.Date.Before(from) || !tx.Date.Before(to) {
			continue
		}
		value := tx.UnitPrice.Mul(decimal.NewFromInt(tx.Quantity))
		if tx.IsBuy {
			totals.TotalBuys = totals.TotalBuys.Add(value)
			totals.BuysCount++
			continue
		}

		totals.TotalSales = totals.TotalSales.Add(value)
		totals.SalesCount++

		res := profits[tx.TransactionID]
		if !res.ProfitKnown() {
			totals.UnknownSales++
			continue
		}
		totals.GrossProfit = totals.GrossProfit.Add(res.GrossProfit)
	}

	for _, entry := range journal {
		if entry.Date.Before(from) || !entry.Date.Before(to) {
			continue
		}
		if entry.IsFee() {
			totals.Fees = totals.Fees.Add(entry.Amount.Abs())
		}
	}

	return totals
}

// Last24h returns the [from, to) bounds of the trailing day.
func Last24h(now time.Time) (time.Time, time.Time) {
	return now.Add(-24 * time.Hour), now
}

// CalendarMonth returns the bounds of the month containing now.
func CalendarMonth(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
