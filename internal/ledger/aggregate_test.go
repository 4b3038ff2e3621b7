package ledger

import (
	"testing"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestReplayMatchesFIFOScenario(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history := []model.TransactionRecord{
		buy(1, 34, 1000, 10.00, t0),
		buy(2, 34, 500, 12.00, t0.Add(time.Hour)),
		sell(3, 34, 1200, 15.00, t0.Add(2*time.Hour)),
	}

	results := Replay(history)
	res, ok := results[3]
	require.True(t, ok)
	require.True(t, res.COGS.Equal(decimal.NewFromInt(12400)))
	require.True(t, res.GrossProfit.Equal(decimal.NewFromInt(5600)))
}

func TestReplayIsIdempotent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history := []model.TransactionRecord{
		buy(1, 34, 100, 10.00, t0),
		sell(2, 34, 60, 12.00, t0.Add(time.Hour)),
		buy(3, 34, 50, 11.00, t0.Add(2*time.Hour)),
		sell(4, 34, 80, 13.00, t0.Add(3*time.Hour)),
		sell(5, 99, 10, 5.00, t0.Add(4*time.Hour)), // no history
	}

	first := Replay(history)
	second := Replay(history)

	require.Equal(t, len(first), len(second))
	for id, res := range first {
		other := second[id]
		require.True(t, res.COGS.Equal(other.COGS), "COGS differs for %d", id)
		require.True(t, res.GrossProfit.Equal(other.GrossProfit), "profit differs for %d", id)
		require.Equal(t, res.Basis, other.Basis)
	}
}

func TestReplayUnorderedInputSortedByDate(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Sell arrives before the buy in slice order but after it in time.
	history := []model.TransactionRecord{
		sell(2, 34, 10, 20.00, t0.Add(time.Hour)),
		buy(1, 34, 10, 15.00, t0),
	}

	res := Replay(history)[2]
	require.Equal(t, BasisKnown, res.Basis)
	require.True(t, res.COGS.Equal(decimal.NewFromInt(150)))
}

func TestSummarizeWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	history := []model.TransactionRecord{
		buy(1, 34, 100, 10.00, t0.Add(-48*time.Hour)), // outside window, still feeds lots
		sell(2, 34, 50, 12.00, t0.Add(-2*time.Hour)),
		buy(3, 34, 10, 9.00, t0.Add(-time.Hour)),
		sell(4, 99, 5, 20.00, t0.Add(-time.Hour)), // unknown basis
	}
	journal := []model.JournalRecord{
		{RefID: 1, AccountID: 1, RefType: model.RefTypeTransactionTax, Amount: decimal.NewFromFloat(-12.00), Date: t0.Add(-2 * time.Hour)},
		{RefID: 2, AccountID: 1, RefType: "insurance", Amount: decimal.NewFromFloat(40.00), Date: t0.Add(-time.Hour)},
	}

	from, to := Last24h(t0)
	totals := Summarize(history, journal, from, to)

	require.Equal(t, 2, totals.SalesCount)
	require.Equal(t, 1, totals.BuysCount)
	require.Equal(t, 1, totals.UnknownSales)
	require.True(t, totals.TotalSales.Equal(decimal.NewFromInt(700)), "sales = %s", totals.TotalSales)
	require.True(t, totals.TotalBuys.Equal(decimal.NewFromInt(90)))
	// Known profit only: 50*(12-10) = 100.
	require.True(t, totals.GrossProfit.Equal(decimal.NewFromInt(100)), "profit = %s", totals.GrossProfit)
	require.True(t, totals.Fees.Equal(decimal.NewFromInt(12)))
}

func TestCalendarMonthBounds(t *testing.T) {
	now := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	from, to := CalendarMonth(now)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), to)
}
