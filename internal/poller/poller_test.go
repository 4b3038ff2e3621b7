package poller

import (
	"testing"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/stretchr/testify/require"
)

func tx(id int64, at time.Time) model.TransactionRecord {
	return model.TransactionRecord{TransactionID: id, Date: at}
}

func TestSortTransactionsByDateThenID(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.TransactionRecord{
		tx(5, base.Add(time.Minute)),
		tx(3, base),
		tx(2, base),
		tx(9, base.Add(-time.Minute)),
	}

	sortTransactions(records)

	order := make([]int64, 0, len(records))
	for _, r := range records {
		order = append(order, r.TransactionID)
	}
	require.Equal(t, []int64{9, 2, 3, 5}, order)
}

func TestTransactionIDBounds(t *testing.T) {
	now := time.Now()
	records := []model.TransactionRecord{tx(42, now), tx(7, now), tx(1001, now)}

	require.Equal(t, int64(1001), maxTransactionID(records))
	require.Equal(t, int64(7), oldestTransactionID(records))
}

func TestOverviewDue(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.True(t, overviewDue(time.Time{}, now), "never sent means due")
	require.True(t, overviewDue(now.Add(-25*time.Hour), now))
	require.False(t, overviewDue(now.Add(-23*time.Hour), now))
}

func TestMonthRolledOver(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.False(t, monthRolledOver(time.Time{}, now), "no previous overview means no closed month")
	require.False(t, monthRolledOver(now.Add(-24*time.Hour), now))
	require.True(t, monthRolledOver(time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), now))
	require.True(t, monthRolledOver(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC), now), "same month a year apart still rolls over")
}

func TestSkippableErrors(t *testing.T) {
	require.True(t, skippable(esi.ErrNotModified))
	require.True(t, skippable(esi.ErrAuthExpired))
	require.False(t, skippable(&esi.StatusError{Code: 500}))
}
