package snapshot

import (
	"testing"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func order(id int64, price float64, remain int64) model.OrderSnapshot {
	return model.OrderSnapshot{
		OrderID:      id,
		AccountID:    1,
		TypeID:       34,
		Price:        decimal.NewFromFloat(price),
		VolumeRemain: remain,
		VolumeTotal:  100,
	}
}

func TestDiffClassifies(t *testing.T) {
	previous := []model.OrderSnapshot{
		order(1, 10.00, 50), // unchanged
		order(2, 20.00, 40), // price drops
		order(3, 30.00, 30), // disappears
		order(4, 40.00, 20), // volume drops
	}
	current := []model.OrderSnapshot{
		order(1, 10.00, 50),
		order(2, 19.50, 40),
		order(4, 40.00, 10),
		order(5, 50.00, 100), // new
	}

	changes := Diff(previous, current)

	require.Len(t, changes.Added, 1)
	require.Equal(t, int64(5), changes.Added[0].OrderID)

	require.Len(t, changes.Changed, 2)
	ids := []int64{changes.Changed[0].Current.OrderID, changes.Changed[1].Current.OrderID}
	require.ElementsMatch(t, []int64{2, 4}, ids)

	require.Len(t, changes.Removed, 1)
	require.Equal(t, int64(3), changes.Removed[0].OrderID)
}

func TestDiffEmptySets(t *testing.T) {
	require.True(t, Diff(nil, nil).Empty())

	all := []model.OrderSnapshot{order(1, 10, 10)}
	require.Len(t, Diff(nil, all).Added, 1)
	require.Len(t, Diff(all, nil).Removed, 1)
}

func TestClassifyRemoval(t *testing.T) {
	cases := []struct {
		name     string
		historic model.HistoricOrder
		found    bool
		want     RemovalReason
	}{
		{"not in history yet", model.HistoricOrder{}, false, RemovalUnknown},
		{"cancelled", model.HistoricOrder{State: model.OrderStateCancelled, VolumeRemain: 10}, true, RemovalCancelled},
		{"expired with stock", model.HistoricOrder{State: model.OrderStateExpired, VolumeRemain: 5}, true, RemovalExpired},
		{"expired sold out", model.HistoricOrder{State: model.OrderStateExpired, VolumeRemain: 0}, true, RemovalFilled},
		{"filled", model.HistoricOrder{State: "closed", VolumeRemain: 0}, true, RemovalFilled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyRemoval(tc.historic, tc.found))
		})
	}
}
