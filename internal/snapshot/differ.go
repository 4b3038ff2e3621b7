package snapshot

import "github.com/bizkut/EveSalesNotification/internal/model"

// OrderChange pairs the prior and current state of a mutated order.
type OrderChange struct {
	Previous model.OrderSnapshot
	Current  model.OrderSnapshot
}

type Changes struct {
	Added   []model.OrderSnapshot
	Changed []OrderChange
	Removed []model.OrderSnapshot
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// Diff compares a fresh order set against the stored snapshot, keyed by
// order id. Changed means same id with a different price or remaining
// volume. The caller replaces the stored snapshot in the same transaction
// so the next diff runs against the true prior state.
func Diff(previous, current []model.OrderSnapshot) Changes {
	prevByID := make(map[int64]model.OrderSnapshot, len(previous))
	for _, o := range previous {
		prevByID[o.OrderID] = o
	}

	var changes Changes
	currentIDs := make(map[int64]struct{}, len(current))

	for _, o := range current {
		currentIDs[o.OrderID] = struct{}{}
		prev, ok := prevByID[o.OrderID]
		if !ok {
			changes.Added = append(changes.Added, o)
			continue
		}
		if mutated(prev, o) {
			changes.Changed = append(changes.Changed, OrderChange{Previous: prev, Current: o})
		}
	}

	for _, o := range previous {
		if _, ok := currentIDs[o.OrderID]; !ok {
			changes.Removed = append(changes.Removed, o)
		}
	}

	return changes
}

func mutated(prev, curr model.OrderSnapshot) bool {
	return !prev.Price.Equal(curr.Price) || prev.VolumeRemain != curr.VolumeRemain
}

// RemovalReason classifies why an order left the snapshot.
type RemovalReason int

const (
	RemovalFilled RemovalReason = iota
	RemovalCancelled
	RemovalExpired
	// RemovalUnknown: the order history stream has not caught up yet.
	RemovalUnknown
)

// ClassifyRemoval tells cancellations and expirations apart using the
// order-history stream; a live snapshot alone cannot make the distinction.
func ClassifyRemoval(historic model.HistoricOrder, found bool) RemovalReason {
	if !found {
		return RemovalUnknown
	}
	switch historic.State {
	case model.OrderStateCancelled:
		return RemovalCancelled
	case model.OrderStateExpired:
		if historic.VolumeRemain == 0 {
			// Sold out on its last tick; the fills arrive via transactions.
			return RemovalFilled
		}
		return RemovalExpired
	default:
		return RemovalFilled
	}
}
