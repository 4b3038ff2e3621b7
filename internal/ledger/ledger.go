package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
)

// LotStore is the slice of persistence the reconciler mutates. Lots for one
// (account, item) pair must only ever be touched through a single Reconciler
// call at a time; the store backs this with row locks.
type LotStore interface {
	OpenLots(ctx context.Context, accountID, typeID int64) ([]model.Lot, error)
	InsertLot(ctx context.Context, lot model.Lot) (int64, error)
	UpdateLotQuantity(ctx context.Context, lotID, quantity int64) error
	RetireLot(ctx context.Context, lotID int64) error
	AvgAcquisitionPrice(ctx context.Context, accountID, typeID int64) (decimal.Decimal, bool, error)
}

// CostBasis reports how trustworthy a sale's cost-of-goods figure is.
type CostBasis int

const (
	// BasisKnown: the full sold quantity was matched against recorded lots.
	BasisKnown CostBasis = iota
	// BasisEstimated: part of the quantity predates lot history and was
	// costed at the item's average recorded acquisition price.
	BasisEstimated
	// BasisUnknown: no purchase history at all; the sale is excluded from
	// profit totals rather than silently costed at zero.
	BasisUnknown
)

type SaleResult struct {
	Revenue      decimal.Decimal
	COGS         decimal.Decimal
	GrossProfit  decimal.Decimal
	MatchedQty   int64
	ShortfallQty int64
	Basis        CostBasis
}

// ProfitKnown reports whether the sale may be counted in profit totals.
func (r SaleResult) ProfitKnown() bool {
	return r.Basis != BasisUnknown
}

type Reconciler struct {
	lots LotStore

	logger logger.Logger
}

func NewReconciler(lots LotStore, logger logger.Logger) *Reconciler {
	return &Reconciler{
		lots:   lots,
		logger: logger,
	}
}

// Apply consumes one transaction. Records must be fed in non-decreasing
// timestamp order per (account, item). Sells return a SaleResult; buys
// return nil.
func (r *Reconciler) Apply(ctx context.Context, tx model.TransactionRecord) (*SaleResult, error) {
	if tx.IsBuy {
		if err := r.ApplyBuy(ctx, tx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	res, err := r.ApplySell(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ApplyBuy opens a new lot for the bought quantity. Fees are tracked
// separately through the journal and never folded into unit cost.
func (r *Reconciler) ApplyBuy(ctx context.Context, tx model.TransactionRecord) error {
	if _, err := r.lots.InsertLot(ctx, model.Lot{
		AccountID:  tx.AccountID,
		TypeID:     tx.TypeID,
		Quantity:   tx.Quantity,
		UnitCost:   tx.UnitPrice,
		AcquiredAt: tx.Date,
		SourceTxID: tx.TransactionID,
	}); err != nil {
		return fmt.Errorf("can't open lot for buy %d: %w", tx.TransactionID, err)
	}
	return nil
}

// ApplySell consumes lots oldest-first and returns the realized figures.
func (r *Reconciler) ApplySell(ctx context.Context, tx model.TransactionRecord) (SaleResult, error) {
	lots, err := r.lots.OpenLots(ctx, tx.AccountID, tx.TypeID)
	if err != nil {
		return SaleResult{}, err
	}
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].AcquiredAt.Before(lots[j].AcquiredAt)
	})

	res := SaleResult{
		Revenue: tx.UnitPrice.Mul(decimal.NewFromInt(tx.Quantity)),
		Basis:   BasisKnown,
	}

	remaining := tx.Quantity
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}

		consumed := min(remaining, lot.Quantity)
		res.COGS = res.COGS.Add(lot.UnitCost.Mul(decimal.NewFromInt(consumed)))
		res.MatchedQty += consumed
		remaining -= consumed

		if consumed < lot.Quantity {
			if err := r.lots.UpdateLotQuantity(ctx, lot.ID, lot.Quantity-consumed); err != nil {
				return SaleResult{}, err
			}
		} else {
			if err := r.lots.RetireLot(ctx, lot.ID); err != nil {
				return SaleResult{}, err
			}
		}
	}

	if remaining > 0 {
		res.ShortfallQty = remaining
		avg, ok, err := r.lots.AvgAcquisitionPrice(ctx, tx.AccountID, tx.TypeID)
		if err != nil {
			return SaleResult{}, err
		}
		if ok {
			// History predates tracking but we know what the item tends to
			// cost: estimate rather than report a fake 100% margin.
			res.COGS = res.COGS.Add(avg.Mul(decimal.NewFromInt(remaining)))
			res.Basis = BasisEstimated
			r.logger.Debugf("sale %d: %d units costed at avg %s", tx.TransactionID, remaining, avg)
		} else {
			res.Basis = BasisUnknown
			r.logger.Debugf("sale %d: no purchase history for type %d, profit unknown", tx.TransactionID, tx.TypeID)
		}
	}

	if res.Basis != BasisUnknown {
		res.GrossProfit = res.Revenue.Sub(res.COGS)
	}

	return res, nil
}
