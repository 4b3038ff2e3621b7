package undercut

import (
	"context"
	"fmt"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bizkut/EveSalesNotification/internal/store"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// MarketSource is the slice of the upstream client the evaluator needs.
type MarketSource interface {
	RegionOrders(ctx context.Context, regionID, typeID int64) ([]esi.RegionOrder, error)
	StructureOrders(ctx context.Context, account model.Account, structureID int64) ([]esi.RegionOrder, error)
	Station(ctx context.Context, stationID int64) (esi.StationInfo, error)
	System(ctx context.Context, systemID int64) (esi.SystemInfo, error)
	Constellation(ctx context.Context, constellationID int64) (esi.ConstellationInfo, error)
	Structure(ctx context.Context, account model.Account, structureID int64) (esi.StructureInfo, error)
}

// ReferenceStore caches the near-static location hierarchy.
type ReferenceStore interface {
	Location(ctx context.Context, locationID int64) (store.Location, bool, error)
	SaveLocation(ctx context.Context, locationID int64, loc store.Location) error
}

type Evaluator struct {
	market MarketSource
	ref    ReferenceStore
	// memory cache in front of the reference table; the hierarchy is
	// effectively immutable.
	cache *gocache.Cache

	logger logger.Logger
}

func NewEvaluator(market MarketSource, ref ReferenceStore, logger logger.Logger) *Evaluator {
	return &Evaluator{
		market: market,
		ref:    ref,
		cache:  gocache.New(24*time.Hour, time.Hour),
		logger: logger,
	}
}

// ResolveRegion maps a station or structure to its market region. Stations
// resolve through the public station > system > constellation > region
// chain; player structures resolve through their own metadata.
func (e *Evaluator) ResolveRegion(ctx context.Context, account model.Account, locationID int64) (store.Location, error) {
	key := fmt.Sprintf("location:%d", locationID)
	if v, ok := e.cache.Get(key); ok {
		return v.(store.Location), nil
	}

	if loc, ok, err := e.ref.Location(ctx, locationID); err != nil {
		return store.Location{}, err
	} else if ok {
		e.cache.SetDefault(key, loc)
		return loc, nil
	}

	var systemID int64
	if locationID >= esi.StructureIDThreshold {
		info, err := e.market.Structure(ctx, account, locationID)
		if err != nil {
			return store.Location{}, fmt.Errorf("can't resolve structure %d: %w", locationID, err)
		}
		systemID = info.SolarSystemID
	} else {
		info, err := e.market.Station(ctx, locationID)
		if err != nil {
			return store.Location{}, fmt.Errorf("can't resolve station %d: %w", locationID, err)
		}
		systemID = info.SystemID
	}

	system, err := e.market.System(ctx, systemID)
	if err != nil {
		return store.Location{}, fmt.Errorf("can't resolve system %d: %w", systemID, err)
	}
	constellation, err := e.market.Constellation(ctx, system.ConstellationID)
	if err != nil {
		return store.Location{}, fmt.Errorf("can't resolve constellation %d: %w", system.ConstellationID, err)
	}

	loc := store.Location{SystemID: systemID, RegionID: constellation.RegionID}
	if err := e.ref.SaveLocation(ctx, locationID, loc); err != nil {
		return store.Location{}, err
	}
	e.logger.Debugf("resolved location %d to system %d region %d", locationID, loc.SystemID, loc.RegionID)
	e.cache.SetDefault(key, loc)
	return loc, nil
}

// Result is the outcome of one competitiveness check.
type Result struct {
	Flag model.UndercutFlag
	// Notify is set only on a competitive-to-undercut transition.
	Notify          bool
	CompetitorPrice decimal.Decimal
	CompetitorJumps int
}

// bookCache holds the order books fetched during one evaluation pass, so N
// own orders for the same (region, item) pair cost one upstream request.
type bookCache struct {
	regions    map[bookKey][]esi.RegionOrder
	structures map[int64][]esi.RegionOrder
}

type bookKey struct {
	regionID int64
	typeID   int64
}

func newBookCache() *bookCache {
	return &bookCache{
		regions:    make(map[bookKey][]esi.RegionOrder),
		structures: make(map[int64][]esi.RegionOrder),
	}
}

// EvaluateAll checks every order in one pass over shared order books.
// Orders whose check failed are absent from the result; callers keep their
// prior flag.
func (e *Evaluator) EvaluateAll(ctx context.Context, account model.Account, orders []model.OrderSnapshot, prior map[int64]model.UndercutFlag) map[int64]Result {
	books := newBookCache()
	results := make(map[int64]Result, len(orders))
	for _, order := range orders {
		res, err := e.evaluate(ctx, account, order, orders, prior, books)
		if err != nil {
			e.logger.Errorf("undercut check for order %d: %v", order.OrderID, err)
			continue
		}
		results[order.OrderID] = res
	}
	return results
}

// Evaluate finds the best competing price for one open order and decides
// whether a notification is due. prior holds the stored flags for the
// account; an order without a flag is treated as previously competitive, so
// the first observed undercut of a new order does notify.
func (e *Evaluator) Evaluate(ctx context.Context, account model.Account, order model.OrderSnapshot, ownOrders []model.OrderSnapshot, prior map[int64]model.UndercutFlag) (Result, error) {
	return e.evaluate(ctx, account, order, ownOrders, prior, newBookCache())
}

func (e *Evaluator) evaluate(ctx context.Context, account model.Account, order model.OrderSnapshot, ownOrders []model.OrderSnapshot, prior map[int64]model.UndercutFlag, books *bookCache) (Result, error) {
	regionID := order.RegionID
	if regionID == 0 {
		loc, err := e.ResolveRegion(ctx, account, order.LocationID)
		if err != nil {
			return Result{}, err
		}
		regionID = loc.RegionID
	}

	key := bookKey{regionID: regionID, typeID: order.TypeID}
	competitors, ok := books.regions[key]
	if !ok {
		fetched, err := e.market.RegionOrders(ctx, regionID, order.TypeID)
		if err != nil {
			return Result{}, err
		}
		books.regions[key] = fetched
		competitors = fetched
	}
	if order.LocationID >= esi.StructureIDThreshold {
		// The public region book omits orders inside player structures.
		inside, ok := books.structures[order.LocationID]
		if !ok {
			fetched, err := e.market.StructureOrders(ctx, account, order.LocationID)
			if err != nil {
				return Result{}, err
			}
			books.structures[order.LocationID] = fetched
			inside = fetched
		}
		listed := make(map[int64]struct{}, len(competitors))
		for _, c := range competitors {
			listed[c.OrderID] = struct{}{}
		}
		merged := make([]esi.RegionOrder, len(competitors), len(competitors)+len(inside))
		copy(merged, competitors)
		for _, c := range inside {
			if _, ok := listed[c.OrderID]; !ok {
				merged = append(merged, c)
			}
		}
		competitors = merged
	}

	own := make(map[int64]struct{}, len(ownOrders))
	for _, o := range ownOrders {
		own[o.OrderID] = struct{}{}
	}

	best, bestLocation, found := bestOpposingPrice(order, competitors, own)

	undercut := found && beaten(order, best)
	flag := model.UndercutFlag{
		OrderID:   order.OrderID,
		AccountID: account.ID,
		Undercut:  undercut,
	}
	if found {
		flag.CompetitorPrice = &best
		flag.CompetitorLocationID = &bestLocation
	}

	wasUndercut := false
	if p, ok := prior[order.OrderID]; ok {
		wasUndercut = p.Undercut
	}

	res := Result{
		Flag:            flag,
		Notify:          undercut && !wasUndercut,
		CompetitorPrice: best,
	}
	return res, nil
}

// bestOpposingPrice scans the region's order book for the strongest
// same-side competitor, skipping the account's own orders.
func bestOpposingPrice(order model.OrderSnapshot, competitors []esi.RegionOrder, own map[int64]struct{}) (decimal.Decimal, int64, bool) {
	var (
		best     decimal.Decimal
		location int64
		found    bool
	)

	for _, c := range competitors {
		if c.TypeID != order.TypeID || c.IsBuyOrder != order.IsBuyOrder {
			continue
		}
		if _, ok := own[c.OrderID]; ok {
			continue
		}

		if !found {
			best, location, found = c.Price, c.LocationID, true
			continue
		}
		if order.IsBuyOrder {
			// The competitor to beat is the highest bid.
			if c.Price.GreaterThan(best) {
				best, location = c.Price, c.LocationID
			}
		} else {
			// The competitor to beat is the cheapest ask.
			if c.Price.LessThan(best) {
				best, location = c.Price, c.LocationID
			}
		}
	}

	return best, location, found
}

// beaten reports whether the competitor's price is strictly better than ours.
func beaten(order model.OrderSnapshot, competitor decimal.Decimal) bool {
	if order.IsBuyOrder {
		return competitor.GreaterThan(order.Price)
	}
	return competitor.LessThan(order.Price)
}
