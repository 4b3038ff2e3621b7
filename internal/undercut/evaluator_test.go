package undercut

import (
	"context"
	"testing"

	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bizkut/EveSalesNotification/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	orders          []esi.RegionOrder
	structureOrders map[int64][]esi.RegionOrder
	stations        map[int64]esi.StationInfo
	systems         map[int64]esi.SystemInfo
	constellation   map[int64]esi.ConstellationInfo
	structures      map[int64]esi.StructureInfo

	regionCalls int
}

func (m *fakeMarket) RegionOrders(_ context.Context, _, _ int64) ([]esi.RegionOrder, error) {
	m.regionCalls++
	return m.orders, nil
}

func (m *fakeMarket) StructureOrders(_ context.Context, _ model.Account, id int64) ([]esi.RegionOrder, error) {
	return m.structureOrders[id], nil
}

func (m *fakeMarket) Station(_ context.Context, id int64) (esi.StationInfo, error) {
	return m.stations[id], nil
}

func (m *fakeMarket) System(_ context.Context, id int64) (esi.SystemInfo, error) {
	return m.systems[id], nil
}

func (m *fakeMarket) Constellation(_ context.Context, id int64) (esi.ConstellationInfo, error) {
	return m.constellation[id], nil
}

func (m *fakeMarket) Structure(_ context.Context, _ model.Account, id int64) (esi.StructureInfo, error) {
	return m.structures[id], nil
}

type fakeRef struct {
	locations map[int64]store.Location
	saves     int
}

func newFakeRef() *fakeRef {
	return &fakeRef{locations: make(map[int64]store.Location)}
}

func (r *fakeRef) Location(_ context.Context, id int64) (store.Location, bool, error) {
	loc, ok := r.locations[id]
	return loc, ok, nil
}

func (r *fakeRef) SaveLocation(_ context.Context, id int64, loc store.Location) error {
	r.locations[id] = loc
	r.saves++
	return nil
}

func sellOrder(orderID int64, price string) model.OrderSnapshot {
	return model.OrderSnapshot{
		OrderID:    orderID,
		AccountID:  1,
		TypeID:     34,
		Price:      decimal.RequireFromString(price),
		LocationID: 60003760,
		RegionID:   10000002,
	}
}

func competitor(orderID int64, price string, buy bool) esi.RegionOrder {
	return esi.RegionOrder{
		OrderID:    orderID,
		TypeID:     34,
		IsBuyOrder: buy,
		LocationID: 60003761,
		Price:      decimal.RequireFromString(price),
	}
}

func TestSellOrderUndercutByCheaperAsk(t *testing.T) {
	market := &fakeMarket{orders: []esi.RegionOrder{
		competitor(201, "95", false),
		competitor(202, "110", false),
		competitor(203, "200", true), // opposite side, ignored
	}}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	order := sellOrder(101, "100")
	res, err := e.Evaluate(context.Background(), model.Account{ID: 1}, order, []model.OrderSnapshot{order}, nil)
	require.NoError(t, err)

	require.True(t, res.Flag.Undercut)
	require.True(t, res.Notify)
	require.Equal(t, "95", res.CompetitorPrice.String())
}

func TestBuyOrderUndercutByHigherBid(t *testing.T) {
	market := &fakeMarket{orders: []esi.RegionOrder{
		competitor(201, "105", true),
		competitor(202, "90", true),
	}}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	order := sellOrder(101, "100")
	order.IsBuyOrder = true
	res, err := e.Evaluate(context.Background(), model.Account{ID: 1}, order, []model.OrderSnapshot{order}, nil)
	require.NoError(t, err)

	require.True(t, res.Flag.Undercut)
	require.Equal(t, "105", res.CompetitorPrice.String())
}

func TestOwnOrdersExcludedFromCompetition(t *testing.T) {
	other := sellOrder(102, "50")
	market := &fakeMarket{orders: []esi.RegionOrder{
		competitor(102, "50", false), // our other order, must not count
		competitor(201, "120", false),
	}}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	order := sellOrder(101, "100")
	res, err := e.Evaluate(context.Background(), model.Account{ID: 1}, order, []model.OrderSnapshot{order, other}, nil)
	require.NoError(t, err)

	require.False(t, res.Flag.Undercut)
	require.False(t, res.Notify)
}

func TestMatchingPriceStaysCompetitive(t *testing.T) {
	market := &fakeMarket{orders: []esi.RegionOrder{competitor(201, "100", false)}}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	order := sellOrder(101, "100")
	res, err := e.Evaluate(context.Background(), model.Account{ID: 1}, order, []model.OrderSnapshot{order}, nil)
	require.NoError(t, err)

	require.False(t, res.Flag.Undercut)
}

func TestEvaluateAllFetchesBookOncePerItem(t *testing.T) {
	market := &fakeMarket{orders: []esi.RegionOrder{competitor(201, "95", false)}}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	orders := []model.OrderSnapshot{
		sellOrder(101, "100"),
		sellOrder(102, "101"),
		sellOrder(103, "102"),
	}
	results := e.EvaluateAll(context.Background(), model.Account{ID: 1}, orders, nil)

	require.Len(t, results, 3)
	require.Equal(t, 1, market.regionCalls)
	for _, order := range orders {
		require.True(t, results[order.OrderID].Flag.Undercut)
	}
}

func TestStructureBookMergedForStructureOrders(t *testing.T) {
	const structureID int64 = esi.StructureIDThreshold + 42
	market := &fakeMarket{
		orders: []esi.RegionOrder{competitor(201, "120", false)},
		structureOrders: map[int64][]esi.RegionOrder{
			structureID: {competitor(301, "90", false)},
		},
	}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	order := sellOrder(101, "100")
	order.LocationID = structureID
	res, err := e.Evaluate(context.Background(), model.Account{ID: 1}, order, []model.OrderSnapshot{order}, nil)
	require.NoError(t, err)

	require.True(t, res.Flag.Undercut)
	require.True(t, decimal.RequireFromString("90").Equal(res.CompetitorPrice))
}

func TestNotifyOnlyOnTransition(t *testing.T) {
	e := NewEvaluator(&fakeMarket{}, newFakeRef(), logger.Nop{})
	order := sellOrder(101, "100")
	account := model.Account{ID: 1}
	own := []model.OrderSnapshot{order}

	prior := map[int64]model.UndercutFlag{}
	notifications := 0
	rounds := []struct {
		competitor string
	}{
		{"120"}, // competitive
		{"95"},  // undercut, notify
		{"95"},  // still undercut, silent
		{"120"}, // competitive again
		{"90"},  // undercut, notify
	}

	for _, round := range rounds {
		market := &fakeMarket{orders: []esi.RegionOrder{competitor(201, round.competitor, false)}}
		e.market = market

		res, err := e.Evaluate(context.Background(), account, order, own, prior)
		require.NoError(t, err)
		if res.Notify {
			notifications++
		}
		prior[order.OrderID] = res.Flag
	}

	require.Equal(t, 2, notifications)
}

func TestResolveRegionWalksStationHierarchy(t *testing.T) {
	market := &fakeMarket{
		stations:      map[int64]esi.StationInfo{60003760: {SystemID: 30000142}},
		systems:       map[int64]esi.SystemInfo{30000142: {ConstellationID: 20000020}},
		constellation: map[int64]esi.ConstellationInfo{20000020: {RegionID: 10000002}},
	}
	ref := newFakeRef()
	e := NewEvaluator(market, ref, logger.Nop{})

	loc, err := e.ResolveRegion(context.Background(), model.Account{ID: 1}, 60003760)
	require.NoError(t, err)
	require.Equal(t, int64(10000002), loc.RegionID)
	require.Equal(t, int64(30000142), loc.SystemID)
	require.Equal(t, 1, ref.saves)

	// Second lookup comes from cache.
	_, err = e.ResolveRegion(context.Background(), model.Account{ID: 1}, 60003760)
	require.NoError(t, err)
	require.Equal(t, 1, ref.saves)
}

func TestResolveRegionUsesStructureMetadata(t *testing.T) {
	structureID := int64(1035466617946)
	market := &fakeMarket{
		structures:    map[int64]esi.StructureInfo{structureID: {SolarSystemID: 30000144}},
		systems:       map[int64]esi.SystemInfo{30000144: {ConstellationID: 20000021}},
		constellation: map[int64]esi.ConstellationInfo{20000021: {RegionID: 10000002}},
	}
	e := NewEvaluator(market, newFakeRef(), logger.Nop{})

	loc, err := e.ResolveRegion(context.Background(), model.Account{ID: 1}, structureID)
	require.NoError(t, err)
	require.Equal(t, int64(30000144), loc.SystemID)
}
