package notify

import (
	"testing"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRenderSaleWithProfit(t *testing.T) {
	msg := Render(model.Notification{
		Kind:        model.NotifySale,
		TypeName:    "Tritanium",
		Quantity:    1200,
		UnitPrice:   decimal.RequireFromString("15"),
		Profit:      decimal.RequireFromString("5600"),
		ProfitKnown: true,
		At:          time.Now(),
	})

	require.Contains(t, msg, "Sold")
	require.Contains(t, msg, "Tritanium")
	require.Contains(t, msg, "15.00 ISK")
	require.Contains(t, msg, "5,600.00 ISK")
}

func TestRenderSaleUnknownProfitExcluded(t *testing.T) {
	msg := Render(model.Notification{
		Kind:      model.NotifySale,
		TypeName:  "Tritanium",
		Quantity:  10,
		UnitPrice: decimal.RequireFromString("15"),
	})

	require.Contains(t, msg, "unknown")
	require.NotContains(t, msg, "0.00 ISK")
}

func TestRenderUndercutSameSystem(t *testing.T) {
	msg := Render(model.Notification{
		Kind:            model.NotifyUndercut,
		TypeName:        "PLEX",
		UnitPrice:       decimal.RequireFromString("5000000"),
		CompetitorPrice: decimal.RequireFromString("4999999"),
		Jumps:           0,
	})

	require.Contains(t, msg, "Undercut")
	require.Contains(t, msg, "4,999,999.00")
	require.Contains(t, msg, "same system")
}

func TestRenderFallsBackToTypeID(t *testing.T) {
	msg := Render(model.Notification{Kind: model.NotifyBuy, TypeID: 34, Quantity: 1, UnitPrice: decimal.New(4, 0)})
	require.Contains(t, msg, "type 34")
}

func TestISKFormatting(t *testing.T) {
	require.Equal(t, "0.00", isk(decimal.Zero))
	require.Equal(t, "999.99", isk(decimal.RequireFromString("999.99")))
	require.Equal(t, "1,000.00", isk(decimal.RequireFromString("1000")))
	require.Equal(t, "12,400.00", isk(decimal.RequireFromString("12400")))
	require.Equal(t, "-1,234,567.89", isk(decimal.RequireFromString("-1234567.891")))
}

func TestRenderOverviewMentionsUnknownSales(t *testing.T) {
	msg := RenderOverview("Trader", model.OverviewTotals{
		Balance:      decimal.RequireFromString("1000000"),
		TotalSales:   decimal.RequireFromString("18000"),
		GrossProfit:  decimal.RequireFromString("5600"),
		SalesCount:   3,
		UnknownSales: 1,
	})

	require.Contains(t, msg, "Trader")
	require.Contains(t, msg, "excluded")
}

func TestRenderMonthlyOverviewNamesTheMonth(t *testing.T) {
	at := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	msg := RenderMonthlyOverview("Trader", at, model.OverviewTotals{
		TotalSales:  decimal.RequireFromString("18000"),
		GrossProfit: decimal.RequireFromString("5600"),
		SalesCount:  3,
	})

	require.Contains(t, msg, "March 2026")
	require.Contains(t, msg, "Trader")
	require.NotContains(t, msg, "Balance")
}
