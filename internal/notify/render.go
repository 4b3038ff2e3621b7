package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/shopspring/decimal"
)

// Render turns a structured notification into the Telegram HTML message.
func Render(n model.Notification) string {
	switch n.Kind {
	case model.NotifySale:
		var b strings.Builder
		fmt.Fprintf(&b, "💰 <b>Sold</b> %d × %s @ %s ISK", n.Quantity, itemName(n), isk(n.UnitPrice))
		if n.ProfitKnown {
			fmt.Fprintf(&b, "\nProfit: %s ISK", isk(n.Profit))
		} else {
			b.WriteString("\nProfit: unknown (no purchase history)")
		}
		return b.String()
	case model.NotifyBuy:
		return fmt.Sprintf("🛒 <b>Bought</b> %d × %s @ %s ISK", n.Quantity, itemName(n), isk(n.UnitPrice))
	case model.NotifyOrderCancelled:
		return fmt.Sprintf("❌ Order for %s cancelled, %d remaining", itemName(n), n.Quantity)
	case model.NotifyOrderExpired:
		return fmt.Sprintf("⌛ Order for %s expired, %d unsold", itemName(n), n.Quantity)
	case model.NotifyUndercut:
		msg := fmt.Sprintf("📉 <b>Undercut</b> on %s: competitor at %s ISK (yours %s ISK)",
			itemName(n), isk(n.CompetitorPrice), isk(n.UnitPrice))
		if n.Jumps > 0 {
			msg += fmt.Sprintf(", %d jumps away", n.Jumps)
		} else if n.Jumps == 0 {
			msg += ", same system"
		}
		return msg
	case model.NotifyContract:
		return "📋 " + n.Text
	case model.NotifyAuthExpired:
		return "🔑 Authorization expired. Re-add the character to resume notifications."
	case model.NotifyDailyOverview, model.NotifyMonthlyOverview:
		return n.Text
	}
	return n.Text
}

// RenderOverview formats the daily summary message.
func RenderOverview(characterName string, totals model.OverviewTotals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Daily overview: %s</b>\n", characterName)
	fmt.Fprintf(&b, "Balance: %s ISK\n", isk(totals.Balance))
	fmt.Fprintf(&b, "Sales: %d for %s ISK\n", totals.SalesCount, isk(totals.TotalSales))
	fmt.Fprintf(&b, "Buys: %d for %s ISK\n", totals.BuysCount, isk(totals.TotalBuys))
	fmt.Fprintf(&b, "Fees: %s ISK\n", isk(totals.Fees))
	fmt.Fprintf(&b, "Gross profit: %s ISK", isk(totals.GrossProfit))
	if totals.UnknownSales > 0 {
		fmt.Fprintf(&b, "\n(%d sales excluded: unknown cost basis)", totals.UnknownSales)
	}
	return b.String()
}

// RenderMonthlyOverview formats the summary sent once the calendar month
// containing at has closed. Balance is omitted; it is a point-in-time
// figure, not a month total.
func RenderMonthlyOverview(characterName string, at time.Time, totals model.OverviewTotals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>%s summary: %s</b>\n", at.Format("January 2006"), characterName)
	fmt.Fprintf(&b, "Sales: %d for %s ISK\n", totals.SalesCount, isk(totals.TotalSales))
	fmt.Fprintf(&b, "Buys: %d for %s ISK\n", totals.BuysCount, isk(totals.TotalBuys))
	fmt.Fprintf(&b, "Fees: %s ISK\n", isk(totals.Fees))
	fmt.Fprintf(&b, "Gross profit: %s ISK", isk(totals.GrossProfit))
	if totals.UnknownSales > 0 {
		fmt.Fprintf(&b, "\n(%d sales excluded: unknown cost basis)", totals.UnknownSales)
	}
	return b.String()
}

func itemName(n model.Notification) string {
	if n.TypeName != "" {
		return n.TypeName
	}
	return fmt.Sprintf("type %d", n.TypeID)
}

// isk renders an amount with thousands separators and two decimals, the way
// the in-game wallet shows it.
func isk(d decimal.Decimal) string {
	s := d.StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
