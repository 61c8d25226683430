// Package report renders a portfolio snapshot and the trade log as a
// markdown document with currency-formatted amounts.
package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/position"
)

// DefaultCurrency is the currency every price is quoted in.
const DefaultCurrency = "USD"

// FormatMoney formats amount in currency, rounded to the currency's minor
// unit ("$1,234.56"). An unknown currency falls back to the plain number.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// SignedMoney is FormatMoney with an explicit sign for gains.
func SignedMoney(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + FormatMoney(amount, currency)
	}
	return FormatMoney(amount, currency)
}

// Markdown builds the report document.
func Markdown(snap model.PortfolioSnapshot, trades []model.TradeRecord, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	var b strings.Builder

	b.WriteString("# Portfolio report\n\n")
	b.WriteString("| Invested | Current value | Unrealized P&L |\n")
	b.WriteString("|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %s | %s | %s |\n\n",
		FormatMoney(snap.InvestedCapital, currency),
		FormatMoney(snap.CurrentValue, currency),
		SignedMoney(snap.UnrealizedPnL, currency))

	b.WriteString("## Open positions\n\n")
	if len(snap.PerPosition) == 0 {
		b.WriteString("_No open positions._\n\n")
	} else {
		b.WriteString("| Symbol | Quantity | Avg cost | Price | P&L |\n")
		b.WriteString("|---|---:|---:|---:|---:|\n")
		symbols := make([]string, 0, len(snap.PerPosition))
		for sym := range snap.PerPosition {
			symbols = append(symbols, sym)
		}
		slices.Sort(symbols)
		for _, sym := range symbols {
			p := snap.PerPosition[sym]
			price, pnl := "n/a", "n/a"
			if p.PriceAvailable {
				price = FormatMoney(p.CurrentPrice, currency)
				pnl = SignedMoney(p.PnL, currency)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				sym, p.NetQuantity.String(), FormatMoney(p.AverageCost, currency), price, pnl)
		}
		b.WriteString("\n")
		if unpriced := snap.Unpriced(); len(unpriced) > 0 {
			fmt.Fprintf(&b, "_No live price for %s; excluded from totals._\n\n", strings.Join(unpriced, ", "))
		}
	}

	b.WriteString("## Activity\n\n")
	if len(trades) == 0 {
		b.WriteString("_No trades recorded._\n")
		return b.String()
	}

	fees := decimal.Zero
	for _, t := range trades {
		fees = fees.Add(t.Fee)
	}
	fmt.Fprintf(&b, "%d trades, %s in fees.\n\n", len(trades), FormatMoney(fees, currency))

	volumes := position.Volumes(slices.Values(trades))
	symbols := make([]string, 0, len(volumes))
	for sym := range volumes {
		symbols = append(symbols, sym)
	}
	slices.Sort(symbols)

	b.WriteString("| Symbol | Bought | Sold | Owned |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for _, sym := range symbols {
		v := volumes[sym]
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", sym, v.Bought, v.Sold, v.Owned())
	}
	return b.String()
}
