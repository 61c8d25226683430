package report

import (
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/position"
	"github.com/microtrade/ledger-engine/internal/valuation"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234.5", "$1,234.50"},
		{"0.185", "$0.19"},
		{"-42", "-$42.00"},
		{"0", "$0.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(d(tt.in), "USD"); got != tt.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := SignedMoney(d("5"), "USD"); got != "+$5.00" {
		t.Errorf("expected +$5.00, got %q", got)
	}
	if got := FormatMoney(d("5"), "XXX-NOPE"); got != "5.00" {
		t.Errorf("expected plain fallback, got %q", got)
	}
}

func TestMarkdown(t *testing.T) {
	trades := []model.TradeRecord{
		{ID: "1", Symbol: "AAPL", Side: model.Buy, Quantity: d("10"), ExecutionPrice: d("100"), Fee: d("0.25")},
		{ID: "2", Symbol: "AAPL", Side: model.Sell, Quantity: d("4"), ExecutionPrice: d("120"), Fee: d("0.25")},
		{ID: "3", Symbol: "TSLA", Side: model.Buy, Quantity: d("1"), ExecutionPrice: d("250"), Fee: d("0.25")},
	}
	book := position.Aggregate(slices.Values(trades))
	snap := valuation.Snapshot(book, valuation.PricesFrom(map[string]decimal.Decimal{"AAPL": d("110")}))

	md := Markdown(snap, trades, "")

	for _, want := range []string{
		"# Portfolio report",
		"| $600.00 | $660.00 | +$60.00 |",
		"| AAPL | 6 | $100.00 | $110.00 | +$60.00 |",
		"| TSLA | 1 | $250.00 | n/a | n/a |",
		"No live price for TSLA",
		"3 trades, $0.75 in fees.",
		"| AAPL | 10 | 4 | 6 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdown_Empty(t *testing.T) {
	md := Markdown(valuation.Snapshot(position.Book{}, valuation.NoPrices), nil, "USD")
	if !strings.Contains(md, "No open positions") || !strings.Contains(md, "No trades recorded") {
		t.Errorf("unexpected empty report:\n%s", md)
	}
}
