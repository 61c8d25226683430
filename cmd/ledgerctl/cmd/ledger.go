package cmd

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/microtrade/ledger-engine/internal/engine"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/report"
	"github.com/microtrade/ledger-engine/internal/valuation"
)

// displayTime is the activity-table timestamp layout.
const displayTime = "1/2/2006, 3:04:05 PM"

func money(v decimal.Decimal) string {
	return report.FormatMoney(v, report.DefaultCurrency)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func newTradesCmd(o *options) *cobra.Command {
	var oldest bool

	c := &cobra.Command{
		Use:   "trades",
		Short: "List recorded fills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sort := engine.Newest
			if oldest {
				sort = engine.Oldest
			}
			trades, err := a.Engine.Trades(cmd.Context(), sort)
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no trades recorded")
				return nil
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TIME\tSIDE\tSYMBOL\tQTY\tPRICE\tDOLLARS\tFEE\tKIND\tID")
			for _, t := range trades {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.FilledAt.Local().Format(displayTime), strings.ToUpper(string(t.Side)), t.Symbol,
					t.Quantity, money(t.ExecutionPrice), money(t.Notional()), money(t.Fee), t.OrderKind, t.ID)
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVar(&oldest, "oldest", false, "oldest first (default newest first)")
	return c
}

func newPositionsCmd(o *options) *cobra.Command {
	var all bool

	c := &cobra.Command{
		Use:   "positions",
		Short: "Show net quantity and average cost per symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			book, err := a.Engine.Positions(cmd.Context())
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "SYMBOL\tQTY\tAVG COST\tCOST BASIS")
			for _, p := range book.Sorted() {
				if !all && !p.Open() {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Symbol, p.NetQuantity, money(p.AverageCost),
					money(p.AverageCost.Mul(p.NetQuantity)))
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVarP(&all, "all", "a", false, "include closed positions")
	return c
}

// parsePrices turns SYM=PRICE pairs into a lookup.
func parsePrices(pairs []string) (valuation.PriceLookup, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	prices := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		sym, px, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid price %q, want SYMBOL=PRICE", pair)
		}
		v, err := decimal.NewFromString(px)
		if err != nil || !v.IsPositive() {
			return nil, fmt.Errorf("invalid price %q, want SYMBOL=PRICE", pair)
		}
		prices[strings.ToUpper(strings.TrimSpace(sym))] = v
	}
	return valuation.PricesFrom(prices), nil
}

func newPortfolioCmd(o *options) *cobra.Command {
	var prices []string

	c := &cobra.Command{
		Use:   "portfolio",
		Short: "Value open positions at live or given prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lookup, err := parsePrices(prices)
			if err != nil {
				return err
			}
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var snap model.PortfolioSnapshot
			if lookup != nil {
				snap, err = a.Engine.SnapshotWith(cmd.Context(), lookup)
			} else {
				snap, err = a.Engine.Snapshot(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := newTable(out)
			fmt.Fprintln(tw, "SYMBOL\tQTY\tAVG COST\tPRICE\tP&L")
			for _, sym := range slices.Sorted(maps.Keys(snap.PerPosition)) {
				l := snap.PerPosition[sym]
				if !l.PriceAvailable {
					fmt.Fprintf(tw, "%s\t%s\t%s\tn/a\tn/a\n", sym, l.NetQuantity, money(l.AverageCost))
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sym, l.NetQuantity, money(l.AverageCost),
					money(l.CurrentPrice), report.SignedMoney(l.PnL, report.DefaultCurrency))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\ninvested %s  value %s  unrealized %s\n",
				money(snap.InvestedCapital), money(snap.CurrentValue),
				report.SignedMoney(snap.UnrealizedPnL, report.DefaultCurrency))
			if unpriced := snap.Unpriced(); len(unpriced) > 0 {
				fmt.Fprintf(out, "no price for %s, excluded from totals\n", strings.Join(unpriced, ", "))
			}
			return nil
		},
	}
	c.Flags().StringArrayVar(&prices, "price", nil, "price override as SYMBOL=PRICE (repeatable)")
	return c
}

func newEquityCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "equity",
		Short: "Replay the log and show invested capital and market value after each fill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			points, err := a.Engine.EquityCurve(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TIME\tTRADE\tINVESTED\tVALUE")
			for _, p := range points {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.At.Local().Format(displayTime), p.TradeID,
					money(p.InvestedCapital), money(p.MarketValue))
			}
			return tw.Flush()
		},
	}
}

func newClearCmd(o *options) *cobra.Command {
	var yes bool

	c := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded trade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("clear deletes all trades; rerun with --yes to confirm")
			}
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Engine.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "trade history cleared")
			return nil
		},
	}
	c.Flags().BoolVarP(&yes, "yes", "y", false, "confirm clearing the trade history")
	return c
}

func newExportCmd(o *options) *cobra.Command {
	var outPath string

	c := &cobra.Command{
		Use:   "export",
		Short: "Write the trade log as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.Engine.Export(cmd.Context())
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	c.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return c
}

func newImportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the trade log with an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Engine.Import(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d trades\n", n)
			return nil
		},
	}
}
