package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/microtrade/ledger-engine/internal/engine"
	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/report"
)

func newReportCmd(o *options) *cobra.Command {
	var (
		plain    bool
		currency string
		prices   []string
	)

	c := &cobra.Command{
		Use:   "report",
		Short: "Render a portfolio and activity report",
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
			trades, err := a.Engine.Trades(cmd.Context(), engine.Oldest)
			if err != nil {
				return err
			}

			md := report.Markdown(snap, trades, currency)
			if plain {
				_, err = fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}

			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				return fmt.Errorf("create renderer: %w", err)
			}
			rendered, err := r.Render(md)
			if err != nil {
				return fmt.Errorf("render report: %w", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return err
		},
	}
	c.Flags().BoolVar(&plain, "plain", false, "print raw markdown instead of rendering it")
	c.Flags().StringVar(&currency, "currency", report.DefaultCurrency, "ISO currency code for amounts")
	c.Flags().StringArrayVar(&prices, "price", nil, "price override as SYMBOL=PRICE (repeatable)")
	return c
}
