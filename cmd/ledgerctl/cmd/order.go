package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/microtrade/ledger-engine/internal/model"
	"github.com/microtrade/ledger-engine/internal/order"
	"github.com/microtrade/ledger-engine/internal/report"
)

func newOrderCmd(o *options, side string) *cobra.Command {
	var (
		kind    string
		price   string
		fee     string
		preview bool
	)

	c := &cobra.Command{
		Use:   side + " <symbol> <quantity>",
		Short: fmt.Sprintf("Record a simulated %s fill", side),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			req := order.Request{
				Symbol:   args[0],
				Side:     model.Side(side),
				Quantity: qty,
				Kind:     model.OrderKind(kind),
			}
			if price != "" {
				if req.Price, err = decimal.NewFromString(price); err != nil {
					return fmt.Errorf("invalid price %q", price)
				}
			}
			if fee != "" {
				f, err := decimal.NewFromString(fee)
				if err != nil {
					return fmt.Errorf("invalid fee %q", fee)
				}
				req.Fee = &f
			}

			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if preview {
				dec, p, err := a.Engine.Validate(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s %s: %s + %s fee = %s\n",
					side, qty, args[0],
					report.FormatMoney(p.Notional, report.DefaultCurrency),
					report.FormatMoney(p.Fee, report.DefaultCurrency),
					report.FormatMoney(p.Total, report.DefaultCurrency))
				return dec.Err()
			}

			rc, err := a.Engine.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "filled %s %s %s @ %s (fee %s) id=%s\n",
				rc.Trade.Side, rc.Trade.Quantity, rc.Trade.Symbol,
				report.FormatMoney(rc.Trade.ExecutionPrice, report.DefaultCurrency),
				report.FormatMoney(rc.Trade.Fee, report.DefaultCurrency),
				rc.Trade.ID)
			fmt.Fprintf(out, "position %s: %s @ avg %s\n",
				rc.Position.Symbol, rc.Position.NetQuantity,
				report.FormatMoney(rc.Position.AverageCost, report.DefaultCurrency))
			return nil
		},
	}

	c.Flags().StringVarP(&kind, "kind", "k", "market", "order kind: market, limit, stop, takeprofit")
	c.Flags().StringVarP(&price, "price", "p", "", "entered price for non-market orders")
	c.Flags().StringVar(&fee, "fee", "", "fee override (default from config)")
	c.Flags().BoolVar(&preview, "preview", false, "validate and show the cost without recording")
	return c
}

func newQuoteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol>",
		Short: "Show the live price of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Engine.Quote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], p)
			return nil
		},
	}
}
