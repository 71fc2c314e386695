package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"routeledger/internal/app"
	"routeledger/internal/core/types"
	"routeledger/internal/infrastructure/http/v1/dto"
)

var settleDate string

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Run the daily settlement now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		day, err := dto.DateQuery{Date: settleDate}.Day()
		if err != nil {
			return err
		}
		return withSharedLedger(cmd.Context(), func(ctx context.Context, ledger *app.App) error {
			if err := ledger.Start(ctx); err != nil {
				return err
			}
			res, err := ledger.Settlement.Run(ctx, day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a := res.Archive
			if res.AlreadySettled {
				fmt.Fprintf(out, "%s already settled as archive %s (#%d), nothing new\n",
					types.FormatDay(day), a.ID, a.Sequence)
				return nil
			}
			fmt.Fprintf(out, "settled %s: archive %s (#%d)\n", types.FormatDay(day), a.ID, a.Sequence)
			fmt.Fprintf(out, "  deliveries %d totalling %s\n", a.Summary.Deliveries, a.Summary.DeliveryTotal)
			fmt.Fprintf(out, "  payments   %d totalling %s\n", a.Summary.Payments, a.Summary.PaymentTotal)
			fmt.Fprintf(out, "  pending    %s\n", a.Summary.PendingTotal)
			fmt.Fprintf(out, "  outstanding carried %s across %d shops\n", a.Summary.Outstanding, a.Summary.Shops)
			return nil
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resolve settlements interrupted by a crash",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSharedLedger(cmd.Context(), func(ctx context.Context, ledger *app.App) error {
			n, err := ledger.Settlement.Recover(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d interrupted settlement(s)\n", n)
			return nil
		})
	},
}

func init() {
	settleCmd.Flags().StringVar(&settleDate, "date", "", "business date to settle (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(settleCmd, recoverCmd)
}
