package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"routeledger/internal/app"
	"routeledger/internal/core/types"
	"routeledger/internal/infrastructure/export"
	"routeledger/internal/infrastructure/http/v1/dto"
)

var (
	archivesFrom string
	archivesTo   string
	exportOutput string
)

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "Inspect settlement archives",
}

var archivesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives in a date range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, to, err := dto.RangeQuery{From: archivesFrom, To: archivesTo}.Bounds()
		if err != nil {
			return err
		}
		return withLedger(cmd.Context(), func(ctx context.Context, ledger *app.App) error {
			archives, err := ledger.Settlement.ListArchives(ctx, from, to)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tSEQ\tID\tDELIVERIES\tPAYMENTS\tOUTSTANDING")
			for _, a := range archives {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n",
					types.FormatDay(a.Date), a.Sequence, a.ID,
					a.Summary.Deliveries, a.Summary.PaymentTotal, a.Summary.Outstanding)
			}
			return w.Flush()
		})
	},
}

var archivesExportCmd = &cobra.Command{
	Use:   "export <archive-id>",
	Short: "Write an archive to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archiveID, err := dto.ParseID("archive-id", args[0])
		if err != nil {
			return err
		}
		return withLedger(cmd.Context(), func(ctx context.Context, ledger *app.App) error {
			a, err := ledger.Settlement.GetArchive(ctx, archiveID)
			if err != nil {
				return err
			}
			path := exportOutput
			if path == "" {
				path = fmt.Sprintf("settlement-%s-%d.xlsx", types.FormatDay(a.Date), a.Sequence)
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := export.WriteArchive(f, a); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		})
	},
}

func init() {
	archivesListCmd.Flags().StringVar(&archivesFrom, "from", "", "first business date (YYYY-MM-DD)")
	archivesListCmd.Flags().StringVar(&archivesTo, "to", "", "last business date (YYYY-MM-DD)")
	archivesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default settlement-<date>-<seq>.xlsx)")
	archivesCmd.AddCommand(archivesListCmd, archivesExportCmd)
	rootCmd.AddCommand(archivesCmd)
}
