// Package export renders settlement archives as spreadsheets for the office.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"routeledger/internal/core/types"
	"routeledger/internal/domain/settlement"
)

const (
	SheetSummary    = "Summary"
	SheetClosings   = "Closings"
	SheetDeliveries = "Deliveries"
	SheetPayments   = "Payments"
)

// WriteArchive writes one archive as an xlsx workbook to w.
func WriteArchive(w io.Writer, a *settlement.Archive) error {
	f, err := Archive(a)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Archive builds the workbook. The caller closes it.
func Archive(a *settlement.Archive) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetClosings, SheetDeliveries, SheetPayments} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	s := a.Summary
	summary := [][]any{
		{"Date", types.FormatDay(a.Date)},
		{"Sequence", a.Sequence},
		{"Archived at", a.ArchivedAt.Format("2006-01-02 15:04:05")},
		{"Deliveries", s.Deliveries},
		{"Delivery total", money(s.DeliveryTotal)},
		{"Payments", s.Payments},
		{"Payment total", money(s.PaymentTotal)},
		{"Manual pending", money(s.PendingTotal)},
		{"Outstanding", money(s.Outstanding)},
		{"Shops", s.Shops},
	}

	closings := [][]any{{"Shop", "Route", "Opening", "Deliveries", "Pending", "Payments", "Closing"}}
	for _, c := range a.Closings {
		closings = append(closings, []any{
			c.ShopName, c.Route, money(c.Opening), money(c.Deliveries),
			money(c.Pending), money(c.Payments), money(c.Closing),
		})
	}

	names := make(map[string]string, len(a.Closings))
	for _, c := range a.Closings {
		names[c.ShopID.String()] = c.ShopName
	}

	deliveries := [][]any{{"Delivery", "Shop", "Date", "Line", "Product", "Quantity", "Unit price", "Amount"}}
	for _, d := range a.Deliveries {
		for _, l := range d.Lines {
			deliveries = append(deliveries, []any{
				d.ID.String(), names[d.ShopID.String()], types.FormatDay(d.Date), l.LineNo,
				l.ProductName, l.Quantity.Float64(), money(l.UnitPrice), money(l.Amount),
			})
		}
	}

	payments := [][]any{{"Payment", "Shop", "Date", "Kind", "Amount", "Note"}}
	for _, p := range a.Payments {
		payments = append(payments, []any{
			p.ID.String(), names[p.ShopID.String()], types.FormatDay(p.Date), string(p.Source), money(p.Amount), p.Note,
		})
	}
	for _, e := range a.Pending {
		payments = append(payments, []any{
			e.ID.String(), names[e.ShopID.String()], types.FormatDay(e.Date), "pending", money(e.Amount), e.Note,
		})
	}

	for sheet, rows := range map[string][][]any{
		SheetSummary:    summary,
		SheetClosings:   closings,
		SheetDeliveries: deliveries,
		SheetPayments:   payments,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func money(m types.Money) float64 { return m.InexactFloat64() }
