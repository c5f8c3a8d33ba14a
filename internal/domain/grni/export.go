package grni

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"orvit/internal/core/types"
)

const exportSheet = "GRNI"

var exportHeaders = []string{
	"Recepción", "Proveedor", "Descripción", "Período", "Estado",
	"Moneda", "Monto estimado", "Monto facturado", "Diferencia",
	"Días pendiente", "Responsable", "Tipo",
}

// WriteXLSX renders the detail listing as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []AccrualView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, r := range rows {
		values := []any{
			receiptLabel(r.Accrual),
			supplierLabel(r.Accrual),
			r.Description,
			r.Period.String(),
			string(r.Status),
			r.Currency,
			moneyCell(r.EstimatedAmount),
			"",
			"",
			r.DaysPending,
			"",
			r.DocType,
		}
		if r.InvoicedAmount.Valid {
			values[7] = moneyCell(r.InvoicedAmount.Decimal)
		}
		if r.Variance.Valid {
			values[8] = moneyCell(r.Variance.Decimal)
		}
		if r.OwnerID != nil {
			values[10] = *r.OwnerID
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(exportSheet, "A", "L", 16); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// moneyCell rounds to the stored scale; XLSX cells hold numbers as float.
func moneyCell(m types.Money) float64 {
	f, _ := m.Round(types.MoneyScale).Float64()
	return f
}
