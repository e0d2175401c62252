// Package report formats already-fetched collections into CSV downloads,
// printable HTML and PDF. Everything here is formatting; no business rules.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"surveydesk/m/domain"
)

// WriteSalesCSV renders sales as CSV, one row per sale with line items and
// serials flattened.
func WriteSalesCSV(w io.Writer, sales []domain.Sale) error {
	writer := csv.NewWriter(w)
	header := []string{"invoice_number", "customer", "state", "status", "payment_method", "total_cost", "items", "serials", "created_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, sale := range sales {
		names := make([]string, 0, len(sale.Items))
		var serials []string
		for _, item := range sale.Items {
			names = append(names, item.EquipmentName)
			serials = append(serials, item.SerialSet...)
			if item.DataloggerSerial != "" {
				serials = append(serials, item.DataloggerSerial)
			}
			if item.ExternalRadioSerial != "" {
				serials = append(serials, item.ExternalRadioSerial)
			}
		}
		row := []string{
			sale.InvoiceNumber,
			sale.CustomerName,
			sale.CustomerState,
			sale.Status,
			sale.Payment.Method,
			fmt.Sprintf("%.2f", sale.TotalCost),
			strings.Join(names, "; "),
			strings.Join(serials, "; "),
			sale.CreatedAt,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteToolGroupsCSV renders grouped inventory availability as CSV.
func WriteToolGroupsCSV(w io.Writer, groups []domain.GroupSummary) error {
	writer := csv.NewWriter(w)
	header := []string{"name", "category", "equipment_type", "stock", "cost", "invoice_number"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, group := range groups {
		row := []string{
			group.Name,
			group.Category,
			group.EquipmentType,
			fmt.Sprintf("%d", group.Stock),
			fmt.Sprintf("%.2f", group.Cost),
			group.InvoiceNumber,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
