package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"surveydesk/m/domain"
)

func TestWriteSalesCSV(t *testing.T) {
	sales := []domain.Sale{
		{
			InvoiceNumber: "INV-1",
			CustomerName:  "Acme Surveys",
			CustomerState: "Lagos",
			Status:        domain.SaleStatusCompleted,
			Payment:       domain.PaymentPlan{Method: domain.PaymentFull},
			TotalCost:     14720,
			CreatedAt:     "2026-08-01",
			Items: []domain.SaleItem{
				{
					EquipmentName:       "Leica GS18 Base & Rover",
					SerialSet:           []string{"GX-1", "GX-2"},
					DataloggerSerial:    "DL-7",
					ExternalRadioSerial: "ER-7",
				},
				{EquipmentName: "Tripod", SerialSet: []string{"TP-1"}},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteSalesCSV(&buf, sales); err != nil {
		t.Fatalf("WriteSalesCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want header + 1 row", len(records))
	}
	row := records[1]
	if row[0] != "INV-1" || row[1] != "Acme Surveys" || row[5] != "14720.00" {
		t.Fatalf("unexpected row: %v", row)
	}
	if row[6] != "Leica GS18 Base & Rover; Tripod" {
		t.Fatalf("items column = %q", row[6])
	}
	for _, serial := range []string{"GX-1", "GX-2", "DL-7", "ER-7", "TP-1"} {
		if !strings.Contains(row[7], serial) {
			t.Fatalf("serials column %q missing %s", row[7], serial)
		}
	}
}

func TestWriteToolGroupsCSV(t *testing.T) {
	groups := []domain.GroupSummary{
		{Name: "Leica GS18 Base & Rover", Category: domain.CategoryReceiver, EquipmentType: domain.TypeBaseRoverCombo, Stock: 3, Cost: 14500, InvoiceNumber: "IMP-1"},
	}

	var buf bytes.Buffer
	if err := WriteToolGroupsCSV(&buf, groups); err != nil {
		t.Fatalf("WriteToolGroupsCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want header + 1 row", len(records))
	}
	if records[1][0] != "Leica GS18 Base & Rover" || records[1][3] != "3" || records[1][4] != "14500.00" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestRenderSales(t *testing.T) {
	renderer, err := NewRenderer("../../templates")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	var buf bytes.Buffer
	err = renderer.RenderSales(&buf, []domain.Sale{
		{InvoiceNumber: "INV-9", CustomerName: "Beacon Geomatics", TotalCost: 9000, Status: domain.SaleStatusPending, Payment: domain.PaymentPlan{Method: domain.PaymentInstallment}},
	})
	if err != nil {
		t.Fatalf("RenderSales: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"INV-9", "Beacon Geomatics", "9000.00", "installment"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered report missing %q", want)
		}
	}
}
