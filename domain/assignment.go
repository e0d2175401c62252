package domain

// AssignmentResult is the reconciled outcome of assigning one physical unit
// from an equipment group. It only lives for the duration of one
// add-item-to-sale interaction and is never persisted.
type AssignmentResult struct {
	ToolID              int64    `json:"tool_id"`
	ToolName            string   `json:"tool_name"`
	Category            string   `json:"category"`
	SetType             string   `json:"set_type,omitempty"`
	Cost                float64  `json:"cost"`
	SerialSet           []string `json:"serial_set"`
	DataloggerSerial    string   `json:"datalogger_serial,omitempty"`
	ExternalRadioSerial string   `json:"external_radio_serial,omitempty"`
	SaleInvoiceNumber   string   `json:"sale_invoice_number,omitempty"`
	ImportInvoiceNumber string   `json:"import_invoice_number,omitempty"`
}

// SaleItem converts the assignment into the sale line item it backs.
func (r AssignmentResult) SaleItem() SaleItem {
	return SaleItem{
		EquipmentName:       r.ToolName,
		ToolID:              r.ToolID,
		Category:            r.Category,
		SetType:             r.SetType,
		Cost:                r.Cost,
		SerialSet:           r.SerialSet,
		DataloggerSerial:    r.DataloggerSerial,
		ExternalRadioSerial: r.ExternalRadioSerial,
		SaleInvoiceNumber:   r.SaleInvoiceNumber,
		ImportInvoiceNumber: r.ImportInvoiceNumber,
	}
}
