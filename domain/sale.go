package domain

const (
	SaleStatusPending     = "pending"
	SaleStatusCompleted   = "completed"
	SaleStatusInstallment = "installment"
	SaleStatusFailed      = "failed"
	SaleStatusCancelled   = "cancelled"

	PaymentFull        = "full"
	PaymentInstallment = "installment"
)

// SaleItem is one line in a sale, carrying the resolved serial set for the
// assigned unit.
type SaleItem struct {
	EquipmentName       string   `json:"equipment_name"`
	ToolID              int64    `json:"tool_id"`
	Category            string   `json:"category"`
	SetType             string   `json:"set_type,omitempty"`
	Cost                float64  `json:"cost"`
	SerialSet           []string `json:"serial_set"`
	DataloggerSerial    string   `json:"datalogger_serial,omitempty"`
	ExternalRadioSerial string   `json:"external_radio_serial,omitempty"`
	SaleInvoiceNumber   string   `json:"sale_invoice_number,omitempty"`
	ImportInvoiceNumber string   `json:"import_invoice_number,omitempty"`
}

// PaymentPlan is either a full payment or an installment plan with an
// up-front deposit spread over a number of months.
type PaymentPlan struct {
	Method  string  `json:"method"`
	Deposit float64 `json:"deposit,omitempty"`
	Months  int     `json:"months,omitempty"`
}

// Sale is a customer transaction as reported by the upstream backend.
type Sale struct {
	ID            int64       `json:"id"`
	CustomerID    int64       `json:"customer_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	CustomerState string      `json:"customer_state,omitempty"`
	Items         []SaleItem  `json:"items"`
	TotalCost     float64     `json:"total_cost"`
	Payment       PaymentPlan `json:"payment"`
	Status        string      `json:"status"`
	InvoiceNumber string      `json:"invoice_number"`
	CreatedAt     string      `json:"created_at,omitempty"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
}

// ValidSaleStatus reports whether status is one of the recognised sale
// states.
func ValidSaleStatus(status string) bool {
	switch status {
	case SaleStatusPending, SaleStatusCompleted, SaleStatusInstallment, SaleStatusFailed, SaleStatusCancelled:
		return true
	}
	return false
}
