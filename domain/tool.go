package domain

import (
	"bytes"
	"encoding/json"
)

const (
	CategoryReceiver  = "Receiver"
	CategoryAccessory = "Accessory"

	TypeBaseRoverCombo = "Base & Rover Combo"
	TypeBaseOnly       = "Base Only"
	TypeRoverOnly      = "Rover Only"
)

// Tool is one physical or bundled inventory unit owned by the upstream
// backend.
type Tool struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Category      string        `json:"category"`
	EquipmentType string        `json:"equipment_type"`
	Cost          float64       `json:"cost"`
	Stock         int64         `json:"stock"`
	Serials       SerialPayload `json:"serials"`
	Supplier      string        `json:"supplier"`
	InvoiceNumber string        `json:"invoice_number"`
	ExpiryDate    *string       `json:"expiry_date,omitempty"`
}

// GroupSummary describes a named equipment group treated as a pool of
// interchangeable units.
type GroupSummary struct {
	Name          string  `db:"name" json:"name"`
	Category      string  `db:"category" json:"category"`
	EquipmentType string  `db:"equipment_type" json:"equipment_type"`
	Stock         int64   `db:"stock" json:"stock"`
	Cost          float64 `db:"cost" json:"cost"`
	InvoiceNumber string  `db:"invoice_number" json:"invoice_number"`
}

// SoldSerialRecord is one entry of a tool's sold-serial history.
type SoldSerialRecord struct {
	Serial        string `json:"serial"`
	CustomerName  string `json:"customer_name"`
	SaleDate      string `json:"sale_date"`
	InvoiceNumber string `json:"invoice_number"`
}

// SerialPayload holds the backend's polymorphic serials field, which
// arrives either as a flat list of serial strings or as an object keyed by
// role name (receiver1, data_logger, external_radio, ...). Exactly one of
// List and Keyed is set after unmarshalling.
type SerialPayload struct {
	List  []string
	Keyed map[string]string
}

func (p *SerialPayload) UnmarshalJSON(data []byte) error {
	p.List = nil
	p.Keyed = nil
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &p.List)
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	p.Keyed = make(map[string]string, len(raw))
	for key, value := range raw {
		// Non-string values have never been observed upstream; skip them
		// rather than fail the whole record.
		if s, ok := value.(string); ok {
			p.Keyed[key] = s
		}
	}
	return nil
}

func (p SerialPayload) MarshalJSON() ([]byte, error) {
	if p.Keyed != nil {
		return json.Marshal(p.Keyed)
	}
	if p.List == nil {
		return []byte("null"), nil
	}
	return json.Marshal(p.List)
}

// Empty reports whether the payload carries no serial data at all.
func (p SerialPayload) Empty() bool {
	return len(p.List) == 0 && len(p.Keyed) == 0
}
