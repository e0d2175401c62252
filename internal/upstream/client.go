// Package upstream is the typed client for the retailer REST backend. It
// owns no business rules; every call forwards the caller's bearer token and
// honours the request context.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"surveydesk/m/domain"
)

var (
	// ErrNoStock means the backend reported stock exhaustion for the
	// requested group.
	ErrNoStock = errors.New("no available units in stock")
	// ErrNotFound means the backend has no such record.
	ErrNotFound = errors.New("record not found")
	// ErrUnauthorized means the backend rejected the bearer token.
	ErrUnauthorized = errors.New("upstream rejected credentials")
)

// Client talks to the retailer backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client for the given base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// AssignResponse is the backend's answer to an assign-random-unit request.
type AssignResponse struct {
	ToolID              int64    `json:"tool_id"`
	ToolName            string   `json:"tool_name"`
	SerialSet           []string `json:"serial_set"`
	SetType             string   `json:"set_type"`
	Cost                float64  `json:"cost"`
	DataloggerSerial    string   `json:"datalogger_serial"`
	ExternalRadioSerial string   `json:"external_radio_serial"`
	InvoiceNumber       string   `json:"invoice_number"`
}

// SaleRequest is the payload for creating a sale upstream.
type SaleRequest struct {
	CustomerID    int64              `json:"customer_id,omitempty"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	CustomerState string             `json:"customer_state,omitempty"`
	Items         []domain.SaleItem  `json:"items"`
	TotalCost     float64            `json:"total_cost"`
	Payment       domain.PaymentPlan `json:"payment"`
	SendBill      bool               `json:"send_bill"`
}

// GroupedTools lists available equipment groups, optionally filtered by
// category and equipment type.
func (c *Client) GroupedTools(ctx context.Context, token, category, equipmentType string) ([]domain.GroupSummary, error) {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if equipmentType != "" {
		query.Set("equipment_type", equipmentType)
	}
	var groups []domain.GroupSummary
	if err := c.do(ctx, token, http.MethodGet, "/tools/grouped", query, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AssignRandomUnit asks the backend to assign one available unit of the
// named group to the current sale. The backend treats this as atomic; the
// console never coordinates concurrent assignments itself.
func (c *Client) AssignRandomUnit(ctx context.Context, token, groupName string) (AssignResponse, error) {
	var assigned AssignResponse
	body := map[string]string{"name": groupName}
	if err := c.do(ctx, token, http.MethodPost, "/tools/assign", nil, body, &assigned); err != nil {
		return AssignResponse{}, err
	}
	return assigned, nil
}

// Tool fetches one tool's full record, including the polymorphic serials
// field.
func (c *Client) Tool(ctx context.Context, token string, id int64) (domain.Tool, error) {
	var tool domain.Tool
	if err := c.do(ctx, token, http.MethodGet, fmt.Sprintf("/tools/%d", id), nil, nil, &tool); err != nil {
		return domain.Tool{}, err
	}
	return tool, nil
}

// SoldSerials fetches the sold-serial history for a tool.
func (c *Client) SoldSerials(ctx context.Context, token string, id int64) ([]domain.SoldSerialRecord, error) {
	var records []domain.SoldSerialRecord
	if err := c.do(ctx, token, http.MethodGet, fmt.Sprintf("/tools/%d/sold-serials", id), nil, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Customers fetches the full customer list.
func (c *Client) Customers(ctx context.Context, token string) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := c.do(ctx, token, http.MethodGet, "/customers", nil, nil, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

// CreateCustomer registers a new customer upstream.
func (c *Client) CreateCustomer(ctx context.Context, token string, customer domain.Customer) (domain.Customer, error) {
	var created domain.Customer
	if err := c.do(ctx, token, http.MethodPost, "/customers", nil, customer, &created); err != nil {
		return domain.Customer{}, err
	}
	return created, nil
}

// UpdateCustomer updates an existing customer upstream.
func (c *Client) UpdateCustomer(ctx context.Context, token string, customer domain.Customer) (domain.Customer, error) {
	var updated domain.Customer
	path := fmt.Sprintf("/customers/%d", customer.ID)
	if err := c.do(ctx, token, http.MethodPut, path, nil, customer, &updated); err != nil {
		return domain.Customer{}, err
	}
	return updated, nil
}

// CreateSale submits a composed sale.
func (c *Client) CreateSale(ctx context.Context, token string, sale SaleRequest) (domain.Sale, error) {
	var created domain.Sale
	if err := c.do(ctx, token, http.MethodPost, "/sales", nil, sale, &created); err != nil {
		return domain.Sale{}, err
	}
	return created, nil
}

// Sales lists sales, passing date/status filters through verbatim.
func (c *Client) Sales(ctx context.Context, token string, filters url.Values) ([]domain.Sale, error) {
	var sales []domain.Sale
	if err := c.do(ctx, token, http.MethodGet, "/sales", filters, nil, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// UpdatePaymentStatus moves a sale to a new payment status.
func (c *Client) UpdatePaymentStatus(ctx context.Context, token string, saleID int64, status string) error {
	path := fmt.Sprintf("/sales/%d/payment-status", saleID)
	body := map[string]string{"status": status}
	return c.do(ctx, token, http.MethodPut, path, nil, body, nil)
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// apiError maps an error response to a sentinel where the status or message
// identifies one. The backend reports stock exhaustion as a 409.
func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	message := payload.Error
	if message == "" {
		message = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case resp.StatusCode == http.StatusConflict,
		strings.Contains(strings.ToLower(message), "out of stock"),
		strings.Contains(strings.ToLower(message), "no available"):
		return fmt.Errorf("%w: %s", ErrNoStock, message)
	}
	return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, message)
}
