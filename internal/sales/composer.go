// Package sales accumulates validated sale line items into draft sales.
// A draft lives only in memory; nothing is persisted until the single
// submit call succeeds upstream.
package sales

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"surveydesk/m/domain"
	"surveydesk/m/internal/upstream"
)

var (
	// ErrDraftNotFound means the draft id is unknown or the draft expired.
	ErrDraftNotFound = errors.New("sale draft not found")
	// ErrEmptyDraft means a submit was attempted with no line items.
	ErrEmptyDraft = errors.New("sale draft has no items")
)

// draftTTL bounds how long an abandoned draft is kept before the sweep
// drops it.
const draftTTL = 2 * time.Hour

// Draft is an in-progress sale: a customer snapshot, accumulated line
// items and a payment plan.
type Draft struct {
	ID        string             `json:"id"`
	Customer  domain.Customer    `json:"customer"`
	Items     []domain.SaleItem  `json:"items"`
	Payment   domain.PaymentPlan `json:"payment"`
	TotalCost float64            `json:"total_cost"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Composer owns the draft registry and the one submit path to the backend.
type Composer struct {
	upstream *upstream.Client

	mu     sync.Mutex
	drafts map[string]*Draft
}

// NewComposer constructs a Composer.
func NewComposer(client *upstream.Client) *Composer {
	return &Composer{
		upstream: client,
		drafts:   make(map[string]*Draft),
	}
}

// Open starts a new draft for the given customer snapshot.
func (c *Composer) Open(customer domain.Customer) Draft {
	now := time.Now()
	draft := &Draft{
		ID:        newDraftID(),
		Customer:  customer,
		Payment:   domain.PaymentPlan{Method: domain.PaymentFull},
		CreatedAt: now,
		UpdatedAt: now,
	}

	c.mu.Lock()
	c.sweepLocked(now)
	c.drafts[draft.ID] = draft
	c.mu.Unlock()
	return snapshot(draft)
}

// Get returns a copy of the draft.
func (c *Composer) Get(id string) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draft, err := c.lookupLocked(id)
	if err != nil {
		return Draft{}, err
	}
	return snapshot(draft), nil
}

// AddItem appends a reconciled line item to the draft.
func (c *Composer) AddItem(id string, item domain.SaleItem) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draft, err := c.lookupLocked(id)
	if err != nil {
		return Draft{}, err
	}
	draft.Items = append(draft.Items, item)
	draft.UpdatedAt = time.Now()
	return snapshot(draft), nil
}

// RemoveItem drops the line item at index.
func (c *Composer) RemoveItem(id string, index int) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draft, err := c.lookupLocked(id)
	if err != nil {
		return Draft{}, err
	}
	if index < 0 || index >= len(draft.Items) {
		return Draft{}, fmt.Errorf("no line item at position %d", index)
	}
	draft.Items = append(draft.Items[:index], draft.Items[index+1:]...)
	draft.UpdatedAt = time.Now()
	return snapshot(draft), nil
}

// SetPayment validates and applies a payment plan against the current
// total.
func (c *Composer) SetPayment(id string, plan domain.PaymentPlan) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	draft, err := c.lookupLocked(id)
	if err != nil {
		return Draft{}, err
	}

	switch plan.Method {
	case domain.PaymentFull:
		plan.Deposit = 0
		plan.Months = 0
	case domain.PaymentInstallment:
		if plan.Deposit <= 0 {
			return Draft{}, errors.New("installment plan requires a deposit")
		}
		if plan.Months <= 0 {
			return Draft{}, errors.New("installment plan requires a number of months")
		}
		if total := total(draft.Items); plan.Deposit > total {
			return Draft{}, fmt.Errorf("deposit %.2f exceeds sale total %.2f", plan.Deposit, total)
		}
	default:
		return Draft{}, fmt.Errorf("unknown payment method %q", plan.Method)
	}

	draft.Payment = plan
	draft.UpdatedAt = time.Now()
	return snapshot(draft), nil
}

// Abandon discards a draft. The backend is not told about units already
// assigned to its line items; see the reconciler notes.
func (c *Composer) Abandon(id string) {
	c.mu.Lock()
	delete(c.drafts, id)
	c.mu.Unlock()
}

// Submit sends the draft upstream exactly once. The draft is discarded on
// success and kept untouched on failure so the staff member can retry.
func (c *Composer) Submit(ctx context.Context, token, id string, sendBill bool) (domain.Sale, error) {
	c.mu.Lock()
	draft, err := c.lookupLocked(id)
	if err != nil {
		c.mu.Unlock()
		return domain.Sale{}, err
	}
	if len(draft.Items) == 0 {
		c.mu.Unlock()
		return domain.Sale{}, ErrEmptyDraft
	}
	request := upstream.SaleRequest{
		CustomerID:    draft.Customer.ID,
		CustomerName:  draft.Customer.Name,
		CustomerPhone: draft.Customer.Phone,
		CustomerState: draft.Customer.State,
		Items:         append([]domain.SaleItem(nil), draft.Items...),
		TotalCost:     total(draft.Items),
		Payment:       draft.Payment,
		SendBill:      sendBill,
	}
	c.mu.Unlock()

	sale, err := c.upstream.CreateSale(ctx, token, request)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("submit sale: %w", err)
	}

	c.mu.Lock()
	delete(c.drafts, id)
	c.mu.Unlock()
	return sale, nil
}

func (c *Composer) lookupLocked(id string) (*Draft, error) {
	draft, ok := c.drafts[id]
	if !ok || time.Since(draft.UpdatedAt) > draftTTL {
		if ok {
			delete(c.drafts, id)
		}
		return nil, ErrDraftNotFound
	}
	return draft, nil
}

func (c *Composer) sweepLocked(now time.Time) {
	for id, draft := range c.drafts {
		if now.Sub(draft.UpdatedAt) > draftTTL {
			delete(c.drafts, id)
		}
	}
}

func total(items []domain.SaleItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Cost
	}
	return sum
}

func snapshot(draft *Draft) Draft {
	out := *draft
	out.Items = append([]domain.SaleItem(nil), draft.Items...)
	out.TotalCost = total(draft.Items)
	return out
}

func newDraftID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
