// Package assignment orchestrates "assign one physical unit from a named
// equipment group" and guarantees the result is structurally complete
// before it may enter a sale draft.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"surveydesk/m/domain"
	"surveydesk/m/internal/serials"
	"surveydesk/m/internal/upstream"
)

// Reason classifies why an assignment failed.
type Reason int

const (
	// ReasonTransport covers network and upstream failures.
	ReasonTransport Reason = iota
	// ReasonNoStock means the backend has no available unit in the group.
	ReasonNoStock
	// ReasonIncompleteSet means local validation rejected a structurally
	// incomplete combo assignment.
	ReasonIncompleteSet
)

// Error is the single error value the reconciler surfaces; Message is
// written for the staff member, not for logs.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// GroupRef identifies the equipment group a unit is requested from.
type GroupRef struct {
	Name          string
	Category      string
	EquipmentType string
}

// Reconciler resolves one unit assignment against two upstream responses.
type Reconciler struct {
	upstream *upstream.Client
}

// New constructs a Reconciler.
func New(client *upstream.Client) *Reconciler {
	return &Reconciler{upstream: client}
}

// Assign asks the backend for a random available unit of the group, fetches
// the full tool record for the assigned unit, and reconciles the two
// responses into one canonical result. There is no retry and no
// compensating transaction: if the fetch fails after a successful assign,
// the unit stays marked assigned upstream and the orphan is only logged.
// Releasing it is a policy the backend owner has not defined.
func (r *Reconciler) Assign(ctx context.Context, token string, group GroupRef) (domain.AssignmentResult, error) {
	assigned, err := r.upstream.AssignRandomUnit(ctx, token, group.Name)
	if err != nil {
		if errors.Is(err, upstream.ErrNoStock) {
			return domain.AssignmentResult{}, &Error{
				Reason:  ReasonNoStock,
				Message: fmt.Sprintf("no units of %q are available in stock", group.Name),
				Err:     err,
			}
		}
		return domain.AssignmentResult{}, &Error{
			Reason:  ReasonTransport,
			Message: fmt.Sprintf("could not assign a unit of %q, please try again", group.Name),
			Err:     err,
		}
	}

	tool, err := r.upstream.Tool(ctx, token, assigned.ToolID)
	if err != nil {
		log.Printf("unit %d of %q is assigned upstream but its record could not be fetched: %v", assigned.ToolID, group.Name, err)
		return domain.AssignmentResult{}, &Error{
			Reason:  ReasonTransport,
			Message: fmt.Sprintf("assigned unit of %q could not be verified, please try again", group.Name),
			Err:     err,
		}
	}

	set := merge(serials.Normalize(tool.Serials, group.EquipmentType), assigned, group.EquipmentType)
	if verr := validate(set, group); verr != nil {
		log.Printf("unit %d of %q is assigned upstream but failed validation: %s", assigned.ToolID, group.Name, verr.Message)
		return domain.AssignmentResult{}, verr
	}

	result := domain.AssignmentResult{
		ToolID:              assigned.ToolID,
		ToolName:            assigned.ToolName,
		Category:            group.Category,
		SetType:             assigned.SetType,
		Cost:                assigned.Cost,
		SerialSet:           set.Receivers,
		DataloggerSerial:    set.Datalogger,
		ExternalRadioSerial: set.ExternalRadio,
		SaleInvoiceNumber:   assigned.InvoiceNumber,
		ImportInvoiceNumber: tool.InvoiceNumber,
	}
	if result.ToolName == "" {
		result.ToolName = tool.Name
	}
	if result.SetType == "" {
		result.SetType = group.EquipmentType
	}
	if result.Cost == 0 {
		result.Cost = tool.Cost
	}
	return result, nil
}

// merge reconciles the two descriptions of the assigned unit. The set
// normalized from the full tool record wins; the raw assign response is
// fallback only, filling a receiver set the record could not produce and
// companion serials still missing afterwards.
func merge(fromRecord serials.NormalizedSet, assigned upstream.AssignResponse, equipmentType string) serials.NormalizedSet {
	out := fromRecord
	if len(out.Receivers) == 0 && len(assigned.SerialSet) > 0 {
		fallback := serials.Normalize(domain.SerialPayload{List: assigned.SerialSet}, equipmentType)
		out.Receivers = fallback.Receivers
		if out.Datalogger == "" {
			out.Datalogger = fallback.Datalogger
		}
		if out.ExternalRadio == "" {
			out.ExternalRadio = fallback.ExternalRadio
		}
	}
	if out.Datalogger == "" {
		out.Datalogger = assigned.DataloggerSerial
	}
	if out.ExternalRadio == "" {
		out.ExternalRadio = assigned.ExternalRadioSerial
	}
	return out
}

// validate enforces the combo invariant: a "Base & Rover Combo" sale line
// must reference two receivers, a datalogger and an external radio. A sale
// is never allowed to hold an incomplete physical bundle.
func validate(set serials.NormalizedSet, group GroupRef) *Error {
	if group.Category == domain.CategoryReceiver && group.EquipmentType == domain.TypeBaseRoverCombo {
		var missing string
		switch {
		case len(set.Receivers) < 2:
			missing = "Receiver"
		case set.Datalogger == "":
			missing = "Data Logger"
		case set.ExternalRadio == "":
			missing = "External Radio"
		default:
			return nil
		}
		return &Error{
			Reason:  ReasonIncompleteSet,
			Message: fmt.Sprintf("assigned set for %q is incomplete: missing %s serial", group.Name, missing),
		}
	}

	if set.Empty() {
		return &Error{
			Reason:  ReasonIncompleteSet,
			Message: fmt.Sprintf("assigned unit of %q carries no serial numbers", group.Name),
		}
	}
	return nil
}
