// Package record defines the typed schemas of the collections the console
// reads and mutates.
package record

import (
	"errors"
	"fmt"
	"strings"

	"tableflip.dev/shopdesk/pkg/apperr"
)

// Status is the workflow tag of an order or query.
type Status string

const (
	// StatusProcessing is the initial order status.
	StatusProcessing Status = "processing"
	// StatusDelivered is terminal for orders.
	StatusDelivered Status = "delivered"
	// StatusCancelled may move back to processing.
	StatusCancelled Status = "cancelled"

	// StatusPending is the initial query status.
	StatusPending Status = "pending"
	// StatusReplied is terminal for queries.
	StatusReplied Status = "replied"
)

// ErrSameStatus is returned by OrderTransition when nothing would change.
var ErrSameStatus = errors.New("record: status unchanged")

// OrderStatuses returns the statuses an order may hold.
func OrderStatuses() []Status {
	return []Status{
		StatusProcessing,
		StatusDelivered,
		StatusCancelled,
	}
}

// QueryStatuses returns the statuses a customer query may hold.
func QueryStatuses() []Status {
	return []Status{
		StatusPending,
		StatusReplied,
	}
}

// ParseOrderStatus converts raw input to an order Status.
func ParseOrderStatus(raw string) (Status, error) {
	return parse(raw, OrderStatuses())
}

// ParseQueryStatus converts raw input to a query Status.
func ParseQueryStatus(raw string) (Status, error) {
	return parse(raw, QueryStatuses())
}

func parse(raw string, allowed []Status) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, candidate := range allowed {
		if candidate == s {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("record: unknown status %q", raw)
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReplied
}

// Equal compares statuses case-insensitively.
func (s Status) Equal(other Status) bool {
	return strings.EqualFold(string(s), string(other))
}

func (s Status) String() string {
	return string(s)
}

// Transition describes an allowed status change.
type Transition struct {
	From Status
	To   Status
	// NeedsConfirm is set for irreversible transitions.
	NeedsConfirm bool
}

// OrderTransition validates an order status change. processing and
// cancelled move freely between each other; either may move to delivered
// once confirmed; delivered never moves again.
func OrderTransition(from, to Status) (Transition, error) {
	t := Transition{From: from, To: to}
	if from.Equal(to) {
		return t, ErrSameStatus
	}
	if from.Equal(StatusDelivered) {
		return t, apperr.New("order transition", apperr.ErrLockedState, "Delivered orders cannot be updated.")
	}
	parsed, err := ParseOrderStatus(string(to))
	if err != nil {
		return t, apperr.Wrap("order transition", apperr.ErrInvalidInput, err, fmt.Sprintf("Unknown order status %q.", to))
	}
	t.To = parsed
	t.NeedsConfirm = to.Equal(StatusDelivered)
	return t, nil
}
