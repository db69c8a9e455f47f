package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the order lifecycle. Filled, cancelled, and failed are
// terminal; no transition out of a terminal state is permitted.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// orderTransitions defines the allowed order state machine:
// created -> submitted -> {filled | cancelled | failed}.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:   {OrderStatusSubmitted, OrderStatusFailed},
	OrderStatusSubmitted: {OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed},
}

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusFailed
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order represents a single order issued by the execution engine. Order IDs
// are UUIDs and never reused; downstream reconciliation keys on them.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Size        decimal.Decimal
	Price       decimal.Decimal
	Status      OrderStatus
	Strategy    string
	SignalID    string
	ExchangeID  string // exchange-assigned ID, live mode only
	CreatedAt   time.Time
	SubmittedAt *time.Time
	FilledAt    *time.Time
}

// Transition moves the order to the next status, enforcing the state machine.
// It returns ErrOrderTerminal when the current status is terminal and a
// descriptive error for any other disallowed transition.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("order %s: %s -> %s: %w", o.ID, o.Status, next, ErrOrderTerminal)
	}
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("order %s: illegal transition %s -> %s", o.ID, o.Status, next)
	}
	o.Status = next
	switch next {
	case OrderStatusSubmitted:
		t := at
		o.SubmittedAt = &t
	case OrderStatusFilled:
		t := at
		o.FilledAt = &t
	}
	return nil
}

// Fill is the confirmation that an order executed. It is the only event that
// mutates a Position, and it is deduplicated by OrderID.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      Side
	Size      decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// ExecutionResult is the outcome of executing an approved signal. It is
// forwarded to the notification and metrics sinks.
type ExecutionResult struct {
	OrderID  string
	SignalID string
	Strategy string
	Symbol   string
	Side     Side
	Size     decimal.Decimal
	Price    decimal.Decimal
	Status   OrderStatus
	Detail   string
	FilledAt time.Time
}

// Filled reports whether the execution produced a confirmed fill.
func (r ExecutionResult) Filled() bool {
	return r.Status == OrderStatusFilled
}
