package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// OrderStore journals every order the executor issues.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Order, error)
}

// FillStore journals confirmed fills. The ledger can be rebuilt from this
// journal at startup.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Fill, error)
	ListAll(ctx context.Context) ([]Fill, error)
}

// DecisionStore journals every risk decision, approved or rejected, so that
// no signal disappears without an audit trail.
type DecisionStore interface {
	Insert(ctx context.Context, decision RiskDecision) error
	ListRecent(ctx context.Context, limit int) ([]RiskDecision, error)
	CountSince(ctx context.Context, outcome RiskOutcome, since time.Time) (int64, error)
}
