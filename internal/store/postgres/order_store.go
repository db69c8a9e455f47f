package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order into the journal.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, symbol, side, size, price, status, strategy, signal_id,
			exchange_id, created_at, submitted_at, filled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, NOW()
		)`

	var exchangeID *string
	if o.ExchangeID != "" {
		exchangeID = &o.ExchangeID
	}

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Symbol, string(o.Side),
		o.Size.String(), o.Price.String(),
		string(o.Status), o.Strategy, o.SignalID,
		exchangeID, o.CreatedAt, o.SubmittedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status of an existing order and sets the
// corresponding timestamp field if applicable.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	var query string
	switch status {
	case domain.OrderStatusSubmitted:
		query = `UPDATE orders SET status = $1, submitted_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.OrderStatusFilled:
		query = `UPDATE orders SET status = $1, filled_at = NOW(), updated_at = NOW() WHERE id = $2`
	default:
		query = `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, symbol, side, size::text, price::text, status,
	strategy, signal_id, exchange_id, created_at, submitted_at, filled_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status, sizeStr, priceStr string
	var exchangeID *string

	err := scanner.Scan(
		&o.ID, &o.Symbol, &side, &sizeStr, &priceStr, &status,
		&o.Strategy, &o.SignalID, &exchangeID,
		&o.CreatedAt, &o.SubmittedAt, &o.FilledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	if exchangeID != nil {
		o.ExchangeID = *exchangeID
	}
	if o.Size, err = decimal.NewFromString(sizeStr); err != nil {
		return domain.Order{}, fmt.Errorf("parse size: %w", err)
	}
	if o.Price, err = decimal.NewFromString(priceStr); err != nil {
		return domain.Order{}, fmt.Errorf("parse price: %w", err)
	}
	return o, nil
}

// GetByID retrieves an order by its ID.
// It returns domain.ErrNotFound when no such order exists.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListBySymbol returns orders for a symbol, newest first.
func (s *OrderStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + orderSelectCols + `
		FROM orders
		WHERE symbol = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := s.pool.Query(ctx, query, symbol, opts.Since, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", symbol, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", symbol, err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
