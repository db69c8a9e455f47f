package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for duplicate primary keys.
const uniqueViolation = "23505"

// FillStore implements domain.FillStore using PostgreSQL. The fills journal
// is keyed by order ID, mirroring the ledger's dedup rule, so replaying the
// journal at startup reproduces the exact same positions.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert journals a confirmed fill. Inserting the same order ID twice returns
// domain.ErrDuplicateFill.
func (s *FillStore) Insert(ctx context.Context, fill domain.Fill) error {
	const query = `
		INSERT INTO fills (order_id, symbol, side, size, price, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		fill.OrderID, fill.Symbol, string(fill.Side),
		fill.Size.String(), fill.Price.String(), fill.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateFill
		}
		return fmt.Errorf("postgres: insert fill %s: %w", fill.OrderID, err)
	}
	return nil
}

const fillSelectCols = `order_id, symbol, side, size::text, price::text, filled_at`

func scanFill(scanner interface{ Scan(dest ...any) error }) (domain.Fill, error) {
	var f domain.Fill
	var side, sizeStr, priceStr string

	err := scanner.Scan(&f.OrderID, &f.Symbol, &side, &sizeStr, &priceStr, &f.Timestamp)
	if err != nil {
		return domain.Fill{}, err
	}

	f.Side = domain.Side(side)
	if f.Size, err = decimal.NewFromString(sizeStr); err != nil {
		return domain.Fill{}, fmt.Errorf("parse size: %w", err)
	}
	if f.Price, err = decimal.NewFromString(priceStr); err != nil {
		return domain.Fill{}, fmt.Errorf("parse price: %w", err)
	}
	return f, nil
}

// ListBySymbol returns fills for a symbol in fill order (oldest first).
func (s *FillStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Fill, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `SELECT ` + fillSelectCols + `
		FROM fills
		WHERE symbol = $1 AND ($2::timestamptz IS NULL OR filled_at >= $2)
		ORDER BY filled_at ASC
		LIMIT $3 OFFSET $4`

	rows, err := s.pool.Query(ctx, query, symbol, opts.Since, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills %s: %w", symbol, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills %s: %w", symbol, err)
	}
	return fills, nil
}

// ListAll returns every journaled fill in fill order, for ledger replay at
// startup.
func (s *FillStore) ListAll(ctx context.Context) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills ORDER BY filled_at ASC, order_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list all fills: %w", err)
	}
	return fills, nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
