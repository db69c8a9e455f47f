package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quantbot/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL. Every risk
// decision is journaled, approved or rejected, so no signal disappears
// without an audit trail.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Insert journals one risk decision.
func (s *DecisionStore) Insert(ctx context.Context, d domain.RiskDecision) error {
	const query = `
		INSERT INTO risk_decisions (
			signal_id, strategy, symbol, side, size, price,
			outcome, reason, detail, adjusted_size, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var adjusted *string
	if !d.AdjustedSize.IsZero() {
		v := d.AdjustedSize.String()
		adjusted = &v
	}
	var reason *string
	if d.Reason != "" {
		v := string(d.Reason)
		reason = &v
	}

	_, err := s.pool.Exec(ctx, query,
		d.Signal.ID, d.Signal.Strategy, d.Signal.Symbol, string(d.Signal.Side),
		d.Signal.Size.String(), d.Signal.Price.String(),
		string(d.Outcome), reason, d.Detail, adjusted, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.Signal.ID, err)
	}
	return nil
}

// ListRecent returns the most recent decisions, newest first.
func (s *DecisionStore) ListRecent(ctx context.Context, limit int) ([]domain.RiskDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT signal_id, strategy, symbol, side, size::text, price::text,
			outcome, COALESCE(reason, ''), COALESCE(detail, ''),
			adjusted_size::text, decided_at
		FROM risk_decisions
		ORDER BY decided_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.RiskDecision
	for rows.Next() {
		var d domain.RiskDecision
		var side, outcome, reason, sizeStr, priceStr string
		var adjusted *string

		err := rows.Scan(
			&d.Signal.ID, &d.Signal.Strategy, &d.Signal.Symbol, &side,
			&sizeStr, &priceStr, &outcome, &reason, &d.Detail,
			&adjusted, &d.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}

		d.Signal.Side = domain.Side(side)
		d.Outcome = domain.RiskOutcome(outcome)
		d.Reason = domain.RejectReason(reason)
		if d.Signal.Size, err = decimal.NewFromString(sizeStr); err != nil {
			return nil, fmt.Errorf("postgres: parse decision size: %w", err)
		}
		if d.Signal.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("postgres: parse decision price: %w", err)
		}
		if adjusted != nil {
			if d.AdjustedSize, err = decimal.NewFromString(*adjusted); err != nil {
				return nil, fmt.Errorf("postgres: parse adjusted size: %w", err)
			}
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	return decisions, nil
}

// CountSince counts decisions with the given outcome decided at or after the
// given time.
func (s *DecisionStore) CountSince(ctx context.Context, outcome domain.RiskOutcome, since time.Time) (int64, error) {
	const query = `
		SELECT COUNT(*) FROM risk_decisions
		WHERE outcome = $1 AND decided_at >= $2`

	var count int64
	if err := s.pool.QueryRow(ctx, query, string(outcome), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count decisions: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.DecisionStore = (*DecisionStore)(nil)
