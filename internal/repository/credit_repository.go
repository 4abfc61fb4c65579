package repository

import (
	"context"
	"fmt"

	"github.com/zajavka/zajavka-bot/internal/repository/base"
)

type CreditRepository struct {
	q base.Querier
}

func NewCreditRepository(q base.Querier) *CreditRepository {
	return &CreditRepository{q: q}
}

// Balance reads the member's current balance without locking; missing row
// means zero.
func (r *CreditRepository) Balance(ctx context.Context, memberID int64) (int, error) {
	query := `SELECT balance FROM credits WHERE participant_id = $1`

	var balance int
	err := r.q.QueryRow(ctx, query, memberID).Scan(&balance)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get credit balance: %w", err)
	}

	return balance, nil
}

// BalanceForUpdate reads the balance under a row lock. Must be called inside
// a transaction; it serializes concurrent claims by the same member so two of
// them cannot both observe balance = 1.
func (r *CreditRepository) BalanceForUpdate(ctx context.Context, memberID int64) (int, error) {
	query := `SELECT balance FROM credits WHERE participant_id = $1 FOR UPDATE`

	var balance int
	err := r.q.QueryRow(ctx, query, memberID).Scan(&balance)
	if err != nil {
		if base.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get credit balance for update: %w", err)
	}

	return balance, nil
}

// Add upserts the balance by delta. The balance >= 0 check constraint backs
// the engine's own no_credit guard.
func (r *CreditRepository) Add(ctx context.Context, memberID int64, delta int) error {
	query := `
		INSERT INTO credits (participant_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (participant_id)
		DO UPDATE SET balance = credits.balance + $2, updated_at = now()
	`

	if _, err := r.q.Exec(ctx, query, memberID, delta); err != nil {
		return fmt.Errorf("add credit: %w", err)
	}

	return nil
}

// TotalOutstanding sums all positive balances, for the instructor stats view.
func (r *CreditRepository) TotalOutstanding(ctx context.Context) (int, error) {
	query := `SELECT coalesce(sum(balance), 0) FROM credits`

	var total int
	if err := r.q.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum credits: %w", err)
	}

	return total, nil
}
