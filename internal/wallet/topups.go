package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

// TopUps stores wallet funding attempts made through a payment provider.
type TopUps struct {
	db *sql.DB
}

func NewTopUps(db *sql.DB) *TopUps {
	return &TopUps{db: db}
}

func (t *TopUps) Create(ctx context.Context, userID string, amount decimal.Decimal, method domain.PaymentMethod) (*domain.TopUp, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if !method.Provider() {
		return nil, domain.Invalid("method", "top-ups require gateway-A or gateway-B")
	}

	topUp := &domain.TopUp{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Status:    domain.TopUpPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO topups (id, user_id, amount, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, topUp.ID, topUp.UserID, topUp.Amount, topUp.Method, topUp.Status, topUp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert top-up: %w", err)
	}

	return topUp, nil
}

func (t *TopUps) Get(ctx context.Context, id string) (*domain.TopUp, error) {
	return t.get(ctx, t.db, id, "")
}

// GetForUpdate loads the top-up on q and locks its row.
func (t *TopUps) GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.TopUp, error) {
	return t.get(ctx, q, id, "FOR UPDATE")
}

func (t *TopUps) get(ctx context.Context, q database.Querier, id, lock string) (*domain.TopUp, error) {
	var (
		topUp       domain.TopUp
		reference   sql.NullString
		completedAt sql.NullTime
	)

	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, amount, method, status, payment_reference, created_at, completed_at
		FROM topups
		WHERE id = $1 `+lock, id).Scan(&topUp.ID, &topUp.UserID, &topUp.Amount, &topUp.Method,
		&topUp.Status, &reference, &topUp.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("top-up %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	topUp.PaymentReference = reference.String
	if completedAt.Valid {
		topUp.CompletedAt = &completedAt.Time
	}
	return &topUp, nil
}

// MarkSuccess completes a top-up that is not yet successful.
func (t *TopUps) MarkSuccess(ctx context.Context, q database.Querier, id, reference string, at time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE topups SET status = 'success', payment_reference = $2, completed_at = $3
		WHERE id = $1 AND status <> 'success'
	`, id, reference, at)
	if err != nil {
		return fmt.Errorf("complete top-up: %w", err)
	}
	return database.RequireAffected(result, domain.ErrAlreadyProcessed)
}
