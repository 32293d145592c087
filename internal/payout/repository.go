package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

const payoutColumns = `id, vendor_id, amount, method, account_details, status,
	processed_at, processed_by, notes, created_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, q database.Querier, p *domain.Payout) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payouts (id, vendor_id, amount, method, account_details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.VendorID, p.Amount, p.Method, []byte(p.AccountDetails), p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	return r.get(ctx, r.db, id, "")
}

// GetForUpdate loads the payout on q and locks its row.
func (r *Repository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*domain.Payout, error) {
	return r.get(ctx, q, id, "FOR UPDATE")
}

func (r *Repository) get(ctx context.Context, q database.Querier, id, lock string) (*domain.Payout, error) {
	row := q.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1 `+lock, id)

	p, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

// Finish records the decision on a pending payout.
func (r *Repository) Finish(ctx context.Context, q database.Querier, p *domain.Payout) error {
	result, err := q.ExecContext(ctx, `
		UPDATE payouts SET status = $2, processed_at = $3, processed_by = $4, notes = $5
		WHERE id = $1 AND status = 'pending'
	`, p.ID, p.Status, p.ProcessedAt, p.ProcessedBy, p.Notes)
	if err != nil {
		return fmt.Errorf("finish payout: %w", err)
	}
	return database.RequireAffected(result, domain.ErrAlreadyProcessed)
}

func (r *Repository) ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]domain.Payout, error) {
	return r.list(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE vendor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, vendorID, limit, offset)
}

// ListByStatus returns payouts oldest first, the order an admin works
// through them.
func (r *Repository) ListByStatus(ctx context.Context, status domain.PayoutStatus, limit, offset int) ([]domain.Payout, error) {
	return r.list(ctx, `
		SELECT `+payoutColumns+`
		FROM payouts
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	payouts := []domain.Payout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}

	return payouts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayout(s scanner) (*domain.Payout, error) {
	var (
		p           domain.Payout
		details     []byte
		processedAt sql.NullTime
		processedBy sql.NullString
		notes       sql.NullString
	)

	err := s.Scan(&p.ID, &p.VendorID, &p.Amount, &p.Method, &details, &p.Status,
		&processedAt, &processedBy, &notes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.AccountDetails = details
	if processedAt.Valid {
		at := processedAt.Time
		p.ProcessedAt = &at
	}
	p.ProcessedBy = processedBy.String
	p.Notes = notes.String
	return &p, nil
}
