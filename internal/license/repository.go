package license

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

const licenseKeyConstraint = "licenses_license_key_key"

var errDuplicateKey = errors.New("duplicate license key")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const licenseColumns = `
	id, buyer_id, product_id, order_id, license_key, status, activations,
	max_activations, download_count, expires_at, created_at`

func (r *Repository) Insert(ctx context.Context, q database.Querier, l *domain.License) error {
	activations, err := json.Marshal(l.Activations)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO licenses (id, buyer_id, product_id, order_id, license_key, status,
			activations, max_activations, download_count, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ON CONSTRAINT `+licenseKeyConstraint+` DO NOTHING
	`, l.ID, l.BuyerID, l.ProductID, l.OrderID, l.Key, l.Status, activations,
		l.MaxActivations, l.DownloadCount, l.ExpiresAt, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert license: %w", err)
	}
	// a key collision must not abort the surrounding transaction
	return database.RequireAffected(result, errDuplicateKey)
}

func (r *Repository) ByKey(ctx context.Context, key string) (*domain.License, error) {
	return r.byKey(ctx, r.db, key, "")
}

// ByKeyForUpdate loads a license on q and locks it.
func (r *Repository) ByKeyForUpdate(ctx context.Context, q database.Querier, key string) (*domain.License, error) {
	return r.byKey(ctx, q, key, "FOR UPDATE")
}

func (r *Repository) byKey(ctx context.Context, q database.Querier, key, lock string) (*domain.License, error) {
	row := q.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE license_key = $1 `+lock, key)

	l, err := scanLicense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("license: %w", domain.ErrNotFound)
	}
	return l, err
}

func (r *Repository) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]domain.License, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE buyer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, buyerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	licenses := []domain.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, *l)
	}

	return licenses, rows.Err()
}

// ListByOrder returns the licenses minted for an order in issue order.
func (r *Repository) ListByOrder(ctx context.Context, q database.Querier, orderID string) ([]domain.License, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	licenses := []domain.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, *l)
	}

	return licenses, rows.Err()
}

// Save writes back the mutable fields of l.
func (r *Repository) Save(ctx context.Context, q database.Querier, l *domain.License) error {
	activations, err := json.Marshal(l.Activations)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE licenses
		SET status = $2, activations = $3, download_count = $4
		WHERE id = $1
	`, l.ID, l.Status, activations, l.DownloadCount)
	if err != nil {
		return fmt.Errorf("save license: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(s scanner) (*domain.License, error) {
	var (
		l           domain.License
		activations []byte
		expiresAt   sql.NullTime
	)
	if err := s.Scan(&l.ID, &l.BuyerID, &l.ProductID, &l.OrderID, &l.Key, &l.Status, &activations,
		&l.MaxActivations, &l.DownloadCount, &expiresAt, &l.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(activations, &l.Activations); err != nil {
		return nil, fmt.Errorf("decode activations: %w", err)
	}
	if l.Activations == nil {
		l.Activations = []domain.Activation{}
	}
	if expiresAt.Valid {
		l.ExpiresAt = &expiresAt.Time
	}

	return &l, nil
}
