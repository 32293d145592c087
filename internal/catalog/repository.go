// Package catalog is the read side of the product and vendor collaborators
// the settlement core depends on. Catalog CRUD lives elsewhere; this package
// only resolves prices, vendors and contact addresses and bumps counters.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindProducts resolves every id in ids. Inactive or unknown products fail
// the whole lookup with ErrProductNotFound.
func (r *Repository) FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.vendor_id, p.title, p.price, p.sale_price,
		       p.max_activations, p.license_days, p.active, v.commission_rate
		FROM products p
		LEFT JOIN vendor_profiles v ON v.user_id = p.vendor_id
		WHERE p.id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
	}

	return products, nil
}

// ProductsTx loads products on q regardless of their active flag: a product
// delisted after checkout still has to be licensed at settlement.
func (r *Repository) ProductsTx(ctx context.Context, q database.Querier, ids []string) (map[string]domain.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.vendor_id, p.title, p.price, p.sale_price,
		       p.max_activations, p.license_days, p.active, NULL::NUMERIC
		FROM products p
		WHERE p.id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	return products, rows.Err()
}

func scanProduct(rows *sql.Rows) (domain.Product, error) {
	var (
		p           domain.Product
		salePrice   decimal.NullDecimal
		licenseDays sql.NullInt64
		commission  decimal.NullDecimal
	)
	if err := rows.Scan(&p.ID, &p.VendorID, &p.Title, &p.Price, &salePrice,
		&p.MaxActivations, &licenseDays, &p.Active, &commission); err != nil {
		return p, err
	}
	if salePrice.Valid {
		p.SalePrice = &salePrice.Decimal
	}
	if licenseDays.Valid {
		days := int(licenseDays.Int64)
		p.LicenseDays = &days
	}
	if commission.Valid {
		p.CommissionRate = &commission.Decimal
	}
	return p, nil
}

// IncrementSales bumps the sales counter of each product. Callers treat it as
// best-effort.
func (r *Repository) IncrementSales(ctx context.Context, ids []string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products SET sales_count = sales_count + 1
		WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}

func (r *Repository) IncrementDownloads(ctx context.Context, q database.Querier, productID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE products SET download_count = download_count + 1
		WHERE id = $1
	`, productID)
	return err
}

// Vendor returns the vendor's payout profile and contact address.
func (r *Repository) Vendor(ctx context.Context, vendorID string) (*domain.VendorProfile, error) {
	profile := &domain.VendorProfile{UserID: vendorID}

	var (
		commission decimal.NullDecimal
		method     sql.NullString
		details    []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT u.email, v.commission_rate, v.payout_method, v.payout_details
		FROM users u
		LEFT JOIN vendor_profiles v ON v.user_id = u.id
		WHERE u.id = $1 AND u.role = 'vendor'
	`, vendorID).Scan(&profile.Email, &commission, &method, &details)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vendor %s: %w", vendorID, domain.ErrNotFound)
		}
		return nil, err
	}

	if commission.Valid {
		profile.CommissionRate = &commission.Decimal
	}
	profile.PayoutMethod = method.String
	if len(details) > 0 && string(details) != "null" {
		profile.PayoutDetails = json.RawMessage(details)
	}

	return profile, nil
}

// Email resolves a user's contact address. Unknown users yield an empty
// address so notification callers can skip them.
func (r *Repository) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}
