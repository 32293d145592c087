// Package license mints purchase credentials at settlement and tracks how
// buyers activate and download them.
package license

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

const (
	keyPrefix   = "DM"
	keyGroups   = 4
	groupLength = 5
	maxAttempts = 3
)

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewKey returns a random key such as DM-7KQ2M-XJ4PA-9ZC3R-TT6WB.
func NewKey() (string, error) {
	raw := make([]byte, keyGroups*groupLength*5/8)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}

	encoded := keyEncoding.EncodeToString(raw)
	groups := make([]string, 0, keyGroups+1)
	groups = append(groups, keyPrefix)
	for i := range keyGroups {
		groups = append(groups, encoded[i*groupLength:(i+1)*groupLength])
	}
	return strings.Join(groups, "-"), nil
}

type Issuer struct {
	repo   *Repository
	newKey func() (string, error)
}

func NewIssuer(repo *Repository) *Issuer {
	return &Issuer{repo: repo, newKey: NewKey}
}

// Issue mints the license for one purchased product on q. The license
// expires after the product's license period when it defines one.
func (i *Issuer) Issue(ctx context.Context, q database.Querier, order *domain.Order, product domain.Product, now time.Time) (*domain.License, error) {
	l := &domain.License{
		ID:             uuid.NewString(),
		BuyerID:        order.BuyerID,
		ProductID:      product.ID,
		OrderID:        order.ID,
		Status:         domain.LicenseActive,
		Activations:    []domain.Activation{},
		MaxActivations: max(product.MaxActivations, 1),
		CreatedAt:      now,
	}
	if product.LicenseDays != nil {
		expires := now.AddDate(0, 0, *product.LicenseDays)
		l.ExpiresAt = &expires
	}

	for range maxAttempts {
		key, err := i.newKey()
		if err != nil {
			return nil, err
		}
		l.Key = key

		err = i.repo.Insert(ctx, q, l)
		if errors.Is(err, errDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return l, nil
	}

	return nil, fmt.Errorf("license key collided %d times", maxAttempts)
}
