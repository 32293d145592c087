package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

type DownloadCounter interface {
	IncrementDownloads(ctx context.Context, q database.Querier, productID string) error
}

type Service struct {
	db        *sql.DB
	repo      *Repository
	downloads DownloadCounter
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(db *sql.DB, repo *Repository, downloads DownloadCounter, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		downloads: downloads,
		logger:    logger,
		now:       time.Now,
	}
}

// mutate loads the license under a row lock, applies fn and saves it.
func (s *Service) mutate(ctx context.Context, key string, fn func(tx *sql.Tx, l *domain.License) error) (*domain.License, error) {
	var out *domain.License
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		l, err := s.repo.ByKeyForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(tx, l); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, l); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

var errExpired = domain.Invalid("license", "has expired")

// active rejects licenses that are revoked, expired, or past their expiry
// date.
func (s *Service) active(l *domain.License) error {
	if l.Status == domain.LicenseActive && l.Expired(s.now()) {
		return errExpired
	}
	if l.Status != domain.LicenseActive {
		return domain.Invalid("license", "is "+string(l.Status))
	}
	return nil
}

// expire persists the expired status outside the failed transaction.
func (s *Service) expire(ctx context.Context, key string, err error) {
	if !errors.Is(err, errExpired) {
		return
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET status = 'expired' WHERE license_key = $1 AND status = 'active'
	`, key); err != nil {
		s.logger.Warn("failed to mark license expired", "error", err)
	}
}

func owned(l *domain.License, buyerID string) error {
	if l.BuyerID != buyerID {
		return fmt.Errorf("license: %w", domain.ErrNotFound)
	}
	return nil
}

// Activate binds the license to domainName. Activating an already bound
// domain is a no-op.
func (s *Service) Activate(ctx context.Context, key, buyerID, domainName, ip string) (*domain.License, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" {
		return nil, domain.Invalid("domain", "is required")
	}

	l, err := s.mutate(ctx, key, func(_ *sql.Tx, l *domain.License) error {
		if err := owned(l, buyerID); err != nil {
			return err
		}
		if err := s.active(l); err != nil {
			return err
		}

		if slices.ContainsFunc(l.Activations, func(a domain.Activation) bool { return a.Domain == domainName }) {
			return nil
		}
		if len(l.Activations) >= l.MaxActivations {
			return domain.Invalid("license", "activation limit reached")
		}

		l.Activations = append(l.Activations, domain.Activation{
			Domain:      domainName,
			IP:          ip,
			ActivatedAt: s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		s.expire(ctx, key, err)
		return nil, err
	}

	s.logger.Info("license activated", "license_id", l.ID, "domain", domainName)
	return l, nil
}

func (s *Service) Deactivate(ctx context.Context, key, buyerID, domainName string) (*domain.License, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))

	l, err := s.mutate(ctx, key, func(_ *sql.Tx, l *domain.License) error {
		if err := owned(l, buyerID); err != nil {
			return err
		}
		idx := slices.IndexFunc(l.Activations, func(a domain.Activation) bool { return a.Domain == domainName })
		if idx < 0 {
			return domain.Invalid("domain", domainName+" is not activated")
		}
		l.Activations = slices.Delete(l.Activations, idx, idx+1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("license deactivated", "license_id", l.ID, "domain", domainName)
	return l, nil
}

// Download records one download by the owner and bumps the product's
// download counter.
func (s *Service) Download(ctx context.Context, key, buyerID string) (*domain.License, error) {
	l, err := s.mutate(ctx, key, func(tx *sql.Tx, l *domain.License) error {
		if err := owned(l, buyerID); err != nil {
			return err
		}
		if err := s.active(l); err != nil {
			return err
		}

		l.DownloadCount++
		return s.downloads.IncrementDownloads(ctx, tx, l.ProductID)
	})
	if err != nil {
		s.expire(ctx, key, err)
		return nil, err
	}

	s.logger.Info("license downloaded", "license_id", l.ID, "downloads", l.DownloadCount)
	return l, nil
}

func (s *Service) Revoke(ctx context.Context, key string) (*domain.License, error) {
	l, err := s.mutate(ctx, key, func(_ *sql.Tx, l *domain.License) error {
		if l.Status == domain.LicenseRevoked {
			return domain.ErrAlreadyProcessed
		}
		l.Status = domain.LicenseRevoked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("license revoked", "license_id", l.ID)
	return l, nil
}

// Get returns the license to its owner or an admin.
func (s *Service) Get(ctx context.Context, key, callerID string, admin bool) (*domain.License, error) {
	l, err := s.repo.ByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !admin {
		if err := owned(l, callerID); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (s *Service) List(ctx context.Context, buyerID string, limit, offset int) ([]domain.License, error) {
	return s.repo.ListByBuyer(ctx, buyerID, limit, offset)
}
