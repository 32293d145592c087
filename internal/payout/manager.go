// Package payout moves vendor earnings out of the platform. A request locks
// the amount in the vendor's wallet; an admin decision either settles the
// locked funds or returns them to the available balance.
package payout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/notify"
	"github.com/joao-fontenele/digimarket/internal/telemetry"
)

type Vendors interface {
	Vendor(ctx context.Context, vendorID string) (*domain.VendorProfile, error)
}

type Ledger interface {
	Lock(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error
	UnlockToBalance(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error
	SettleLocked(ctx context.Context, q database.Querier, userID string, amount decimal.Decimal, description, reference string) error
}

type Request struct {
	VendorID       string          `json:"-"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method,omitempty"`
	AccountDetails json.RawMessage `json:"account_details,omitempty"`
}

type Decision struct {
	Status domain.PayoutStatus `json:"status"`
	Notes  string              `json:"notes,omitempty"`
}

type Manager struct {
	db         *sql.DB
	repo       *Repository
	vendors    Vendors
	ledger     Ledger
	notifier   notify.Sender
	minPayout  decimal.Decimal
	adminEmail string
	logger     *slog.Logger
	now        func() time.Time

	payouts metric.Int64Counter
}

func NewManager(db *sql.DB, repo *Repository, vendors Vendors, ledger Ledger, notifier notify.Sender,
	minPayout decimal.Decimal, adminEmail string, logger *slog.Logger,
) *Manager {
	return &Manager{
		db:         db,
		repo:       repo,
		vendors:    vendors,
		ledger:     ledger,
		notifier:   notifier,
		minPayout:  minPayout,
		adminEmail: adminEmail,
		logger:     logger,
		now:        time.Now,
		payouts:    telemetry.Counter("digimarket/payout", "payouts", "Payout requests and decisions by status"),
	}
}

// Request locks req.Amount in the vendor's wallet and records a pending
// payout. The vendor must have payout details on file; details in the
// request override them for this payout only.
func (m *Manager) Request(ctx context.Context, req Request) (*domain.Payout, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if amount.LessThan(m.minPayout) {
		return nil, domain.Invalid("amount", "minimum payout is "+m.minPayout.StringFixed(2))
	}

	vendor, err := m.vendors.Vendor(ctx, req.VendorID)
	if err != nil {
		return nil, err
	}

	if vendor.PayoutMethod == "" || len(vendor.PayoutDetails) == 0 || string(vendor.PayoutDetails) == "null" {
		return nil, domain.Invalid("account_details", "no payout details on file")
	}

	method, details := vendor.PayoutMethod, vendor.PayoutDetails
	if req.Method != "" {
		method = req.Method
	}
	if len(req.AccountDetails) > 0 && string(req.AccountDetails) != "null" {
		details = req.AccountDetails
	}

	p := &domain.Payout{
		ID:             uuid.NewString(),
		VendorID:       req.VendorID,
		Amount:         amount,
		Method:         method,
		AccountDetails: details,
		Status:         domain.PayoutPending,
		CreatedAt:      m.now().UTC(),
	}

	err = database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if err := m.ledger.Lock(ctx, tx, p.VendorID, p.Amount, "Payout request "+p.ID, p.ID); err != nil {
			return err
		}
		return m.repo.Insert(ctx, tx, p)
	})
	if err != nil {
		m.logger.Warn("payout request failed", "error", err, "vendor_id", req.VendorID, "amount", amount)
		return nil, err
	}

	m.count(ctx, p.Status)
	m.logger.Info("payout requested", "payout_id", p.ID, "vendor_id", p.VendorID, "amount", p.Amount, "method", p.Method)

	m.notifier.Send(ctx, domain.Notification{
		Template: domain.TemplatePayoutRequested,
		To:       m.adminEmail,
		Data: map[string]string{
			"payout_id": p.ID,
			"vendor_id": p.VendorID,
			"amount":    p.Amount.StringFixed(2),
			"method":    p.Method,
		},
	})

	return p, nil
}

// Process applies an admin decision to a pending payout.
func (m *Manager) Process(ctx context.Context, payoutID, adminID string, decision Decision) (*domain.Payout, error) {
	if decision.Status != domain.PayoutCompleted && decision.Status != domain.PayoutRejected {
		return nil, domain.Invalid("status", "must be completed or rejected")
	}

	var p *domain.Payout
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		p, err = m.repo.GetForUpdate(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if p.Status != domain.PayoutPending {
			return fmt.Errorf("payout %s is %s: %w", p.ID, p.Status, domain.ErrAlreadyProcessed)
		}

		if decision.Status == domain.PayoutCompleted {
			err = m.ledger.SettleLocked(ctx, tx, p.VendorID, p.Amount, "Payout "+p.ID, p.ID)
		} else {
			err = m.ledger.UnlockToBalance(ctx, tx, p.VendorID, p.Amount, "Payout rejected "+p.ID, p.ID)
		}
		if err != nil {
			return err
		}

		processedAt := m.now().UTC()
		p.Status = decision.Status
		p.ProcessedAt = &processedAt
		p.ProcessedBy = adminID
		p.Notes = decision.Notes
		return m.repo.Finish(ctx, tx, p)
	})
	if err != nil {
		m.logger.Warn("payout processing failed", "error", err, "payout_id", payoutID, "admin_id", adminID)
		return nil, err
	}

	m.count(ctx, p.Status)
	m.logger.Info("payout processed", "payout_id", p.ID, "vendor_id", p.VendorID, "status", p.Status, "admin_id", adminID)

	m.announce(ctx, p)
	return p, nil
}

func (m *Manager) announce(ctx context.Context, p *domain.Payout) {
	vendor, err := m.vendors.Vendor(ctx, p.VendorID)
	if err != nil {
		m.logger.Warn("failed to resolve vendor email", "error", err, "vendor_id", p.VendorID)
		return
	}

	m.notifier.Send(ctx, domain.Notification{
		Template: domain.TemplatePayoutProcessed,
		To:       vendor.Email,
		Data: map[string]string{
			"payout_id": p.ID,
			"amount":    p.Amount.StringFixed(2),
			"status":    string(p.Status),
			"notes":     p.Notes,
		},
	})
}

func (m *Manager) Get(ctx context.Context, id, callerID string, admin bool) (*domain.Payout, error) {
	p, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && p.VendorID != callerID {
		return nil, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *Manager) ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]domain.Payout, error) {
	return m.repo.ListByVendor(ctx, vendorID, limit, offset)
}

func (m *Manager) ListByStatus(ctx context.Context, status domain.PayoutStatus, limit, offset int) ([]domain.Payout, error) {
	switch status {
	case domain.PayoutPending, domain.PayoutProcessing, domain.PayoutCompleted, domain.PayoutRejected:
	default:
		return nil, domain.Invalid("status", "unknown payout status "+string(status))
	}
	return m.repo.ListByStatus(ctx, status, limit, offset)
}

func (m *Manager) count(ctx context.Context, status domain.PayoutStatus) {
	m.payouts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}
