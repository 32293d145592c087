package payout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type Service interface {
	Request(ctx context.Context, req Request) (*domain.Payout, error)
	Process(ctx context.Context, payoutID, adminID string, decision Decision) (*domain.Payout, error)
	ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]domain.Payout, error)
	ListByStatus(ctx context.Context, status domain.PayoutStatus, limit, offset int) ([]domain.Payout, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.Require(r, respond.RoleVendor)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req Request
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	req.VendorID = caller.ID

	payout, err := h.service.Request(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusCreated, payout)
}

// HandleList shows vendors their own payouts and admins the payouts in one
// status, pending by default.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.Require(r, respond.RoleVendor, respond.RoleAdmin)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	limit, offset, err := respond.Page(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var payouts []domain.Payout
	if caller.Admin() {
		status := domain.PayoutStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = domain.PayoutPending
		}
		payouts, err = h.service.ListByStatus(r.Context(), status, limit, offset)
	} else {
		payouts, err = h.service.ListByVendor(r.Context(), caller.ID, limit, offset)
	}
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, payouts)
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.Require(r, respond.RoleAdmin)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var decision Decision
	if err := respond.Decode(r, &decision); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	payout, err := h.service.Process(r.Context(), r.PathValue("id"), caller.ID, decision)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, payout)
}
