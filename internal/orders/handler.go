package orders

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*domain.Order, error)
	Get(ctx context.Context, id, callerID string, admin bool) (*domain.Order, error)
	List(ctx context.Context, buyerID string, limit, offset int) ([]domain.Order, error)
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

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req CreateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	req.BuyerID = caller.ID

	order, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Info("order rejected", "buyer_id", caller.ID, "reason", err)
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		respond.Error(w, h.logger, domain.Invalid("id", "is required"))
		return
	}

	order, err := h.service.Get(r.Context(), id, caller.ID, caller.Admin())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	respond.JSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	limit, offset, err := respond.Page(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	orders, err := h.service.List(r.Context(), caller.ID, limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("orders listed", "buyer_id", caller.ID, "count", len(orders))
	respond.JSON(w, h.logger, http.StatusOK, orders)
}
