package coupon

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type ProductFinder interface {
	FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type Handler struct {
	db       database.Querier
	service  *Service
	products ProductFinder
	logger   *slog.Logger
}

func NewHandler(db database.Querier, service *Service, products ProductFinder, logger *slog.Logger) *Handler {
	return &Handler{
		db:       db,
		service:  service,
		products: products,
		logger:   logger,
	}
}

type validateRequest struct {
	Code       string   `json:"code"`
	ProductIDs []string `json:"product_ids"`
}

type validateResponse struct {
	Code     string            `json:"code"`
	Type     domain.CouponType `json:"type"`
	Value    decimal.Decimal   `json:"value"`
	Subtotal decimal.Decimal   `json:"subtotal"`
	Discount decimal.Decimal   `json:"discount"`
	Total    decimal.Decimal   `json:"total"`
}

// HandleValidate previews a coupon against a cart without consuming it.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req validateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if req.Code == "" {
		respond.Error(w, h.logger, domain.Invalid("code", "is required"))
		return
	}
	if len(req.ProductIDs) == 0 {
		respond.Error(w, h.logger, domain.Invalid("product_ids", "must not be empty"))
		return
	}

	products, err := h.products.FindProducts(r.Context(), req.ProductIDs)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	subtotal := decimal.Zero
	for _, id := range req.ProductIDs {
		p := products[id]
		subtotal = subtotal.Add(p.EffectivePrice())
	}

	applied, _, err := h.service.Apply(r.Context(), h.db, req.Code, Cart{
		BuyerID:    caller.ID,
		Subtotal:   subtotal,
		ProductIDs: req.ProductIDs,
	})
	if err != nil {
		h.logger.Info("coupon rejected", "code", req.Code, "user_id", caller.ID, "reason", err)
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, validateResponse{
		Code:     applied.Code,
		Type:     applied.Type,
		Value:    applied.Value,
		Subtotal: subtotal,
		Discount: applied.Discount,
		Total:    subtotal.Sub(applied.Discount),
	})
}
