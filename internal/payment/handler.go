package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
	"github.com/joao-fontenele/digimarket/internal/settlement"
)

const maxWebhookBody = 1 << 20

type Service interface {
	Pay(ctx context.Context, callerID, orderID string, method domain.PaymentMethod) (*Session, error)
	TopUp(ctx context.Context, userID string, amount decimal.Decimal, method domain.PaymentMethod) (*Session, error)
	CompletePayPal(ctx context.Context, paypalOrderID string) (*settlement.Result, error)
	CheckoutBraintree(ctx context.Context, callerID string, req BraintreeCheckout) (*settlement.Result, error)
	PayPalWebhook(ctx context.Context, header http.Header, body []byte) (*settlement.Result, error)
	BraintreeWebhook(ctx context.Context, signature, payload string) (*settlement.Result, error)
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

type sessionRequest struct {
	OrderID string               `json:"order_id"`
	Method  domain.PaymentMethod `json:"method,omitempty"`
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req sessionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if req.OrderID == "" {
		respond.Error(w, h.logger, domain.Invalid("order_id", "is required"))
		return
	}

	session, err := h.service.Pay(r.Context(), caller.ID, req.OrderID, req.Method)
	if err != nil {
		h.logger.Warn("failed to open payment session", "error", err, "order_id", req.OrderID, "user_id", caller.ID)
		respond.Error(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if session.Result != nil {
		status = http.StatusOK
	}
	respond.JSON(w, h.logger, status, session)
}

type topUpRequest struct {
	Amount decimal.Decimal      `json:"amount"`
	Method domain.PaymentMethod `json:"method"`
}

func (h *Handler) HandleTopUp(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req topUpRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	session, err := h.service.TopUp(r.Context(), caller.ID, req.Amount, req.Method)
	if err != nil {
		h.logger.Warn("failed to open top-up session", "error", err, "user_id", caller.ID)
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusCreated, session)
}

// HandlePayPalReturn is where PayPal redirects the buyer after approval.
func (h *Handler) HandlePayPalReturn(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	result, err := h.service.CompletePayPal(r.Context(), token)
	if err != nil {
		h.logger.Error("paypal return failed", "error", err, "token", token)
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, result)
}

func (h *Handler) HandleBraintreeCheckout(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req BraintreeCheckout
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	result, err := h.service.CheckoutBraintree(r.Context(), caller.ID, req)
	if err != nil {
		h.logger.Error("braintree checkout failed", "error", err, "order_id", req.OrderID, "topup_id", req.TopUpID)
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, result)
}

// HandlePayPalWebhook acknowledges every readable delivery. Failures are
// logged; PayPal retries on its own schedule and settlement is idempotent.
func (h *Handler) HandlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.service.PayPalWebhook(r.Context(), r.Header, body)
	h.acknowledge(w, ProviderPayPal, result, err)
}

func (h *Handler) HandleBraintreeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "unreadable body")
		return
	}

	result, err := h.service.BraintreeWebhook(r.Context(), r.PostForm.Get("bt_signature"), r.PostForm.Get("bt_payload"))
	h.acknowledge(w, ProviderBraintree, result, err)
}

func (h *Handler) acknowledge(w http.ResponseWriter, provider string, result *settlement.Result, err error) {
	switch {
	case err != nil:
		h.logger.Error("webhook not settled", "error", err, "provider", provider)
	case result == nil:
		h.logger.Info("webhook ignored", "provider", provider)
	default:
		h.logger.Info("webhook settled",
			"provider", provider,
			"kind", result.Kind,
			"target_id", result.TargetID,
			"already_settled", result.AlreadySettled,
		)
	}

	respond.JSON(w, h.logger, http.StatusOK, map[string]string{"status": "received"})
}
