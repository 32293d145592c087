// Package email renders notification templates and delivers them. Delivery
// is a structured log line; there is no outbound mail transport.
package email

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendRequest struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Data     map[string]string `json:"data"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Subject string `json:"subject"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if req.To == "" {
		respond.Error(w, h.logger, domain.Invalid("to", "recipient is required"))
		return
	}

	subject, body, err := render(req.Template, req.Data)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("email sent", "template", req.Template, "to", req.To, "subject", subject, "body", body)

	respond.JSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent", Subject: subject})
}
