package wallet

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	wallet, err := h.ledger.Get(r.Context(), caller.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to get wallet", "error", err, "user_id", caller.ID)
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("wallet retrieved", "user_id", caller.ID, "transactions", len(wallet.Transactions))
	respond.JSON(w, h.logger, http.StatusOK, wallet)
}

func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if _, err := respond.Require(r, respond.RoleAdmin); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respond.Error(w, h.logger, domain.Invalid("user_id", "is required"))
		return
	}

	audit, err := h.ledger.Audit(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to audit wallet", "error", err, "user_id", userID)
		respond.Error(w, h.logger, err)
		return
	}

	if !audit.Consistent {
		h.logger.Warn("wallet drift detected",
			"user_id", userID,
			"balance", audit.Balance,
			"replayed_balance", audit.ReplayedBalance,
			"locked_balance", audit.LockedBalance,
			"replayed_locked_balance", audit.ReplayedLocked,
		)
	}

	respond.JSON(w, h.logger, http.StatusOK, audit)
}
