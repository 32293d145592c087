package license

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/respond"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
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

	licenses, err := h.service.List(r.Context(), caller.ID, limit, offset)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, licenses)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	l, err := h.service.Get(r.Context(), r.PathValue("key"), caller.ID, caller.Admin())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, l)
}

type activationRequest struct {
	Domain string `json:"domain"`
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req activationRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	l, err := h.service.Activate(r.Context(), r.PathValue("key"), caller.ID, req.Domain, clientIP(r))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, l)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	var req activationRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if req.Domain == "" {
		respond.Error(w, h.logger, domain.Invalid("domain", "is required"))
		return
	}

	l, err := h.service.Deactivate(r.Context(), r.PathValue("key"), caller.ID, req.Domain)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, l)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	caller, err := respond.CallerFrom(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	l, err := h.service.Download(r.Context(), r.PathValue("key"), caller.ID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, l)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if _, err := respond.Require(r, respond.RoleAdmin); err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	l, err := h.service.Revoke(r.Context(), r.PathValue("key"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, l)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
