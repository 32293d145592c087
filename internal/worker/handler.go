// Package worker relays queued notifications to the email service.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/messaging"
)

type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type sendRequest struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Data     map[string]string `json:"data"`
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var n domain.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return messaging.Permanent(fmt.Errorf("unmarshal notification: %w", err))
	}
	if n.Template == "" || n.To == "" {
		return messaging.Permanent(errors.New("notification without template or recipient"))
	}

	h.logger.Info("processing notification", "template", n.Template, "to", n.To)

	if err := h.sendEmail(ctx, sendRequest{Template: n.Template, To: n.To, Data: n.Data}); err != nil {
		h.logger.Error("failed to send email", "error", err, "template", n.Template, "to", n.To)
		return err
	}

	h.logger.Info("notification delivered", "template", n.Template, "to", n.To)
	return nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, body sendRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return messaging.Permanent(fmt.Errorf("email service rejected %s: status %d", body.Template, resp.StatusCode))
	default:
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
}
