package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/config"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/settlement"
)

const (
	ProviderPayPal = "paypal"

	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

// PayPal talks to the PayPal REST API with client credentials.
type PayPal struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	currency     string
}

func NewPayPal(cfg config.Paypal, currency string, client *http.Client) *PayPal {
	return &PayPal{
		httpClient:   client,
		baseURL:      strings.TrimRight(cfg.BaseApiURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		currency:     currency,
	}
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("paypal returned status %d: %s", e.Status, e.Body)
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	Amount   amount `json:"amount"`
}

type checkoutOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []capture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type webhookEvent struct {
	ID        string  `json:"id"`
	EventType string  `json:"event_type"`
	Resource  capture `json:"resource"`
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.send(req, &res); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	if res.AccessToken == "" {
		return "", errors.New("get access token: empty token")
	}
	return res.AccessToken, nil
}

func (p *PayPal) call(ctx context.Context, method, path string, body, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return p.send(req, out)
}

func (p *PayPal) send(req *http.Request, out any) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateOrder opens a checkout for total, tagged so the capture can be
// routed back, and returns the PayPal order id with its approval URL.
func (p *PayPal) CreateOrder(ctx context.Context, tag string, total decimal.Decimal, returnURL, cancelURL string) (*Checkout, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"custom_id": tag,
				"amount": amount{
					CurrencyCode: p.currency,
					Value:        total.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": cancelURL,
		},
	}

	var order checkoutOrder
	if err := p.call(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}

	checkout := &Checkout{SessionID: order.ID}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			checkout.ApprovalURL = l.Href
		}
	}
	if checkout.ApprovalURL == "" {
		return nil, fmt.Errorf("paypal order %s has no approval link", order.ID)
	}
	return checkout, nil
}

// Capture captures an approved PayPal order. An order captured earlier is
// read back instead so a repeated return still yields its confirmation.
func (p *PayPal) Capture(ctx context.Context, orderID string) (*settlement.Confirmation, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)

	var order checkoutOrder
	err := p.call(ctx, http.MethodPost, path+"/capture", nil, &order)

	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity &&
		strings.Contains(apiErr.Body, "ORDER_ALREADY_CAPTURED") {
		err = p.call(ctx, http.MethodGet, path, nil, &order)
	}
	if err != nil {
		return nil, fmt.Errorf("capture paypal order %s: %w", orderID, err)
	}

	if len(order.PurchaseUnits) == 0 || len(order.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("%w: paypal order %s has no capture", domain.ErrPaymentVerificationFailed, orderID)
	}
	unit := order.PurchaseUnits[0]
	c := unit.Payments.Captures[0]
	if c.CustomID == "" {
		c.CustomID = unit.CustomID
	}

	return p.confirmation(c, "", "")
}

func (p *PayPal) confirmation(c capture, eventID, eventType string) (*settlement.Confirmation, error) {
	if c.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: capture %s is %s", domain.ErrPaymentVerificationFailed, c.ID, c.Status)
	}
	if !strings.EqualFold(c.Amount.CurrencyCode, p.currency) {
		return nil, fmt.Errorf("%w: capture %s in %s", domain.ErrPaymentVerificationFailed, c.ID, c.Amount.CurrencyCode)
	}

	paid, err := decimal.NewFromString(c.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: capture %s amount %q", domain.ErrPaymentVerificationFailed, c.ID, c.Amount.Value)
	}

	return &settlement.Confirmation{
		Provider:  ProviderPayPal,
		EventID:   eventID,
		EventType: eventType,
		Reference: c.ID,
		Tag:       c.CustomID,
		Amount:    &paid,
	}, nil
}

// VerifyWebhook asks PayPal whether the transmission headers sign body for
// the configured webhook.
func (p *PayPal) VerifyWebhook(ctx context.Context, header http.Header, body []byte) error {
	if p.webhookID == "" {
		return fmt.Errorf("%w: no webhook id configured", domain.ErrPaymentVerificationFailed)
	}

	payload := map[string]any{
		"auth_algo":         header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": header.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var res struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &res); err != nil {
		return fmt.Errorf("verify webhook signature: %w", err)
	}
	if res.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: webhook signature status %s", domain.ErrPaymentVerificationFailed, res.VerificationStatus)
	}
	return nil
}

// Webhook verifies and decodes a webhook delivery. Events other than a
// completed capture yield a nil confirmation.
func (p *PayPal) Webhook(ctx context.Context, header http.Header, body []byte) (*settlement.Confirmation, error) {
	if !json.Valid(body) {
		return nil, domain.Invalid("body", "webhook body is not JSON")
	}
	if err := p.VerifyWebhook(ctx, header, body); err != nil {
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if event.EventType != eventCaptureCompleted {
		return nil, nil
	}

	return p.confirmation(event.Resource, event.ID, event.EventType)
}
