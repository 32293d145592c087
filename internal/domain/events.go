package domain

import "time"

// Notification is a templated message for the email service. Templates are
// resolved by name on the email side.
type Notification struct {
	Template  string            `json:"template"`
	To        string            `json:"to"`
	Data      map[string]string `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateAdminNewOrder     = "admin_new_order"
	TemplateOrderCompleted    = "order_completed"
	TemplateVendorSale        = "vendor_sale"
	TemplateTopUpCompleted    = "topup_completed"
	TemplatePayoutRequested   = "payout_requested"
	TemplatePayoutProcessed   = "payout_processed"
)
