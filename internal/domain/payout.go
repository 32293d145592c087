package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutRejected   PayoutStatus = "rejected"
)

type Payout struct {
	ID             string          `json:"id"`
	VendorID       string          `json:"vendor_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	AccountDetails json.RawMessage `json:"account_details"`
	Status         PayoutStatus    `json:"status"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	ProcessedBy    string          `json:"processed_by,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
