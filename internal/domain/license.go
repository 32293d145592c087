package domain

import "time"

type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "active"
	LicenseRevoked LicenseStatus = "revoked"
	LicenseExpired LicenseStatus = "expired"
)

type Activation struct {
	Domain      string    `json:"domain"`
	IP          string    `json:"ip"`
	ActivatedAt time.Time `json:"activated_at"`
}

type License struct {
	ID             string        `json:"id"`
	BuyerID        string        `json:"buyer_id"`
	ProductID      string        `json:"product_id"`
	OrderID        string        `json:"order_id"`
	Key            string        `json:"license_key"`
	Status         LicenseStatus `json:"status"`
	Activations    []Activation  `json:"activations"`
	MaxActivations int           `json:"max_activations"`
	DownloadCount  int           `json:"download_count"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
