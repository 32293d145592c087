package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// TransactionKind names the balance bucket an entry moved funds through.
//
//	standard credit: balance +amount
//	standard debit:  balance -amount
//	hold (debit):    balance -amount, locked +amount
//	release (credit): locked -amount, balance +amount
//	payout (debit):  locked -amount
type TransactionKind string

const (
	KindStandard TransactionKind = "standard"
	KindHold     TransactionKind = "hold"
	KindRelease  TransactionKind = "release"
	KindPayout   TransactionKind = "payout"
)

type WalletTransaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Kind        TransactionKind `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Wallet struct {
	UserID        string              `json:"user_id"`
	Balance       decimal.Decimal     `json:"balance"`
	LockedBalance decimal.Decimal     `json:"locked_balance"`
	Transactions  []WalletTransaction `json:"transactions"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Replay rebuilds the available and locked balances from a transaction log
// in chronological order.
func Replay(txs []WalletTransaction) (balance, locked decimal.Decimal) {
	for _, tx := range txs {
		switch tx.Kind {
		case KindHold:
			balance = balance.Sub(tx.Amount)
			locked = locked.Add(tx.Amount)
		case KindRelease:
			locked = locked.Sub(tx.Amount)
			balance = balance.Add(tx.Amount)
		case KindPayout:
			locked = locked.Sub(tx.Amount)
		default:
			if tx.Type == TransactionCredit {
				balance = balance.Add(tx.Amount)
			} else {
				balance = balance.Sub(tx.Amount)
			}
		}
	}
	return balance, locked
}

type TopUpStatus string

const (
	TopUpPending TopUpStatus = "pending"
	TopUpSuccess TopUpStatus = "success"
	TopUpFailed  TopUpStatus = "failed"
)

// TopUp is a user funding their own wallet through a payment provider.
type TopUp struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	Method           PaymentMethod   `json:"method"`
	Status           TopUpStatus     `json:"status"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}
