package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/config"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/settlement"
)

const ProviderBraintree = "braintree"

// Braintree wraps the Braintree SDK gateway.
type Braintree struct {
	gateway *braintree.Braintree
}

func NewBraintree(cfg config.Braintree) *Braintree {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	return &Braintree{
		gateway: braintree.New(env, cfg.MerchantID, cfg.PublicKey, cfg.PrivateKey),
	}
}

func (b *Braintree) ClientToken(ctx context.Context) (string, error) {
	token, err := b.gateway.ClientToken().Generate(ctx)
	if err != nil {
		return "", fmt.Errorf("generate braintree client token: %w", err)
	}
	return token, nil
}

// Sale charges nonce for total and submits it for settlement. The tag rides
// along as the transaction's order id.
func (b *Braintree) Sale(ctx context.Context, nonce, tag string, total decimal.Decimal) (*settlement.Confirmation, error) {
	cents := total.Shift(2).Round(0).IntPart()

	tx, err := b.gateway.Transaction().Create(ctx, &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             braintree.NewDecimal(cents, 2),
		PaymentMethodNonce: nonce,
		OrderId:            tag,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true,
		},
	})

	var btErr *braintree.BraintreeError
	if errors.As(err, &btErr) {
		return nil, domain.Invalid("nonce", "payment declined: "+btErr.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("create braintree sale: %w", err)
	}

	switch tx.Status {
	case braintree.TransactionStatusSubmittedForSettlement,
		braintree.TransactionStatusSettling,
		braintree.TransactionStatusSettled:
	default:
		return nil, domain.Invalid("nonce", fmt.Sprintf("payment declined: transaction %s is %s", tx.Id, tx.Status))
	}

	return confirmationFor(tx, "", "")
}

// Webhook verifies and decodes a webhook delivery. Only settled
// transactions yield a confirmation.
func (b *Braintree) Webhook(signature, payload string) (*settlement.Confirmation, error) {
	notification, err := b.gateway.WebhookNotification().Parse(signature, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentVerificationFailed, err)
	}

	if notification.Kind != braintree.TransactionSettledWebhook {
		return nil, nil
	}
	if notification.Subject == nil || notification.Subject.Transaction == nil {
		return nil, fmt.Errorf("%w: %s notification without transaction", domain.ErrPaymentVerificationFailed, notification.Kind)
	}

	tx := notification.Subject.Transaction
	return confirmationFor(tx, notification.Kind+":"+tx.Id, notification.Kind)
}

func confirmationFor(tx *braintree.Transaction, eventID, eventType string) (*settlement.Confirmation, error) {
	if tx.OrderId == "" {
		return nil, fmt.Errorf("%w: transaction %s carries no tag", domain.ErrPaymentVerificationFailed, tx.Id)
	}

	c := &settlement.Confirmation{
		Provider:  ProviderBraintree,
		EventID:   eventID,
		EventType: eventType,
		Reference: tx.Id,
		Tag:       tx.OrderId,
	}
	if tx.Amount != nil {
		paid := decimal.New(tx.Amount.Unscaled, -int32(tx.Amount.Scale))
		c.Amount = &paid
	}
	return c, nil
}
