package email

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

var messages = map[string]message{
	domain.TemplateOrderConfirmation: parse("order_confirmation",
		"Order {{.order_id}} received",
		`Hi {{.name}},

We received your order {{.order_id}} for {{.items}} item(s).
Subtotal: {{.subtotal}}
Discount: {{.discount}}
Total: {{.total}} via {{.method}}

Your license keys are sent as soon as the payment clears.`),
	domain.TemplateAdminNewOrder: parse("admin_new_order",
		"New order {{.order_id}}",
		`{{.name}} placed order {{.order_id}} ({{.items}} item(s), total {{.total}}, method {{.method}}).`),
	domain.TemplateOrderCompleted: parse("order_completed",
		"Your order {{.order_id}} is complete",
		`Hi {{.name}},

Payment of {{.total}} for order {{.order_id}} was confirmed.
License keys: {{.license_keys}}`),
	domain.TemplateVendorSale: parse("vendor_sale",
		"You made a sale",
		`Order {{.order_id}} credited {{.amount}} to your wallet.`),
	domain.TemplateTopUpCompleted: parse("topup_completed",
		"Wallet top-up received",
		`Top-up {{.topup_id}} added {{.amount}} to your wallet.`),
	domain.TemplatePayoutRequested: parse("payout_requested",
		"Payout request {{.payout_id}}",
		`Vendor {{.vendor_id}} requested a payout of {{.amount}} by {{.method}}.`),
	domain.TemplatePayoutProcessed: parse("payout_processed",
		"Payout {{.payout_id}} {{.status}}",
		`Your payout of {{.amount}} was {{.status}}.{{if .notes}}
Notes: {{.notes}}{{end}}`),
}

func parse(name, subject, body string) message {
	return message{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Option("missingkey=zero").Parse(body)),
	}
}

// render fills the named template with data. Missing keys render empty.
func render(name string, data map[string]string) (subject, body string, err error) {
	m, ok := messages[name]
	if !ok {
		return "", "", domain.Invalid("template", fmt.Sprintf("unknown template %q", name))
	}
	if data == nil {
		data = map[string]string{}
	}

	var s, b strings.Builder
	if err := m.subject.Execute(&s, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := m.body.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return s.String(), b.String(), nil
}
