package orders

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

// Split divides price between the platform and the vendor. The fee is
// rounded to cents and the vendor receives the exact remainder, so the two
// always sum to price.
func Split(price, commissionRate decimal.Decimal) (platformFee, vendorEarning decimal.Decimal) {
	price = price.Round(2)
	platformFee = price.Mul(commissionRate).Round(2)
	return platformFee, price.Sub(platformFee)
}

// Price builds one line item per product id, in request order, and returns
// them with their subtotal. Vendors without their own rate pay
// defaultRate.
func Price(products map[string]domain.Product, ids []string, defaultRate decimal.Decimal) ([]domain.OrderItem, decimal.Decimal) {
	items := make([]domain.OrderItem, 0, len(ids))
	subtotal := decimal.Zero

	for _, id := range ids {
		p := products[id]

		rate := defaultRate
		if p.CommissionRate != nil {
			rate = *p.CommissionRate
		}

		price := p.EffectivePrice().Round(2)
		fee, earning := Split(price, rate)

		items = append(items, domain.OrderItem{
			ProductID:     p.ID,
			VendorID:      p.VendorID,
			Title:         p.Title,
			Price:         price,
			PlatformFee:   fee,
			VendorEarning: earning,
		})
		subtotal = subtotal.Add(price)
	}

	return items, subtotal
}
