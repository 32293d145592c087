package coupon

import (
	"context"
	"time"

	"github.com/joao-fontenele/digimarket/internal/database"
	"github.com/joao-fontenele/digimarket/internal/domain"
)

type Service struct {
	repo *Repository
	now  func() time.Time
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Apply validates ref against the cart on q and returns the snapshot to
// store on the order together with the live coupon.
func (s *Service) Apply(ctx context.Context, q database.Querier, ref string, cart Cart) (*domain.AppliedCoupon, *domain.Coupon, error) {
	c, err := s.repo.Find(ctx, q, ref)
	if err != nil {
		return nil, nil, err
	}

	redeemed, err := s.repo.Redeemed(ctx, q, c.ID, cart.BuyerID)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.repo.History(ctx, q, cart.BuyerID)
	if err != nil {
		return nil, nil, err
	}

	discount, err := Evaluate(c, cart, history, redeemed, s.now())
	if err != nil {
		return nil, nil, err
	}

	return &domain.AppliedCoupon{
		CouponID: c.ID,
		Code:     c.Code,
		Discount: discount,
		Type:     c.Type,
		Value:    c.Value,
	}, c, nil
}

// Redeem consumes the coupon for orderID.
func (s *Service) Redeem(ctx context.Context, q database.Querier, c *domain.Coupon, userID, orderID string) error {
	return s.repo.Redeem(ctx, q, c, userID, orderID)
}
