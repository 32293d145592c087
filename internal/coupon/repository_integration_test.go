//go:build integration

package coupon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/digimarket/internal/coupon"
	"github.com/joao-fontenele/digimarket/internal/domain"
	"github.com/joao-fontenele/digimarket/internal/testenv"
)

func TestFind(t *testing.T) {
	db := testenv.Postgres(t)
	ctx := context.Background()
	repo := coupon.NewRepository()

	// one coupon's code equals another coupon's id
	_, err := db.ExecContext(ctx, `
		INSERT INTO coupons (id, code, type, value, expires_at) VALUES
			('spring', 'BLOOM', 'fixed', 5, NOW() + INTERVAL '1 day'),
			('coupon-spring', 'SPRING', 'fixed', 7, NOW() + INTERVAL '1 day')
	`)
	require.NoError(t, err)

	t.Run("exact id wins over a code match", func(t *testing.T) {
		for range 5 {
			c, err := repo.Find(ctx, db, "spring")
			require.NoError(t, err)
			require.Equal(t, "spring", c.ID)
		}
	})

	t.Run("code lookup is case-insensitive", func(t *testing.T) {
		c, err := repo.Find(ctx, db, "Spring")
		require.NoError(t, err)
		require.Equal(t, "coupon-spring", c.ID)

		c, err = repo.Find(ctx, db, "save20")
		require.NoError(t, err)
		require.Equal(t, "coupon-save20", c.ID)
	})

	t.Run("unknown reference is invalid", func(t *testing.T) {
		_, err := repo.Find(ctx, db, "nope")
		require.ErrorIs(t, err, domain.ErrCouponInvalid)
	})
}
