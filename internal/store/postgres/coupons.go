package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/store"
)

const couponColumns = `id, code, discount_type, value, percent_bps, buy_mode, buy_target_id, get_target_id,
	buy_quantity, get_quantity, max_free_quantity, minimum_amount, starts_at, ends_at,
	total_usage_limit, customer_usage_limit, used_count, is_active, applicable_products, applicable_users`

func scanCoupon(row pgx.Row) (store.CouponRecord, error) {
	var c store.CouponRecord
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.Value, &c.PercentBps, &c.BuyMode, &c.BuyTargetID, &c.GetTargetID,
		&c.BuyQuantity, &c.GetQuantity, &c.MaxFreeQuantity, &c.MinimumAmount, &c.StartsAt, &c.EndsAt,
		&c.TotalUsageLimit, &c.CustomerUsageLimit, &c.UsedCount, &c.IsActive, &c.ApplicableProducts, &c.ApplicableUsers,
	)
	return c, err
}

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (store.CouponRecord, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		return store.CouponRecord{}, notFound(err)
	}
	return c, nil
}

func (q *Queries) LockCouponByCode(ctx context.Context, code string) (store.CouponRecord, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, code))
	if err != nil {
		return store.CouponRecord{}, notFound(err)
	}
	return c, nil
}

func (q *Queries) CountCouponUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&n)
	return n, err
}

func (q *Queries) IncrementCouponUsage(ctx context.Context, couponID uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`, couponID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *Queries) RecordCouponUsage(ctx context.Context, usage store.CouponUsage) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO coupon_usages (coupon_id, user_id, order_id, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))`,
		usage.CouponID, usage.UserID, usage.OrderID, nullTime(usage.CreatedAt))
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
