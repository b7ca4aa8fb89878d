package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DiscountContext carries the server-computed discount breakdown for a cart.
// Every amount is authoritative: the pricing service is the only writer.
type DiscountContext struct {
	CouponCode        string `json:"coupon_code,omitempty"`
	CouponCents       int64  `json:"coupon_cents,omitempty"`
	PointsRedeemed    int64  `json:"points_redeemed,omitempty"`
	PointsCents       int64  `json:"points_cents,omitempty"`
	MembershipPromo   string `json:"membership_promo,omitempty"`
	PromoCents        int64  `json:"promo_cents,omitempty"`
	TierLevel         string `json:"tier_level,omitempty"`
	TierDiscountCents int64  `json:"tier_discount_cents,omitempty"`
}

// TotalCents sums every discount source.
func (d DiscountContext) TotalCents() int64 {
	return d.CouponCents + d.PointsCents + d.PromoCents + d.TierDiscountCents
}

func (d DiscountContext) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DiscountContext) Scan(value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported discount context column type %T", value)
	}
}
