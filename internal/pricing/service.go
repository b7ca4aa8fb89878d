package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// cartStore is the slice of the cart repository the pricing service needs.
type cartStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartRecord, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

// Totals is the authoritative price breakdown after a sync pass. Changed is
// set when the recomputed totals drifted from what the cart displayed beyond
// the configured tolerance, so the storefront can warn the buyer before
// payment.
type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	ShippingCents int64
	TaxCents      int64
	TotalCents    int64
	Changed       bool
}

// Membership tier discounts in basis points of the subtotal.
var tierDiscountBasisPoints = map[string]int64{
	"bronze": 200,
	"silver": 500,
	"gold":   1000,
}

// Service recomputes cart totals server-side. It is the sole writer of the
// money columns on the cart: item prices, tier discounts, coupon and points
// amounts, tax and shipping all funnel through Sync.
type Service struct {
	carts cartStore
	cfg   config.PricingConfig
}

func NewService(carts cartStore, cfg config.PricingConfig) (*Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	return &Service{carts: carts, cfg: cfg}, nil
}

// Sync recomputes and persists the cart's totals, returning the fresh
// breakdown. The stored totals always lose to the recomputation.
func (s *Service) Sync(ctx context.Context, cartID uuid.UUID) (*Totals, error) {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	totals, discounts := s.compute(cart)

	now := time.Now()
	fields := map[string]any{
		"subtotal_cents":  totals.SubtotalCents,
		"discount_cents":  totals.DiscountCents,
		"shipping_cents":  totals.ShippingCents,
		"tax_cents":       totals.TaxCents,
		"total_cents":     totals.TotalCents,
		"discounts":       discounts,
		"price_synced_at": &now,
	}
	if err := s.carts.UpdateFields(ctx, cartID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist synced totals")
	}
	return totals, nil
}

func (s *Service) compute(cart *models.CartRecord) (*Totals, *types.DiscountContext) {
	subtotal := decimal.Zero
	for _, item := range cart.Items {
		line := decimal.NewFromInt(item.UnitPriceCents).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}
	subtotalCents := subtotal.IntPart()

	discounts := types.DiscountContext{}
	if cart.Discounts != nil {
		discounts = *cart.Discounts
	}
	discounts.TierDiscountCents = tierDiscountCents(subtotal, discounts.TierLevel)

	discountCents := discounts.TotalCents()
	if discountCents > subtotalCents {
		discountCents = subtotalCents
	}

	shippingCents := int64(0)
	if cart.Shipping != nil {
		shippingCents = cart.Shipping.DisplayPriceCents()
	}

	taxable := decimal.NewFromInt(subtotalCents - discountCents)
	taxRate := decimal.NewFromInt(int64(s.cfg.TaxRateBasisPoints)).Div(decimal.NewFromInt(10000))
	taxCents := taxable.Mul(taxRate).Round(0).IntPart()

	totals := &Totals{
		SubtotalCents: subtotalCents,
		DiscountCents: discountCents,
		ShippingCents: shippingCents,
		TaxCents:      taxCents,
		TotalCents:    subtotalCents - discountCents + shippingCents + taxCents,
	}
	totals.Changed = s.drifted(cart, totals)
	return totals, &discounts
}

func (s *Service) drifted(cart *models.CartRecord, totals *Totals) bool {
	tolerance := int64(s.cfg.DriftToleranceCents)
	diff := totals.TotalCents - cart.TotalCents
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

func tierDiscountCents(subtotal decimal.Decimal, tierLevel string) int64 {
	basisPoints, ok := tierDiscountBasisPoints[strings.ToLower(strings.TrimSpace(tierLevel))]
	if !ok {
		return 0
	}
	return subtotal.
		Mul(decimal.NewFromInt(basisPoints)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}
