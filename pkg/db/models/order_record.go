package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/enums"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// OrderRecord is the terminal artifact of a successful checkout. The unique
// index on cart_id guarantees at most one order per cart even if finalization
// is attempted twice.
type OrderRecord struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	DisplayID       string                 `gorm:"column:display_id;not null;uniqueIndex:ux_orders_display_id"`
	CartID          uuid.UUID              `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_orders_cart_id"`
	Email           string                 `gorm:"column:email;not null"`
	Status          enums.OrderStatus      `gorm:"column:status;not null;default:'placed'"`
	ShippingAddress *types.Address         `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  *types.Address         `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Discounts       *types.DiscountContext `gorm:"column:discounts;type:jsonb;serializer:json"`
	Metadata        map[string]string      `gorm:"column:metadata;type:jsonb;serializer:json"`
	SubtotalCents   int64                  `gorm:"column:subtotal_cents;not null"`
	ShippingCents   int64                  `gorm:"column:shipping_cents;not null"`
	TaxCents        int64                  `gorm:"column:tax_cents;not null"`
	DiscountCents   int64                  `gorm:"column:discount_cents;not null"`
	TotalCents      int64                  `gorm:"column:total_cents;not null"`
	Items           []OrderLineItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderRecord) TableName() string { return "orders" }
