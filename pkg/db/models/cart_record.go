package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/enums"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// CartRecord is the server-owned pre-order resource. The storefront only ever
// holds a projection of this row; every write funnels through the mutation
// sequencer.
type CartRecord struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	SessionKey      string                   `gorm:"column:session_key;not null;uniqueIndex:ux_carts_session_key"`
	Status          enums.CartStatus         `gorm:"column:status;not null;default:'active'"`
	Email           *string                  `gorm:"column:email"`
	ShippingAddress *types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  *types.Address           `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Shipping        *types.ShippingSelection `gorm:"column:shipping;type:jsonb;serializer:json"`
	Discounts       *types.DiscountContext   `gorm:"column:discounts;type:jsonb;serializer:json"`
	Metadata        map[string]string        `gorm:"column:metadata;type:jsonb;serializer:json"`
	SubtotalCents   int64                    `gorm:"column:subtotal_cents;not null;default:0"`
	ShippingCents   int64                    `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents        int64                    `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents   int64                    `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int64                    `gorm:"column:total_cents;not null;default:0"`
	PriceSyncedAt   *time.Time               `gorm:"column:price_synced_at"`
	ConvertedAt     *time.Time               `gorm:"column:converted_at"`
	Items           []CartItem               `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartRecord) TableName() string { return "carts" }
