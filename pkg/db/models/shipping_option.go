package models

import (
	"time"

	"github.com/google/uuid"
)

// ShippingOption is a platform-native shipping method, the fallback when the
// external carrier returns no quotes.
type ShippingOption struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	Position   int       `gorm:"column:position;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ShippingOption) TableName() string { return "shipping_options" }
