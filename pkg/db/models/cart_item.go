package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one cart line with its discount attribution snapshot.
type CartItem struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID         `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID        `gorm:"column:variant_id;type:uuid"`
	SKU            string            `gorm:"column:sku;not null"`
	Title          string            `gorm:"column:title;not null"`
	Quantity       int               `gorm:"column:quantity;not null"`
	UnitPriceCents int64             `gorm:"column:unit_price_cents;not null"`
	WeightGrams    int               `gorm:"column:weight_grams;not null;default:0"`
	DiscountMeta   map[string]string `gorm:"column:discount_meta;type:jsonb;serializer:json"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
