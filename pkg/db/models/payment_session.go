package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/enums"
)

// PaymentSession binds a gateway payment intent to a cart. The unique index on
// cart_id (for live rows) is what makes session creation idempotent at the
// storage layer.
type PaymentSession struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID                  `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_payment_sessions_cart_live,where:discarded_at IS NULL"`
	GatewayIntentID  string                     `gorm:"column:gateway_intent_id;not null"`
	ClientCredential string                     `gorm:"column:client_credential;not null"`
	AmountCents      int64                      `gorm:"column:amount_cents;not null"`
	Status           enums.PaymentSessionStatus `gorm:"column:status;not null;default:'pending'"`
	DiscardedAt      *time.Time                 `gorm:"column:discarded_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentSession) TableName() string { return "payment_sessions" }
