package outbox

import "github.com/google/uuid"

// OrderPlacedEvent is published once per finalized order.
type OrderPlacedEvent struct {
	OrderID    uuid.UUID `json:"orderId"`
	CartID     uuid.UUID `json:"cartId"`
	DisplayID  string    `json:"displayId"`
	TotalCents int64     `json:"totalCents"`
}

// MarketingOptInEvent records the customer's newsletter preference captured at
// checkout. Consumers must tolerate duplicates.
type MarketingOptInEvent struct {
	CartID uuid.UUID `json:"cartId"`
	Email  string    `json:"email"`
	OptIn  bool      `json:"optIn"`
}
