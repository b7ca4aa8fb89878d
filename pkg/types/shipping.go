package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ShippingQuoteSource distinguishes external carrier quotes from platform-native options.
type ShippingQuoteSource string

const (
	ShippingSourceCarrier ShippingQuoteSource = "carrier"
	ShippingSourceNative  ShippingQuoteSource = "native"
)

// ShippingQuote is a single selectable shipping method, regardless of source.
type ShippingQuote struct {
	Source     ShippingQuoteSource `json:"source"`
	MethodID   string              `json:"method_id"`
	Courier    string              `json:"courier,omitempty"`
	Name       string              `json:"name"`
	PriceCents int64               `json:"price_cents"`
	ETADays    int                 `json:"eta_days,omitempty"`
}

// ShippingSelection records the method attached to a cart and whether the
// customer picked it, the resolver auto-selected it, or free shipping left the
// final choice to an operator.
type ShippingSelection struct {
	Quote        ShippingQuote `json:"quote"`
	UserSelected bool          `json:"user_selected"`
	FreeShipping bool          `json:"free_shipping"`
}

// DisplayPriceCents is the shipping amount shown to the customer; free shipping
// keeps the underlying method but waives its price.
func (s ShippingSelection) DisplayPriceCents() int64 {
	if s.FreeShipping {
		return 0
	}
	return s.Quote.PriceCents
}

func (s ShippingSelection) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ShippingSelection) Scan(value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported shipping selection column type %T", value)
	}
}
