package controllers

import (
	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

type cartResponse struct {
	CartID          uuid.UUID                `json:"cart_id"`
	Status          string                   `json:"status"`
	Email           *string                  `json:"email,omitempty"`
	ShippingAddress *types.Address           `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address           `json:"billing_address,omitempty"`
	Shipping        *types.ShippingSelection `json:"shipping,omitempty"`
	SubtotalCents   int64                    `json:"subtotal_cents"`
	ShippingCents   int64                    `json:"shipping_cents"`
	TaxCents        int64                    `json:"tax_cents"`
	DiscountCents   int64                    `json:"discount_cents"`
	TotalCents      int64                    `json:"total_cents"`
	Items           []cartItemResponse       `json:"items"`
}

type cartItemResponse struct {
	ItemID         uuid.UUID `json:"item_id"`
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	Title          string    `json:"title"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

func newCartResponse(record *models.CartRecord) cartResponse {
	if record == nil {
		return cartResponse{}
	}
	items := make([]cartItemResponse, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, cartItemResponse{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return cartResponse{
		CartID:          record.ID,
		Status:          string(record.Status),
		Email:           record.Email,
		ShippingAddress: record.ShippingAddress,
		BillingAddress:  record.BillingAddress,
		Shipping:        record.Shipping,
		SubtotalCents:   record.SubtotalCents,
		ShippingCents:   record.ShippingCents,
		TaxCents:        record.TaxCents,
		DiscountCents:   record.DiscountCents,
		TotalCents:      record.TotalCents,
		Items:           items,
	}
}

type orderResponse struct {
	OrderID       uuid.UUID           `json:"order_id"`
	DisplayID     string              `json:"display_id"`
	Status        string              `json:"status"`
	Email         string              `json:"email"`
	SubtotalCents int64               `json:"subtotal_cents"`
	ShippingCents int64               `json:"shipping_cents"`
	TaxCents      int64               `json:"tax_cents"`
	DiscountCents int64               `json:"discount_cents"`
	TotalCents    int64               `json:"total_cents"`
	Items         []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ItemID         uuid.UUID `json:"item_id"`
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	Title          string    `json:"title"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
}

func newOrderResponse(order *models.OrderRecord) *orderResponse {
	if order == nil {
		return nil
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return &orderResponse{
		OrderID:       order.ID,
		DisplayID:     order.DisplayID,
		Status:        string(order.Status),
		Email:         order.Email,
		SubtotalCents: order.SubtotalCents,
		ShippingCents: order.ShippingCents,
		TaxCents:      order.TaxCents,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		Items:         items,
	}
}
