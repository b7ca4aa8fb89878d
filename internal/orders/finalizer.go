package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/outbox"
)

const marketingOptInKey = "marketing_opt_in"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// sessionDiscarder voids the cart's live payment session once the order exists.
type sessionDiscarder interface {
	Discard(ctx context.Context, cartID uuid.UUID) error
}

// Finalizer converts a paid cart into an order exactly once. Creating the
// order, converting the cart, and queueing the order.placed event share one
// transaction; everything after commit is best effort and never fails the
// customer.
type Finalizer struct {
	tx       txRunner
	orders   Repository
	carts    cart.Repository
	sessions sessionDiscarder
	events   *outbox.Service
	logg     *logger.Logger
}

func NewFinalizer(tx txRunner, orders Repository, carts cart.Repository, sessions sessionDiscarder, events *outbox.Service, logg *logger.Logger) (*Finalizer, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session discarder required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Finalizer{tx: tx, orders: orders, carts: carts, sessions: sessions, events: events, logg: logg}, nil
}

// FinalizeFromPayment places the order for a cart whose payment settled.
// Repeat calls return the already-placed order.
func (f *Finalizer) FinalizeFromPayment(ctx context.Context, cartID uuid.UUID) error {
	_, err := f.Finalize(ctx, cartID)
	return err
}

func (f *Finalizer) Finalize(ctx context.Context, cartID uuid.UUID) (*models.OrderRecord, error) {
	ctx = f.logg.WithCartID(ctx, cartID.String())

	if existing, err := f.orders.FindByCartID(ctx, cartID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	record, err := f.carts.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if record.Email == nil || strings.TrimSpace(*record.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart has no email to finalize against")
	}

	var placed *models.OrderRecord
	err = f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, createErr := f.orders.WithTx(tx).Create(ctx, buildOrder(record))
		if createErr == ErrOrderExists {
			existing, findErr := f.orders.WithTx(tx).FindByCartID(ctx, cartID)
			if findErr != nil {
				return findErr
			}
			placed = existing
			return nil
		}
		if createErr != nil {
			return createErr
		}

		if convErr := f.carts.WithTx(tx).MarkConverted(ctx, cartID); convErr != nil {
			return convErr
		}

		if emitErr := f.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: outbox.OrderPlacedEvent{
				OrderID:    order.ID,
				CartID:     cartID,
				DisplayID:  order.DisplayID,
				TotalCents: order.TotalCents,
			},
		}); emitErr != nil {
			return emitErr
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.afterPlacement(ctx, record, placed)
	return placed, nil
}

// afterPlacement runs the post-commit cleanup: discard the payment session and
// queue the marketing opt-in. Failures here are logged, never surfaced.
func (f *Finalizer) afterPlacement(ctx context.Context, record *models.CartRecord, order *models.OrderRecord) {
	var errs error

	if err := f.sessions.Discard(ctx, record.ID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("discard payment session: %w", err))
	}

	if record.Metadata[marketingOptInKey] == "true" && record.Email != nil {
		err := f.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return f.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventMarketingOptIn,
				AggregateType: enums.AggregateCart,
				AggregateID:   record.ID,
				Data: outbox.MarketingOptInEvent{
					CartID: record.ID,
					Email:  *record.Email,
					OptIn:  true,
				},
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("queue marketing opt-in: %w", err))
		}
	}

	if errs != nil {
		ctx = f.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "error": errs.Error()})
		f.logg.Warn(ctx, "post-placement cleanup incomplete")
	}
}

func buildOrder(record *models.CartRecord) *models.OrderRecord {
	orderID := uuid.New()
	items := make([]models.OrderLineItem, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, models.OrderLineItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			SKU:            item.SKU,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.UnitPriceCents * int64(item.Quantity),
		})
	}

	return &models.OrderRecord{
		ID:              orderID,
		DisplayID:       displayID(orderID),
		CartID:          record.ID,
		Email:           strings.TrimSpace(*record.Email),
		Status:          enums.OrderStatusPlaced,
		ShippingAddress: record.ShippingAddress,
		BillingAddress:  record.BillingAddress,
		Discounts:       record.Discounts,
		Metadata:        record.Metadata,
		SubtotalCents:   record.SubtotalCents,
		ShippingCents:   record.ShippingCents,
		TaxCents:        record.TaxCents,
		DiscountCents:   record.DiscountCents,
		TotalCents:      record.TotalCents,
		Items:           items,
	}
}

func displayID(orderID uuid.UUID) string {
	compact := strings.ReplaceAll(orderID.String(), "-", "")
	return "FC-" + strings.ToUpper(compact[:10])
}
