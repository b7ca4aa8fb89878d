package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/internal/payment"
	"github.com/jordibadia/ferncart-backend/internal/pricing"
	"github.com/jordibadia/ferncart-backend/internal/shipping"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/metrics"
	"github.com/jordibadia/ferncart-backend/pkg/stripe"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// cartReader reloads cart state between saga steps.
type cartReader interface {
	Get(ctx context.Context, cartID uuid.UUID) (*models.CartRecord, error)
	AddShippingMethod(ctx context.Context, cartID uuid.UUID, selection types.ShippingSelection) error
}

// sessionManager is the payment surface the saga drives.
type sessionManager interface {
	EnsureSession(ctx context.Context, cart *models.CartRecord) (*models.PaymentSession, error)
	RefreshAmount(ctx context.Context, cart *models.CartRecord) (*models.PaymentSession, error)
	Discard(ctx context.Context, cartID uuid.UUID) error
}

// intentReader fetches the gateway's view of an intent during confirmation.
type intentReader interface {
	GetPaymentIntent(ctx context.Context, intentID string) (*stripe.Intent, error)
}

type sessionFinder interface {
	FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error)
}

type confirmationHandler interface {
	Handle(ctx context.Context, session *models.PaymentSession, gatewayStatus string, transportErr error) (payment.Decision, error)
}

type priceSyncer interface {
	SyncWithRetry(ctx context.Context, cartID uuid.UUID) (*pricing.Totals, error)
}

type quoteResolver interface {
	Resolve(ctx context.Context, cart *models.CartRecord) (*shipping.Resolution, error)
}

type finalizer interface {
	Finalize(ctx context.Context, cartID uuid.UUID) (*models.OrderRecord, error)
}

// InitializeInput is the buyer-provided state applied during initialization.
type InitializeInput struct {
	ShippingAddress *types.Address
	BillingAddress  *types.Address
	Email           string
	ShippingMethod  *types.ShippingSelection
}

// InitializeResult is everything the storefront needs to render the payment
// step.
type InitializeResult struct {
	Cart             *models.CartRecord
	Quotes           []types.ShippingQuote
	Totals           *pricing.Totals
	ClientCredential string
	AmountCents      int64
	AddressWarning   string
}

// ConfirmResult reports the confirmation outcome.
type ConfirmResult struct {
	Decision payment.Decision
	Order    *models.OrderRecord
}

// Service runs the checkout saga: ordered cart mutations, shipping
// resolution, bounded price sync, then payment session creation. Each step's
// failure mode is distinct so the storefront can react precisely.
type Service struct {
	carts         cartReader
	sequencer     *cart.Sequencer
	resolver      quoteResolver
	retrier       priceSyncer
	sessions      sessionManager
	sessionReader sessionFinder
	confirmations confirmationHandler
	gateway       intentReader
	orders        finalizer
	guard         *Guard
	logg          *logger.Logger
	metrics       *metrics.CheckoutMetrics
}

type ServiceParams struct {
	Carts         cartReader
	Sequencer     *cart.Sequencer
	Resolver      quoteResolver
	Retrier       priceSyncer
	Sessions      sessionManager
	SessionReader sessionFinder
	Confirmations confirmationHandler
	Gateway       intentReader
	Orders        finalizer
	Guard         *Guard
	Logger        *logger.Logger
	Metrics       *metrics.CheckoutMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Sequencer == nil {
		return nil, fmt.Errorf("sequencer required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if params.Retrier == nil {
		return nil, fmt.Errorf("price retrier required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if params.SessionReader == nil {
		return nil, fmt.Errorf("session reader required")
	}
	if params.Confirmations == nil {
		return nil, fmt.Errorf("confirmation handler required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order finalizer required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("guard required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		carts:         params.Carts,
		sequencer:     params.Sequencer,
		resolver:      params.Resolver,
		retrier:       params.Retrier,
		sessions:      params.Sessions,
		sessionReader: params.SessionReader,
		confirmations: params.Confirmations,
		gateway:       params.Gateway,
		orders:        params.Orders,
		guard:         params.Guard,
		logg:          params.Logger,
		metrics:       params.Metrics,
	}, nil
}

// Initialize runs the full pre-payment saga for a cart. Concurrent calls for
// the same cart are rejected; a failed run may be retried.
func (s *Service) Initialize(ctx context.Context, cartID uuid.UUID, input InitializeInput) (*InitializeResult, error) {
	started := time.Now()
	if err := s.guard.TryBegin(cartID); err != nil {
		return nil, err
	}

	result, err := s.initialize(ctx, cartID, input)
	s.guard.Finish(cartID, err == nil)
	if err != nil {
		s.metrics.ObserveInit("error", time.Since(started))
		return nil, err
	}
	s.metrics.ObserveInit("ok", time.Since(started))
	return result, nil
}

func (s *Service) initialize(ctx context.Context, cartID uuid.UUID, input InitializeInput) (*InitializeResult, error) {
	ctx = s.logg.WithCartID(ctx, cartID.String())

	mutation, err := s.sequencer.Apply(ctx, cartID, cart.MutationInput{
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		Email:           input.Email,
		Shipping:        input.ShippingMethod,
	})
	if err != nil {
		return nil, err
	}

	record, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	ctx2 := s.logg.WithCheckoutStep(ctx, string(enums.StepShipping))
	resolution, err := s.resolver.Resolve(ctx2, record)
	if err != nil {
		return nil, err
	}
	if resolution.Selection != nil && !resolution.Superseded {
		if err := s.carts.AddShippingMethod(ctx2, cartID, *resolution.Selection); err != nil {
			return nil, err
		}
	}

	ctx3 := s.logg.WithCheckoutStep(ctx, string(enums.StepPriceSync))
	totals, err := s.retrier.SyncWithRetry(ctx3, cartID)
	if err != nil {
		// totals could not be confirmed: payment must not open
		return nil, err
	}

	record, err = s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	ctx4 := s.logg.WithCheckoutStep(ctx, string(enums.StepSession))
	session, err := s.sessions.EnsureSession(ctx4, record)
	if err != nil {
		return nil, err
	}

	result := &InitializeResult{
		Cart:             record,
		Quotes:           resolution.Quotes,
		Totals:           totals,
		ClientCredential: session.ClientCredential,
		AmountCents:      session.AmountCents,
	}
	if mutation.AddressErr != nil {
		result.AddressWarning = "shipping address could not be saved, please verify it before payment"
	}
	return result, nil
}

// PrepareSubmit re-syncs totals and re-captures the amount on the live
// session immediately before the buyer confirms payment.
func (s *Service) PrepareSubmit(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error) {
	ctx = s.logg.WithCartID(ctx, cartID.String())

	if _, err := s.retrier.SyncWithRetry(ctx, cartID); err != nil {
		return nil, err
	}
	record, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return s.sessions.RefreshAmount(ctx, record)
}

// Confirm asks the gateway for the intent's outcome and applies the
// confirmation state machine. A finalize decision places the order.
func (s *Service) Confirm(ctx context.Context, cartID uuid.UUID) (*ConfirmResult, error) {
	ctx = s.logg.WithCheckoutStep(s.logg.WithCartID(ctx, cartID.String()), string(enums.StepConfirm))

	session, err := s.sessionReader.FindLiveByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no live payment session to confirm")
	}

	intent, transportErr := s.gateway.GetPaymentIntent(ctx, session.GatewayIntentID)
	gatewayStatus := ""
	if intent != nil {
		gatewayStatus = intent.Status
	}

	decision, err := s.confirmations.Handle(ctx, session, gatewayStatus, transportErr)
	if err != nil {
		return nil, err
	}

	if decision != payment.DecisionFinalize {
		return &ConfirmResult{Decision: decision}, payment.DecisionError(decision)
	}

	ctx = s.logg.WithCheckoutStep(ctx, string(enums.StepFinalize))
	order, err := s.orders.Finalize(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Decision: decision, Order: order}, nil
}

// Abandon discards the live payment session and reopens the cart for edits.
func (s *Service) Abandon(ctx context.Context, cartID uuid.UUID) error {
	ctx = s.logg.WithCartID(ctx, cartID.String())
	if err := s.sessions.Discard(ctx, cartID); err != nil {
		return err
	}
	s.guard.Reset(cartID)
	return nil
}
