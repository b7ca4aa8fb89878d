package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/metrics"
	"github.com/jordibadia/ferncart-backend/pkg/stripe"
)

// Gateway is the slice of the payment provider the manager needs.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, cartID string, amountCents int64) (*stripe.Intent, error)
	UpdatePaymentIntentAmount(ctx context.Context, intentID string, amountCents int64) (*stripe.Intent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error
}

// locker provides short-lived mutual exclusion around intent creation.
type locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope, id string) string
}

const sessionLockScope = "payment_session"

// BlockingReason names one precondition a cart fails before a payment session
// may exist for it.
type BlockingReason string

const (
	BlockMissingEmail      BlockingReason = "missing_email"
	BlockIncompleteAddress BlockingReason = "incomplete_address"
	BlockNoShippingMethod  BlockingReason = "no_shipping_method"
	BlockPriceNotSynced    BlockingReason = "price_not_synced"
	BlockEmptyCart         BlockingReason = "empty_cart"
)

// SessionManager owns the one-live-session-per-cart invariant. Creation is
// guarded three ways: a redis lock against concurrent creates in this process
// group, the partial unique index as the storage backstop, and reuse of the
// existing row before either is consulted.
type SessionManager struct {
	sessions SessionRepository
	gateway  Gateway
	locks    locker
	cfg      config.CheckoutConfig
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewSessionManager(sessions SessionRepository, gateway Gateway, locks locker, cfg config.CheckoutConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*SessionManager, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SessionManager{
		sessions: sessions,
		gateway:  gateway,
		locks:    locks,
		cfg:      cfg,
		logg:     logg,
		metrics:  m,
	}, nil
}

// BlockingReasons returns every unmet precondition, not just the first, so the
// storefront can surface all of them at once.
func BlockingReasons(cart *models.CartRecord) []BlockingReason {
	var reasons []BlockingReason
	if len(cart.Items) == 0 {
		reasons = append(reasons, BlockEmptyCart)
	}
	if cart.Email == nil || strings.TrimSpace(*cart.Email) == "" {
		reasons = append(reasons, BlockMissingEmail)
	}
	if cart.ShippingAddress == nil || !cart.ShippingAddress.Complete() {
		reasons = append(reasons, BlockIncompleteAddress)
	}
	if cart.Shipping == nil || cart.Shipping.Quote.MethodID == "" {
		reasons = append(reasons, BlockNoShippingMethod)
	}
	if cart.PriceSyncedAt == nil {
		reasons = append(reasons, BlockPriceNotSynced)
	}
	return reasons
}

// EnsureSession returns the cart's live session, creating one when absent.
// Calling it twice never yields two live sessions.
func (m *SessionManager) EnsureSession(ctx context.Context, cart *models.CartRecord) (*models.PaymentSession, error) {
	ctx = m.logg.WithCartID(ctx, cart.ID.String())

	if reasons := BlockingReasons(cart); len(reasons) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not ready for payment").
			WithDetails(map[string]any{"blocking_reasons": reasons})
	}

	existing, err := m.sessions.FindLiveByCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.metrics.IncSessionReused()
		return existing, nil
	}

	lockKey := m.locks.LockKey(sessionLockScope, cart.ID.String())
	acquired, err := m.locks.SetNX(ctx, lockKey, "1", m.cfg.SessionLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire session lock")
	}
	if !acquired {
		// another request is mid-create; its row may already be visible
		if existing, err := m.sessions.FindLiveByCart(ctx, cart.ID); err == nil && existing != nil {
			m.metrics.IncSessionReused()
			return existing, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment session creation already in progress")
	}

	session, err := m.createSession(ctx, cart)
	if err != nil {
		if delErr := m.locks.Del(ctx, lockKey); delErr != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", delErr.Error()), "failed to release session lock")
		}
		return nil, err
	}
	m.metrics.IncSessionCreated()
	return session, nil
}

func (m *SessionManager) createSession(ctx context.Context, cart *models.CartRecord) (*models.PaymentSession, error) {
	intent, err := m.gateway.CreatePaymentIntent(ctx, cart.ID.String(), cart.TotalCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	session, err := m.sessions.Create(ctx, &models.PaymentSession{
		CartID:           cart.ID,
		GatewayIntentID:  intent.ID,
		ClientCredential: intent.ClientSecret,
		AmountCents:      intent.AmountCents,
	})
	if err == ErrDuplicateLiveSession {
		// lost the race at the storage layer: keep the winner, void ours
		if cancelErr := m.gateway.CancelPaymentIntent(ctx, intent.ID); cancelErr != nil {
			m.logg.Warn(m.logg.WithField(ctx, "intent_id", intent.ID), "failed to cancel orphaned payment intent")
		}
		return m.sessions.FindLiveByCart(ctx, cart.ID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RefreshAmount re-captures the cart's current total onto the live session's
// intent. Runs immediately before submission so the charged amount can never
// trail a cart edit.
func (m *SessionManager) RefreshAmount(ctx context.Context, cart *models.CartRecord) (*models.PaymentSession, error) {
	session, err := m.sessions.FindLiveByCart(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no live payment session for cart")
	}
	if session.AmountCents == cart.TotalCents {
		return session, nil
	}

	if _, err := m.gateway.UpdatePaymentIntentAmount(ctx, session.GatewayIntentID, cart.TotalCents); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh payment intent amount")
	}
	if err := m.sessions.UpdateAmount(ctx, session.ID, cart.TotalCents); err != nil {
		return nil, err
	}
	session.AmountCents = cart.TotalCents
	return session, nil
}

// Discard voids the live session and releases the creation lock so the cart
// becomes mutable again.
func (m *SessionManager) Discard(ctx context.Context, cartID uuid.UUID) error {
	session, err := m.sessions.FindLiveByCart(ctx, cartID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	// a settled intent cannot be canceled at the gateway; only the row is retired
	if session.Status != enums.PaymentStatusSucceeded && session.Status != enums.PaymentStatusProcessing {
		if err := m.gateway.CancelPaymentIntent(ctx, session.GatewayIntentID); err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "intent_id", session.GatewayIntentID), "failed to cancel payment intent during discard")
		}
	}
	if err := m.sessions.Discard(ctx, session.ID); err != nil {
		return err
	}
	return m.ReleaseLock(ctx, cartID)
}

// ReleaseLock drops the creation lock without touching the session row.
func (m *SessionManager) ReleaseLock(ctx context.Context, cartID uuid.UUID) error {
	return m.locks.Del(ctx, m.locks.LockKey(sessionLockScope, cartID.String()))
}
