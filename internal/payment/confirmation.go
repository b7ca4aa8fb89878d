package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/metrics"
)

// Decision is what the checkout saga should do after a confirmation attempt.
type Decision string

const (
	// DecisionFinalize: the payment is settled or settling, place the order.
	DecisionFinalize Decision = "finalize"
	// DecisionAwaitAction: the buyer must complete an extra step (3DS etc);
	// the session stays live.
	DecisionAwaitAction Decision = "await_action"
	// DecisionRetryPayment: the payment method was declined; the session stays
	// live so the buyer can try another method.
	DecisionRetryPayment Decision = "retry_payment"
)

// lockReleaser frees the session creation lock after a transport failure so a
// follow-up confirmation attempt is not wedged.
type lockReleaser interface {
	ReleaseLock(ctx context.Context, cartID uuid.UUID) error
}

// ConfirmationHandler maps gateway confirmation outcomes onto saga decisions.
type ConfirmationHandler struct {
	sessions SessionRepository
	locks    lockReleaser
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

func NewConfirmationHandler(sessions SessionRepository, locks lockReleaser, logg *logger.Logger, m *metrics.CheckoutMetrics) (*ConfirmationHandler, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock releaser required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ConfirmationHandler{sessions: sessions, locks: locks, logg: logg, metrics: m}, nil
}

// Handle records the gateway status on the session and decides the next step.
//
// A transport error means we do not know what the gateway did: the raw error
// is surfaced untranslated and the creation lock is released so the buyer can
// retry. An unrecognized status is logged and treated as processing, which is
// the conservative branch: the webhook stream will deliver the real outcome.
func (h *ConfirmationHandler) Handle(ctx context.Context, session *models.PaymentSession, gatewayStatus string, transportErr error) (Decision, error) {
	ctx = h.logg.WithCartID(ctx, session.CartID.String())

	if transportErr != nil {
		if err := h.locks.ReleaseLock(ctx, session.CartID); err != nil {
			h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "failed to release session lock after transport error")
		}
		h.metrics.IncPaymentOutcome("transport_error")
		return "", transportErr
	}

	status := normalizeStatus(ctx, h.logg, gatewayStatus)
	if err := h.sessions.UpdateStatus(ctx, session.ID, status); err != nil {
		return "", err
	}
	h.metrics.IncPaymentOutcome(string(status))

	switch status {
	case enums.PaymentStatusSucceeded, enums.PaymentStatusProcessing:
		return DecisionFinalize, nil
	case enums.PaymentStatusRequiresAction:
		return DecisionAwaitAction, nil
	case enums.PaymentStatusRequiresPaymentMethod:
		return DecisionRetryPayment, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unhandled payment status %q", status))
	}
}

func normalizeStatus(ctx context.Context, logg *logger.Logger, gatewayStatus string) enums.PaymentSessionStatus {
	switch enums.PaymentSessionStatus(gatewayStatus) {
	case enums.PaymentStatusSucceeded:
		return enums.PaymentStatusSucceeded
	case enums.PaymentStatusProcessing:
		return enums.PaymentStatusProcessing
	case enums.PaymentStatusRequiresAction:
		return enums.PaymentStatusRequiresAction
	case enums.PaymentStatusRequiresPaymentMethod:
		return enums.PaymentStatusRequiresPaymentMethod
	default:
		logg.Warn(logg.WithField(ctx, "gateway_status", gatewayStatus), "unknown gateway payment status, treating as processing")
		return enums.PaymentStatusProcessing
	}
}

// DecisionError translates a non-finalizing decision into the typed error the
// API layer serves to the storefront.
func DecisionError(decision Decision) error {
	switch decision {
	case DecisionAwaitAction:
		return pkgerrors.New(pkgerrors.CodePaymentAction, "payment requires additional customer action")
	case DecisionRetryPayment:
		return pkgerrors.New(pkgerrors.CodePaymentRetry, "payment method declined, provide another method")
	default:
		return nil
	}
}
