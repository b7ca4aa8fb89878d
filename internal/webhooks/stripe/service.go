package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
)

type sessionStore interface {
	FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentSessionStatus) error
}

type orderFinalizer interface {
	FinalizeFromPayment(ctx context.Context, cartID uuid.UUID) error
}

type ServiceParams struct {
	Sessions  sessionStore
	Finalizer orderFinalizer
	Logger    *logger.Logger
}

// Service applies asynchronous gateway payment outcomes. The webhook stream is
// the source of truth for payments that confirmed as processing: a later
// succeeded event lands here, not on the confirm endpoint.
type Service struct {
	sessions  sessionStore
	finalizer orderFinalizer
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store required")
	}
	if params.Finalizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order finalizer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		sessions:  params.Sessions,
		finalizer: params.Finalizer,
		logg:      params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.syncIntent(ctx, &intent)
	default:
		return nil
	}
}

func (s *Service) syncIntent(ctx context.Context, intent *stripe.PaymentIntent) error {
	cartID, err := cartIDFromMetadata(intent.Metadata)
	if err != nil {
		return err
	}
	ctx = s.logg.WithCartID(ctx, cartID.String())

	session, err := s.sessions.FindLiveByCart(ctx, cartID)
	if err != nil {
		return err
	}
	if session == nil {
		// already finalized and discarded, or never created: nothing to apply
		s.logg.Info(ctx, "ignoring payment event without a live session")
		return nil
	}
	if session.GatewayIntentID != intent.ID {
		s.logg.Warn(s.logg.WithField(ctx, "intent_id", intent.ID), "payment event intent does not match live session, ignoring")
		return nil
	}

	status := intentStatus(intent)
	if err := s.sessions.UpdateStatus(ctx, session.ID, status); err != nil {
		return err
	}

	if status == enums.PaymentStatusSucceeded {
		return s.finalizer.FinalizeFromPayment(ctx, cartID)
	}
	return nil
}

func cartIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw := metadata["cart_id"]
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "cart_id missing from intent metadata")
	}
	cartID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart_id in intent metadata")
	}
	return cartID, nil
}

func intentStatus(intent *stripe.PaymentIntent) enums.PaymentSessionStatus {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return enums.PaymentStatusProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		return enums.PaymentStatusRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return enums.PaymentStatusRequiresPaymentMethod
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentStatusCanceled
	default:
		return enums.PaymentStatusProcessing
	}
}
