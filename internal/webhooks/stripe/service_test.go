package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
)

type stubSessionStore struct {
	live          *models.PaymentSession
	statusUpdates []enums.PaymentSessionStatus
}

func (s *stubSessionStore) FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error) {
	return s.live, nil
}

func (s *stubSessionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentSessionStatus) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

type stubFinalizer struct {
	finalized []uuid.UUID
	err       error
}

func (s *stubFinalizer) FinalizeFromPayment(ctx context.Context, cartID uuid.UUID) error {
	s.finalized = append(s.finalized, cartID)
	return s.err
}

func newTestService(t *testing.T, sessions sessionStore, finalizer orderFinalizer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Sessions:  sessions,
		Finalizer: finalizer,
		Logger:    logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
	})
	require.NoError(t, err)
	return svc
}

func intentEvent(t *testing.T, eventType stripe.EventType, intentID string, cartID uuid.UUID, status stripe.PaymentIntentStatus) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":       intentID,
		"status":   string(status),
		"metadata": map[string]string{"cart_id": cartID.String()},
	})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   fmt.Sprintf("evt_%s", uuid.NewString()[:8]),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventSucceededFinalizes(t *testing.T) {
	t.Parallel()

	cartID := uuid.New()
	sessions := &stubSessionStore{live: &models.PaymentSession{ID: uuid.New(), CartID: cartID, GatewayIntentID: "pi_1"}}
	finalizer := &stubFinalizer{}
	svc := newTestService(t, sessions, finalizer)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_1", cartID, stripe.PaymentIntentStatusSucceeded)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, []enums.PaymentSessionStatus{enums.PaymentStatusSucceeded}, sessions.statusUpdates)
	assert.Equal(t, []uuid.UUID{cartID}, finalizer.finalized)
}

func TestHandleEventFailedDoesNotFinalize(t *testing.T) {
	t.Parallel()

	cartID := uuid.New()
	sessions := &stubSessionStore{live: &models.PaymentSession{ID: uuid.New(), CartID: cartID, GatewayIntentID: "pi_1"}}
	finalizer := &stubFinalizer{}
	svc := newTestService(t, sessions, finalizer)

	event := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, "pi_1", cartID, stripe.PaymentIntentStatusRequiresPaymentMethod)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, []enums.PaymentSessionStatus{enums.PaymentStatusRequiresPaymentMethod}, sessions.statusUpdates)
	assert.Empty(t, finalizer.finalized)
}

func TestHandleEventIgnoresMissingSession(t *testing.T) {
	t.Parallel()

	sessions := &stubSessionStore{}
	finalizer := &stubFinalizer{}
	svc := newTestService(t, sessions, finalizer)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_1", uuid.New(), stripe.PaymentIntentStatusSucceeded)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, sessions.statusUpdates)
	assert.Empty(t, finalizer.finalized)
}

func TestHandleEventIgnoresMismatchedIntent(t *testing.T) {
	t.Parallel()

	cartID := uuid.New()
	sessions := &stubSessionStore{live: &models.PaymentSession{ID: uuid.New(), CartID: cartID, GatewayIntentID: "pi_current"}}
	finalizer := &stubFinalizer{}
	svc := newTestService(t, sessions, finalizer)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_stale", cartID, stripe.PaymentIntentStatusSucceeded)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, sessions.statusUpdates)
	assert.Empty(t, finalizer.finalized)
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	t.Parallel()

	sessions := &stubSessionStore{}
	svc := newTestService(t, sessions, &stubFinalizer{})

	event := &stripe.Event{Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, sessions.statusUpdates)
}

func TestHandleEventRejectsMissingCartID(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubSessionStore{}, &stubFinalizer{})

	raw, err := json.Marshal(map[string]any{"id": "pi_1", "status": "succeeded"})
	require.NoError(t, err)
	event := &stripe.Event{Type: stripe.EventTypePaymentIntentSucceeded, Data: &stripe.EventData{Raw: raw}}
	require.Error(t, svc.HandleEvent(context.Background(), event))
}
