package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/stripe"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

type stubSessionRepo struct {
	live          *models.PaymentSession
	created       []*models.PaymentSession
	createErr     error
	amountUpdates []int64
	statusUpdates []enums.PaymentSessionStatus
	discarded     []uuid.UUID
}

func (s *stubSessionRepo) Create(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	session.ID = uuid.New()
	s.created = append(s.created, session)
	s.live = session
	return session, nil
}

func (s *stubSessionRepo) FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error) {
	return s.live, nil
}

func (s *stubSessionRepo) LiveSessionExists(ctx context.Context, cartID uuid.UUID) (bool, error) {
	return s.live != nil, nil
}

func (s *stubSessionRepo) UpdateAmount(ctx context.Context, id uuid.UUID, amountCents int64) error {
	s.amountUpdates = append(s.amountUpdates, amountCents)
	return nil
}

func (s *stubSessionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentSessionStatus) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *stubSessionRepo) Discard(ctx context.Context, id uuid.UUID) error {
	s.discarded = append(s.discarded, id)
	s.live = nil
	return nil
}

type stubGateway struct {
	creates   int
	updates   []int64
	cancels   []string
	createErr error
	updateErr error
}

func (s *stubGateway) CreatePaymentIntent(ctx context.Context, cartID string, amountCents int64) (*stripe.Intent, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.creates++
	return &stripe.Intent{ID: "pi_test", ClientSecret: "pi_test_secret", AmountCents: amountCents, Status: "requires_payment_method"}, nil
}

func (s *stubGateway) UpdatePaymentIntentAmount(ctx context.Context, intentID string, amountCents int64) (*stripe.Intent, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.updates = append(s.updates, amountCents)
	return &stripe.Intent{ID: intentID, AmountCents: amountCents}, nil
}

func (s *stubGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	s.cancels = append(s.cancels, intentID)
	return nil
}

type stubLocker struct {
	held    map[string]bool
	denyNX  bool
	deleted []string
}

func (s *stubLocker) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.denyNX {
		return false, nil
	}
	if s.held == nil {
		s.held = map[string]bool{}
	}
	if s.held[key] {
		return false, nil
	}
	s.held[key] = true
	return true, nil
}

func (s *stubLocker) Del(ctx context.Context, keys ...string) error {
	s.deleted = append(s.deleted, keys...)
	for _, key := range keys {
		delete(s.held, key)
	}
	return nil
}

func (s *stubLocker) LockKey(scope, id string) string { return "fc:lock:" + scope + ":" + id }

func paymentReadyCart() *models.CartRecord {
	email := "fern@example.com"
	now := time.Now()
	return &models.CartRecord{
		ID:    uuid.New(),
		Email: &email,
		ShippingAddress: &types.Address{
			Line1: "1 Fern Way", City: "Portland", State: "OR", PostalCode: "97201", Country: "US",
		},
		Shipping: &types.ShippingSelection{
			Quote: types.ShippingQuote{MethodID: "usps-priority", PriceCents: 899},
		},
		PriceSyncedAt: &now,
		TotalCents:    5438,
		Items:         []models.CartItem{{Quantity: 1, UnitPriceCents: 5000}},
	}
}

func newTestManager(t *testing.T, repo SessionRepository, gateway Gateway, locks locker) *SessionManager {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	manager, err := NewSessionManager(repo, gateway, locks, config.CheckoutConfig{SessionLockTTL: time.Minute}, logg, nil)
	require.NoError(t, err)
	return manager
}

func TestEnsureSessionCreatesOnce(t *testing.T) {
	t.Parallel()

	repo := &stubSessionRepo{}
	gateway := &stubGateway{}
	manager := newTestManager(t, repo, gateway, &stubLocker{})
	cart := paymentReadyCart()

	first, err := manager.EnsureSession(context.Background(), cart)
	require.NoError(t, err)
	assert.Equal(t, "pi_test", first.GatewayIntentID)
	assert.Equal(t, int64(5438), first.AmountCents)

	second, err := manager.EnsureSession(context.Background(), cart)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, gateway.creates)
	assert.Len(t, repo.created, 1)
}

func TestEnsureSessionBlockingReasons(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, &stubSessionRepo{}, &stubGateway{}, &stubLocker{})
	cart := paymentReadyCart()
	cart.Email = nil
	cart.Shipping = nil

	_, err := manager.EnsureSession(context.Background(), cart)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	reasons, ok := details["blocking_reasons"].([]BlockingReason)
	require.True(t, ok)
	assert.Contains(t, reasons, BlockMissingEmail)
	assert.Contains(t, reasons, BlockNoShippingMethod)
	assert.NotContains(t, reasons, BlockIncompleteAddress)
}

func TestEnsureSessionReleasesLockOnGatewayFailure(t *testing.T) {
	t.Parallel()

	gateway := &stubGateway{createErr: errors.New("gateway down")}
	locks := &stubLocker{}
	manager := newTestManager(t, &stubSessionRepo{}, gateway, locks)

	_, err := manager.EnsureSession(context.Background(), paymentReadyCart())
	require.Error(t, err)
	require.Len(t, locks.deleted, 1)
	assert.Empty(t, locks.held)
}

func TestEnsureSessionDuplicateCreateReusesWinner(t *testing.T) {
	t.Parallel()

	winner := &models.PaymentSession{ID: uuid.New(), GatewayIntentID: "pi_winner"}
	repo := &duplicateOnCreateRepo{winner: winner}
	gateway := &stubGateway{}
	manager := newTestManager(t, repo, gateway, &stubLocker{})

	session, err := manager.EnsureSession(context.Background(), paymentReadyCart())
	require.NoError(t, err)
	assert.Equal(t, "pi_winner", session.GatewayIntentID)
	// the losing intent must be voided
	assert.Equal(t, []string{"pi_test"}, gateway.cancels)
}

type duplicateOnCreateRepo struct {
	stubSessionRepo
	winner  *models.PaymentSession
	created bool
}

func (d *duplicateOnCreateRepo) Create(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error) {
	d.created = true
	return nil, ErrDuplicateLiveSession
}

func (d *duplicateOnCreateRepo) FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error) {
	if d.created {
		return d.winner, nil
	}
	return nil, nil
}

func TestRefreshAmountUpdatesGatewayAndRow(t *testing.T) {
	t.Parallel()

	cart := paymentReadyCart()
	repo := &stubSessionRepo{live: &models.PaymentSession{
		ID: uuid.New(), CartID: cart.ID, GatewayIntentID: "pi_test", AmountCents: 4000,
	}}
	gateway := &stubGateway{}
	manager := newTestManager(t, repo, gateway, &stubLocker{})

	session, err := manager.RefreshAmount(context.Background(), cart)
	require.NoError(t, err)
	assert.Equal(t, int64(5438), session.AmountCents)
	assert.Equal(t, []int64{5438}, gateway.updates)
	assert.Equal(t, []int64{5438}, repo.amountUpdates)
}

func TestRefreshAmountSkipsWhenUnchanged(t *testing.T) {
	t.Parallel()

	cart := paymentReadyCart()
	repo := &stubSessionRepo{live: &models.PaymentSession{
		ID: uuid.New(), CartID: cart.ID, GatewayIntentID: "pi_test", AmountCents: cart.TotalCents,
	}}
	gateway := &stubGateway{}
	manager := newTestManager(t, repo, gateway, &stubLocker{})

	_, err := manager.RefreshAmount(context.Background(), cart)
	require.NoError(t, err)
	assert.Empty(t, gateway.updates)
	assert.Empty(t, repo.amountUpdates)
}

func TestRefreshAmountWithoutSession(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, &stubSessionRepo{}, &stubGateway{}, &stubLocker{})

	_, err := manager.RefreshAmount(context.Background(), paymentReadyCart())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestDiscardVoidsSessionAndLock(t *testing.T) {
	t.Parallel()

	cart := paymentReadyCart()
	repo := &stubSessionRepo{live: &models.PaymentSession{
		ID: uuid.New(), CartID: cart.ID, GatewayIntentID: "pi_test",
	}}
	gateway := &stubGateway{}
	locks := &stubLocker{held: map[string]bool{"fc:lock:payment_session:" + cart.ID.String(): true}}
	manager := newTestManager(t, repo, gateway, locks)

	require.NoError(t, manager.Discard(context.Background(), cart.ID))
	assert.Equal(t, []string{"pi_test"}, gateway.cancels)
	assert.Len(t, repo.discarded, 1)
	assert.Empty(t, locks.held)
}

func TestDiscardSkipsGatewayCancelForSettledSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status enums.PaymentSessionStatus
	}{
		{name: "succeeded", status: enums.PaymentStatusSucceeded},
		{name: "processing", status: enums.PaymentStatusProcessing},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cart := paymentReadyCart()
			repo := &stubSessionRepo{live: &models.PaymentSession{
				ID: uuid.New(), CartID: cart.ID, GatewayIntentID: "pi_test", Status: tc.status,
			}}
			gateway := &stubGateway{}
			locks := &stubLocker{held: map[string]bool{"fc:lock:payment_session:" + cart.ID.String(): true}}
			manager := newTestManager(t, repo, gateway, locks)

			require.NoError(t, manager.Discard(context.Background(), cart.ID))
			assert.Empty(t, gateway.cancels)
			assert.Len(t, repo.discarded, 1)
			assert.Empty(t, locks.held)
		})
	}
}
