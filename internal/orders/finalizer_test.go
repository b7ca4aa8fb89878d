package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/outbox"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  session_key TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'active',
  email TEXT,
  shipping_address TEXT,
  billing_address TEXT,
  shipping TEXT,
  discounts TEXT,
  metadata TEXT,
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  price_synced_at DATETIME,
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  discount_meta TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  display_id TEXT NOT NULL UNIQUE,
  cart_id TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'placed',
  shipping_address TEXT,
  billing_address TEXT,
  discounts TEXT,
  metadata TEXT,
  subtotal_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  published_at DATETIME,
  last_error TEXT,
  created_at DATETIME,
  UNIQUE (event_type, aggregate_type, aggregate_id)
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type recordingDiscarder struct {
	discarded []uuid.UUID
	err       error
}

func (r *recordingDiscarder) Discard(ctx context.Context, cartID uuid.UUID) error {
	r.discarded = append(r.discarded, cartID)
	return r.err
}

type finalizerFixture struct {
	db        *gorm.DB
	finalizer *Finalizer
	discarder *recordingDiscarder
	carts     cart.Repository
}

func newFinalizerFixture(t *testing.T) *finalizerFixture {
	t.Helper()

	db := setupOrdersTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	carts := cart.NewRepository(db)
	discarder := &recordingDiscarder{}
	events := outbox.NewService(outbox.NewRepository(db), logg)

	finalizer, err := NewFinalizer(gormTxRunner{db: db}, NewRepository(db), carts, discarder, events, logg)
	require.NoError(t, err)
	return &finalizerFixture{db: db, finalizer: finalizer, discarder: discarder, carts: carts}
}

func (f *finalizerFixture) seedPaidCart(t *testing.T, metadata map[string]string) *models.CartRecord {
	t.Helper()

	email := "fern@example.com"
	record, err := f.carts.Create(context.Background(), &models.CartRecord{
		SessionKey: "sess-" + uuid.NewString()[:8],
		Status:     enums.CartStatusActive,
		Email:      &email,
		ShippingAddress: &types.Address{
			Line1: "1 Fern Way", City: "Portland", State: "OR", PostalCode: "97201", Country: "US",
		},
		Metadata:      metadata,
		SubtotalCents: 5000,
		ShippingCents: 899,
		TaxCents:      438,
		TotalCents:    6337,
		Items: []models.CartItem{
			{ProductID: uuid.New(), SKU: "FERN-01", Title: "Boston Fern", Quantity: 2, UnitPriceCents: 2500},
		},
	})
	require.NoError(t, err)
	return record
}

func (f *finalizerFixture) outboxEvents(t *testing.T) []models.OutboxEvent {
	t.Helper()
	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	return events
}

func TestFinalizePlacesOrderOnce(t *testing.T) {
	t.Parallel()

	fx := newFinalizerFixture(t)
	record := fx.seedPaidCart(t, nil)
	ctx := context.Background()

	order, err := fx.finalizer.Finalize(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, order.CartID)
	assert.Equal(t, int64(6337), order.TotalCents)
	assert.Contains(t, order.DisplayID, "FC-")
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(5000), order.Items[0].TotalCents)

	// repeat finalization returns the same order, places nothing new
	again, err := fx.finalizer.Finalize(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)

	var count int64
	require.NoError(t, fx.db.Model(&models.OrderRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFinalizeConvertsCartAndQueuesEvent(t *testing.T) {
	t.Parallel()

	fx := newFinalizerFixture(t)
	record := fx.seedPaidCart(t, nil)
	ctx := context.Background()

	_, err := fx.finalizer.Finalize(ctx, record.ID)
	require.NoError(t, err)

	reloaded, err := fx.carts.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusConverted, reloaded.Status)
	assert.NotNil(t, reloaded.ConvertedAt)

	events := fx.outboxEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderPlaced, events[0].EventType)

	assert.Equal(t, []uuid.UUID{record.ID}, fx.discarder.discarded)
}

func TestFinalizeQueuesMarketingOptIn(t *testing.T) {
	t.Parallel()

	fx := newFinalizerFixture(t)
	record := fx.seedPaidCart(t, map[string]string{"marketing_opt_in": "true"})

	_, err := fx.finalizer.Finalize(context.Background(), record.ID)
	require.NoError(t, err)

	events := fx.outboxEvents(t)
	require.Len(t, events, 2)
	eventTypes := []enums.OutboxEventType{events[0].EventType, events[1].EventType}
	assert.Contains(t, eventTypes, enums.EventOrderPlaced)
	assert.Contains(t, eventTypes, enums.EventMarketingOptIn)
}

func TestFinalizeSessionDiscardFailureDoesNotFailCustomer(t *testing.T) {
	t.Parallel()

	fx := newFinalizerFixture(t)
	fx.discarder.err = errors.New("redis unavailable")
	record := fx.seedPaidCart(t, map[string]string{"marketing_opt_in": "true"})

	order, err := fx.finalizer.Finalize(context.Background(), record.ID)
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestFinalizeRequiresEmail(t *testing.T) {
	t.Parallel()

	fx := newFinalizerFixture(t)
	record, err := fx.carts.Create(context.Background(), &models.CartRecord{
		SessionKey: "sess-no-email",
		Status:     enums.CartStatusActive,
	})
	require.NoError(t, err)

	_, err = fx.finalizer.Finalize(context.Background(), record.ID)
	require.Error(t, err)
}
