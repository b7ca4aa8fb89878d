package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	carts := `
CREATE TABLE IF NOT EXISTS carts (
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
);`
	items := `
CREATE TABLE IF NOT EXISTS cart_items (
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
);`
	require.NoError(t, db.Exec(carts).Error)
	require.NoError(t, db.Exec(items).Error)
	return db
}

func TestRepositoryCreateAssignsIDs(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupCartTestDB(t))
	record, err := repo.Create(context.Background(), &models.CartRecord{
		SessionKey: "sess-1",
		Status:     enums.CartStatusActive,
		Items: []models.CartItem{
			{ProductID: uuid.New(), SKU: "FERN-01", Title: "Boston Fern", Quantity: 2, UnitPriceCents: 1999},
		},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, record.ID)
	require.Len(t, record.Items, 1)
	assert.NotEqual(t, uuid.Nil, record.Items[0].ID)
	assert.Equal(t, record.ID, record.Items[0].CartID)
}

func TestRepositoryFindBySessionKey(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupCartTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.CartRecord{SessionKey: "sess-2", Status: enums.CartStatusActive})
	require.NoError(t, err)

	found, err := repo.FindBySessionKey(ctx, "sess-2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := repo.FindBySessionKey(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryFindBySessionKeySkipsConverted(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupCartTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.CartRecord{SessionKey: "sess-3", Status: enums.CartStatusActive})
	require.NoError(t, err)
	require.NoError(t, repo.MarkConverted(ctx, created.ID))

	found, err := repo.FindBySessionKey(ctx, "sess-3")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepositoryUpdateFieldsNotFound(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupCartTestDB(t))
	err := repo.UpdateFields(context.Background(), uuid.New(), map[string]any{"email": "fern@example.com"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestRepositoryMarkConverted(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupCartTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.CartRecord{SessionKey: "sess-4", Status: enums.CartStatusActive})
	require.NoError(t, err)
	require.NoError(t, repo.MarkConverted(ctx, created.ID))

	reloaded, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusConverted, reloaded.Status)
	require.NotNil(t, reloaded.ConvertedAt)
}
