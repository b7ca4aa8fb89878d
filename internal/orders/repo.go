package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordibadia/ferncart-backend/pkg/db"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
)

// ErrOrderExists signals a concurrent finalizer already placed the order.
var ErrOrderExists = errors.New("order already exists for cart")

// Repository persists finalized orders. The unique index on cart_id is the
// storage-level at-most-once guarantee.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.OrderRecord) (*models.OrderRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderRecord, error)
	FindByCartID(ctx context.Context, cartID uuid.UUID) (*models.OrderRecord, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.OrderRecord) (*models.OrderRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	for i := range record.Items {
		if record.Items[i].ID == uuid.Nil {
			record.Items[i].ID = uuid.New()
		}
		record.Items[i].OrderID = record.ID
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, ErrOrderExists
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return record, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderRecord, error) {
	var record models.OrderRecord
	err := r.db.WithContext(ctx).Preload("Items").First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	return &record, nil
}

func (r *repository) FindByCartID(ctx context.Context, cartID uuid.UUID) (*models.OrderRecord, error) {
	var record models.OrderRecord
	err := r.db.WithContext(ctx).Preload("Items").First(&record, "cart_id = ?", cartID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by cart")
	}
	return &record, nil
}
