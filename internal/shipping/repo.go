package shipping

import (
	"context"

	"gorm.io/gorm"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
)

// OptionRepository loads the platform-native shipping options used when no
// carrier quotes are available.
type OptionRepository interface {
	ListActive(ctx context.Context) ([]models.ShippingOption, error)
}

type optionRepository struct {
	db *gorm.DB
}

func NewOptionRepository(db *gorm.DB) OptionRepository {
	return &optionRepository{db: db}
}

func (r *optionRepository) ListActive(ctx context.Context) ([]models.ShippingOption, error) {
	var options []models.ShippingOption
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("position ASC, price_cents ASC").
		Find(&options).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipping options")
	}
	return options, nil
}
