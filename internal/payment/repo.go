package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordibadia/ferncart-backend/pkg/db"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
)

// ErrDuplicateLiveSession signals a concurrent writer already bound a live
// session to the cart.
var ErrDuplicateLiveSession = errors.New("live payment session already exists for cart")

// SessionRepository persists gateway session rows. The partial unique index on
// cart_id makes the live-session invariant hold even under concurrent creates.
type SessionRepository interface {
	Create(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error)
	FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error)
	LiveSessionExists(ctx context.Context, cartID uuid.UUID) (bool, error)
	UpdateAmount(ctx context.Context, id uuid.UUID, amountCents int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentSessionStatus) error
	Discard(ctx context.Context, id uuid.UUID) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(gdb *gorm.DB) SessionRepository {
	return &sessionRepository{db: gdb}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, ErrDuplicateLiveSession
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}
	return session, nil
}

func (r *sessionRepository) FindLiveByCart(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND discarded_at IS NULL", cartID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find live payment session")
	}
	return &session, nil
}

func (r *sessionRepository) LiveSessionExists(ctx context.Context, cartID uuid.UUID) (bool, error) {
	session, err := r.FindLiveByCart(ctx, cartID)
	if err != nil {
		return false, err
	}
	return session != nil, nil
}

func (r *sessionRepository) UpdateAmount(ctx context.Context, id uuid.UUID, amountCents int64) error {
	return r.updateFields(ctx, id, map[string]any{"amount_cents": amountCents})
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentSessionStatus) error {
	return r.updateFields(ctx, id, map[string]any{"status": status})
}

func (r *sessionRepository) Discard(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.updateFields(ctx, id, map[string]any{
		"status":       enums.PaymentStatusCanceled,
		"discarded_at": &now,
	})
}

func (r *sessionRepository) updateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.PaymentSession{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update payment session")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
	}
	return nil
}
