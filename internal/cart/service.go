package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/enums"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// sessionChecker reports whether a live payment session is bound to a cart.
// Implemented by the payment session repository.
type sessionChecker interface {
	LiveSessionExists(ctx context.Context, cartID uuid.UUID) (bool, error)
}

// Service exposes the cart surface consumed by the storefront and the checkout
// saga. Every mutation refuses to run while a live payment session is bound to
// the cart: mutating the cart at that point would invalidate the session's
// captured amount.
type Service interface {
	CreateOrGet(ctx context.Context, sessionKey string) (*models.CartRecord, error)
	Get(ctx context.Context, cartID uuid.UUID) (*models.CartRecord, error)
	UpdateAddresses(ctx context.Context, cartID uuid.UUID, shipping, billing *types.Address) error
	UpdateEmail(ctx context.Context, cartID uuid.UUID, email string) error
	AddShippingMethod(ctx context.Context, cartID uuid.UUID, selection types.ShippingSelection) error
	MergeMetadata(ctx context.Context, cartID uuid.UUID, metadata map[string]string) error
}

type service struct {
	repo     Repository
	sessions sessionChecker
}

// NewService builds the cart service.
func NewService(repo Repository, sessions sessionChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session checker required")
	}
	return &service{repo: repo, sessions: sessions}, nil
}

func (s *service) CreateOrGet(ctx context.Context, sessionKey string) (*models.CartRecord, error) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session key is required")
	}
	existing, err := s.repo.FindBySessionKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.repo.Create(ctx, &models.CartRecord{
		SessionKey: key,
		Status:     enums.CartStatusActive,
	})
}

func (s *service) Get(ctx context.Context, cartID uuid.UUID) (*models.CartRecord, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	return s.repo.FindByID(ctx, cartID)
}

func (s *service) UpdateAddresses(ctx context.Context, cartID uuid.UUID, shipping, billing *types.Address) error {
	if err := s.ensureMutable(ctx, cartID); err != nil {
		return err
	}
	fields := map[string]any{}
	if shipping != nil {
		fields["shipping_address"] = shipping
	}
	if billing != nil {
		fields["billing_address"] = billing
	}
	if len(fields) == 0 {
		return nil
	}
	return s.repo.UpdateFields(ctx, cartID, fields)
}

func (s *service) UpdateEmail(ctx context.Context, cartID uuid.UUID, email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := s.ensureMutable(ctx, cartID); err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, cartID, map[string]any{"email": trimmed})
}

func (s *service) AddShippingMethod(ctx context.Context, cartID uuid.UUID, selection types.ShippingSelection) error {
	if selection.Quote.MethodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping method id is required")
	}
	if err := s.ensureMutable(ctx, cartID); err != nil {
		return err
	}
	return s.repo.UpdateFields(ctx, cartID, map[string]any{
		"shipping":       &selection,
		"shipping_cents": selection.DisplayPriceCents(),
	})
}

func (s *service) MergeMetadata(ctx context.Context, cartID uuid.UUID, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}
	if err := s.ensureMutable(ctx, cartID); err != nil {
		return err
	}
	record, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return err
	}
	merged := map[string]string{}
	for k, v := range record.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	return s.repo.UpdateFields(ctx, cartID, map[string]any{"metadata": merged})
}

func (s *service) ensureMutable(ctx context.Context, cartID uuid.UUID) error {
	if cartID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	record, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return err
	}
	if record.Status != enums.CartStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart already processed")
	}
	locked, err := s.sessions.LiveSessionExists(ctx, cartID)
	if err != nil {
		return err
	}
	if locked {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is locked by an active payment session").
			WithDetails(map[string]any{"cart_id": cartID.String()})
	}
	return nil
}
