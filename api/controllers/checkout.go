package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/api/middleware"
	"github.com/jordibadia/ferncart-backend/api/responses"
	"github.com/jordibadia/ferncart-backend/api/validators"
	checkoutsvc "github.com/jordibadia/ferncart-backend/internal/checkout"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// CheckoutService is the saga surface the checkout controllers drive.
type CheckoutService interface {
	Initialize(ctx context.Context, cartID uuid.UUID, input checkoutsvc.InitializeInput) (*checkoutsvc.InitializeResult, error)
	PrepareSubmit(ctx context.Context, cartID uuid.UUID) (*models.PaymentSession, error)
	Confirm(ctx context.Context, cartID uuid.UUID) (*checkoutsvc.ConfirmResult, error)
	Abandon(ctx context.Context, cartID uuid.UUID) error
}

type checkoutRequest struct {
	ShippingAddress *addressPayload          `json:"shipping_address,omitempty"`
	BillingAddress  *addressPayload          `json:"billing_address,omitempty"`
	Email           string                   `json:"email,omitempty" validate:"omitempty,email,max=254"`
	ShippingMethod  *cartShippingRequest     `json:"shipping_method,omitempty"`
}

type checkoutResponse struct {
	Cart             cartResponse          `json:"cart"`
	Quotes           []types.ShippingQuote `json:"quotes"`
	ClientCredential string                `json:"client_credential"`
	AmountCents      int64                 `json:"amount_cents"`
	AddressWarning   string                `json:"address_warning,omitempty"`
}

// Checkout runs the initialization saga for the buyer's cart and returns the
// credential the storefront hands to the payment widget.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.InitializeInput{
			ShippingAddress: payload.ShippingAddress.toAddress(),
			BillingAddress:  payload.BillingAddress.toAddress(),
			Email:           validators.SanitizeString(payload.Email, 254),
		}
		if payload.ShippingMethod != nil {
			input.ShippingMethod = &types.ShippingSelection{
				Quote:        payload.ShippingMethod.Quote,
				UserSelected: true,
				FreeShipping: payload.ShippingMethod.FreeShipping,
			}
		}

		result, err := svc.Initialize(r.Context(), cartID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Cart:             newCartResponse(result.Cart),
			Quotes:           result.Quotes,
			ClientCredential: result.ClientCredential,
			AmountCents:      result.AmountCents,
			AddressWarning:   result.AddressWarning,
		})
	}
}

type prepareSubmitResponse struct {
	AmountCents      int64  `json:"amount_cents"`
	ClientCredential string `json:"client_credential"`
}

// CheckoutPrepare re-syncs totals and refreshes the payment session amount so
// the buyer is charged the current cart value.
func CheckoutPrepare(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		session, err := svc.PrepareSubmit(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, prepareSubmitResponse{
			AmountCents:      session.AmountCents,
			ClientCredential: session.ClientCredential,
		})
	}
}

type confirmResponse struct {
	Decision string         `json:"decision"`
	Order    *orderResponse `json:"order,omitempty"`
}

// CheckoutConfirm asks the gateway for the payment outcome and finalizes the
// order when the payment went through.
func CheckoutConfirm(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		result, err := svc.Confirm(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, confirmResponse{
			Decision: string(result.Decision),
			Order:    newOrderResponse(result.Order),
		})
	}
}

// CheckoutAbandon discards the live payment session and unlocks the cart.
func CheckoutAbandon(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		if err := svc.Abandon(r.Context(), cartID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "abandoned"})
	}
}
