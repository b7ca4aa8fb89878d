package controllers

import (
	"net/http"
	"time"

	"github.com/jordibadia/ferncart-backend/api/middleware"
	"github.com/jordibadia/ferncart-backend/api/responses"
	"github.com/jordibadia/ferncart-backend/api/validators"
	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/pkg/config"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

type cartCreateRequest struct {
	SessionKey string `json:"session_key" validate:"required,min=8,max=128"`
}

type cartCreateResponse struct {
	Cart  cartResponse `json:"cart"`
	Token string       `json:"token"`
}

// CartCreate returns the active cart for a storefront session, creating one
// when none exists, along with the token that grants access to it.
func CartCreate(svc cart.Service, tokenCfg config.CartTokenConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload cartCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionKey := validators.SanitizeString(payload.SessionKey, 128)
		record, err := svc.CreateOrGet(r.Context(), sessionKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := cart.MintCartToken(tokenCfg, time.Now(), record.ID, sessionKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint cart token"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, cartCreateResponse{
			Cart:  newCartResponse(record),
			Token: token,
		})
	}
}

// CartFetch returns the cart bound to the request's token.
func CartFetch(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		record, err := svc.Get(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(record))
	}
}

type addressPayload struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

func (p *addressPayload) toAddress() *types.Address {
	if p == nil {
		return nil
	}
	return &types.Address{
		Line1:      validators.SanitizeString(p.Line1, 200),
		Line2:      validators.SanitizeString(p.Line2, 200),
		City:       validators.SanitizeString(p.City, 100),
		State:      validators.SanitizeString(p.State, 100),
		PostalCode: validators.SanitizeString(p.PostalCode, 20),
		Country:    validators.SanitizeString(p.Country, 2),
	}
}

type cartAddressesRequest struct {
	ShippingAddress *addressPayload `json:"shipping_address,omitempty"`
	BillingAddress  *addressPayload `json:"billing_address,omitempty"`
}

// CartUpdateAddresses replaces the cart's shipping and billing addresses.
func CartUpdateAddresses(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		var payload cartAddressesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ShippingAddress == nil && payload.BillingAddress == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one address required"))
			return
		}

		if err := svc.UpdateAddresses(r.Context(), cartID, payload.ShippingAddress.toAddress(), payload.BillingAddress.toAddress()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(record))
	}
}

type cartEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// CartUpdateEmail sets the buyer's contact email on the cart.
func CartUpdateEmail(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		var payload cartEmailRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.UpdateEmail(r.Context(), cartID, validators.SanitizeString(payload.Email, 254)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(record))
	}
}

type cartShippingRequest struct {
	Quote        types.ShippingQuote `json:"quote" validate:"required"`
	FreeShipping bool                `json:"free_shipping"`
}

// CartSelectShipping attaches a customer-chosen shipping method to the cart.
func CartSelectShipping(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		var payload cartShippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Quote.MethodID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shipping method id required"))
			return
		}

		selection := types.ShippingSelection{
			Quote:        payload.Quote,
			UserSelected: true,
			FreeShipping: payload.FreeShipping,
		}
		if err := svc.AddShippingMethod(r.Context(), cartID, selection); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(record))
	}
}
