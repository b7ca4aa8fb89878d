package controllers

import (
	"context"
	"net/http"

	"github.com/jordibadia/ferncart-backend/api/middleware"
	"github.com/jordibadia/ferncart-backend/api/responses"
	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/internal/shipping"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

type quoteResolver interface {
	Resolve(ctx context.Context, cart *models.CartRecord) (*shipping.Resolution, error)
}

type shippingQuotesResponse struct {
	Queried   bool                     `json:"queried"`
	Quotes    []types.ShippingQuote    `json:"quotes"`
	Selection *types.ShippingSelection `json:"selection,omitempty"`
}

// ShippingQuotes resolves shipping rates for the cart's current address. A
// partial postal code returns an empty, unqueried response rather than an error.
func ShippingQuotes(carts cart.Service, resolver quoteResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if carts == nil || resolver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping resolver unavailable"))
			return
		}

		cartID, ok := middleware.CartIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
			return
		}

		record, err := carts.Get(r.Context(), cartID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resolution, err := resolver.Resolve(r.Context(), record)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if resolution.Superseded {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "shipping quote superseded by a newer request"))
			return
		}

		responses.WriteSuccess(w, shippingQuotesResponse{
			Queried:   resolution.Queried,
			Quotes:    resolution.Quotes,
			Selection: resolution.Selection,
		})
	}
}
