package middleware

import (
	"net/http"
	"strings"

	"github.com/jordibadia/ferncart-backend/api/responses"
	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/pkg/config"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
)

const cartTokenHeader = "X-Cart-Token"

// CartToken validates the storefront's cart token and seeds the request
// context with the cart it grants access to.
func CartToken(cfg config.CartTokenConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(cartTokenHeader))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing cart token"))
				return
			}

			claims, err := cart.ParseCartToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid cart token"))
				return
			}

			ctx := WithCartID(r.Context(), claims.CartID)
			ctx = WithSessionKey(ctx, claims.SessionKey)
			if logg != nil {
				ctx = logg.WithCartID(ctx, claims.CartID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
