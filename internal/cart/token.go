package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/config"
)

var cartTokenSigningMethod = jwt.SigningMethodHS256

// TokenClaims bind a cart token to a specific cart and storefront session.
type TokenClaims struct {
	CartID     uuid.UUID `json:"cart_id"`
	SessionKey string    `json:"session_key"`
	jwt.RegisteredClaims
}

// MintCartToken issues a signed JWT granting access to a single cart.
func MintCartToken(cfg config.CartTokenConfig, now time.Time, cartID uuid.UUID, sessionKey string) (string, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", fmt.Errorf("cart token secret is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return "", fmt.Errorf("cart token issuer is required")
	}
	if cfg.TTLMinutes <= 0 {
		return "", fmt.Errorf("cart token ttl minutes must be positive")
	}
	if cartID == uuid.Nil {
		return "", fmt.Errorf("cart id is required")
	}

	claims := TokenClaims{
		CartID:     cartID,
		SessionKey: sessionKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.TTLMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(cartTokenSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing cart token: %w", err)
	}
	return signed, nil
}

// ParseCartToken validates the token string and returns its typed claims.
func ParseCartToken(cfg config.CartTokenConfig, tokenString string) (*TokenClaims, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("cart token secret is required")
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != cartTokenSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{cartTokenSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if claims.CartID == uuid.Nil {
		return nil, fmt.Errorf("cart token missing cart id")
	}
	return claims, nil
}
