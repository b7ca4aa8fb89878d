package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	pkgerrors "github.com/jordibadia/ferncart-backend/pkg/errors"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/metrics"
)

// syncer is the slice of the pricing service the retrier wraps.
type syncer interface {
	Sync(ctx context.Context, cartID uuid.UUID) (*Totals, error)
}

// Retrier wraps the price sync in exponential backoff. A cart whose totals
// cannot be confirmed must not reach payment, so exhaustion surfaces as a
// dependency error that blocks session creation.
type Retrier struct {
	pricing syncer
	cfg     config.CheckoutConfig
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
}

func NewRetrier(pricing syncer, cfg config.CheckoutConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Retrier, error) {
	if pricing == nil {
		return nil, fmt.Errorf("pricing service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.PriceSyncAttempts <= 0 {
		return nil, fmt.Errorf("price sync attempts must be positive")
	}
	return &Retrier{pricing: pricing, cfg: cfg, logg: logg, metrics: m}, nil
}

// SyncWithRetry runs the sync up to the configured attempt count, backing off
// between failures. Base delay doubles each retry.
func (r *Retrier) SyncWithRetry(ctx context.Context, cartID uuid.UUID) (*Totals, error) {
	ctx = r.logg.WithCartID(ctx, cartID.String())

	baseDelay := r.cfg.PriceSyncBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(r.cfg.PriceSyncAttempts-1), retry.NewExponential(baseDelay))

	var totals *Totals
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		synced, syncErr := r.pricing.Sync(ctx, cartID)
		if syncErr != nil {
			if attempt < r.cfg.PriceSyncAttempts {
				r.metrics.IncPriceSyncRetry()
				r.logg.Warn(r.logg.WithField(ctx, "attempt", attempt), "price sync failed, retrying")
			}
			return retry.RetryableError(syncErr)
		}
		totals = synced
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("price sync failed after %d attempts", r.cfg.PriceSyncAttempts))
	}
	return totals, nil
}
