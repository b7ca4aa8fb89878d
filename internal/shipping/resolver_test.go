package shipping

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/rates"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

type stubRateFetcher struct {
	mu     sync.Mutex
	calls  int
	quotes []rates.Quote
	err    error
}

func (s *stubRateFetcher) GetRates(ctx context.Context, postalCode string, weightGrams int) ([]rates.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.quotes, s.err
}

func (s *stubRateFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubOptionRepo struct {
	options []models.ShippingOption
	err     error
}

func (s *stubOptionRepo) ListActive(ctx context.Context) ([]models.ShippingOption, error) {
	return s.options, s.err
}

func instantWaiter(ctx context.Context, d time.Duration) error { return ctx.Err() }

func resolverConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		FreeShippingThresholdCents: 10000,
		PostalCodeLength:           5,
		RateDebounceWindow:         500 * time.Millisecond,
	}
}

func newTestResolver(t *testing.T, fetcher rateFetcher, options OptionRepository, opts ...ResolverOption) *Resolver {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	opts = append([]ResolverOption{WithWaiter(instantWaiter)}, opts...)
	resolver, err := NewResolver(fetcher, options, resolverConfig(), logg, opts...)
	require.NoError(t, err)
	return resolver
}

func cartWithPostal(postal string, subtotalCents int64) *models.CartRecord {
	return &models.CartRecord{
		ID:            uuid.New(),
		SubtotalCents: subtotalCents,
		ShippingAddress: &types.Address{
			Line1:      "1 Fern Way",
			City:       "Portland",
			State:      "OR",
			PostalCode: postal,
			Country:    "US",
		},
		Items: []models.CartItem{{Quantity: 2, WeightGrams: 500}},
	}
}

func priorityQuotes() []rates.Quote {
	return []rates.Quote{
		{ServiceID: "usps-priority", Courier: "USPS", PriceCents: 899, ETADays: 2},
		{ServiceID: "ups-ground", Courier: "UPS", PriceCents: 1299, ETADays: 4},
	}
}

func TestResolveShortPostalNeverQueries(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("972", 5000))
	require.NoError(t, err)
	assert.False(t, resolution.Queried)
	assert.Empty(t, resolution.Quotes)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestResolveAutoSelectsFirstQuote(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("97201", 5000))
	require.NoError(t, err)
	assert.True(t, resolution.Queried)
	require.Len(t, resolution.Quotes, 2)
	require.NotNil(t, resolution.Selection)
	assert.Equal(t, "usps-priority", resolution.Selection.Quote.MethodID)
	assert.False(t, resolution.Selection.UserSelected)
	assert.False(t, resolution.Selection.FreeShipping)
	assert.Equal(t, int64(899), resolution.Selection.DisplayPriceCents())
}

func TestResolveKeepsUserSelection(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	cart := cartWithPostal("97201", 5000)
	cart.Shipping = &types.ShippingSelection{
		Quote:        types.ShippingQuote{Source: types.ShippingSourceCarrier, MethodID: "ups-ground", PriceCents: 1199},
		UserSelected: true,
	}

	resolution, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	require.NotNil(t, resolution.Selection)
	assert.Equal(t, "ups-ground", resolution.Selection.Quote.MethodID)
	assert.True(t, resolution.Selection.UserSelected)
	// price refreshed from the new quote
	assert.Equal(t, int64(1299), resolution.Selection.Quote.PriceCents)
}

func TestResolveDropsVanishedUserSelection(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	cart := cartWithPostal("97201", 5000)
	cart.Shipping = &types.ShippingSelection{
		Quote:        types.ShippingQuote{MethodID: "fedex-overnight", PriceCents: 2999},
		UserSelected: true,
	}

	resolution, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	require.NotNil(t, resolution.Selection)
	assert.Equal(t, "usps-priority", resolution.Selection.Quote.MethodID)
	assert.False(t, resolution.Selection.UserSelected)
}

func TestResolveFreeShippingAtThreshold(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	options := &stubOptionRepo{options: []models.ShippingOption{
		{ID: uuid.New(), Name: "Standard Delivery", PriceCents: 599, Active: true},
	}}
	resolver := newTestResolver(t, fetcher, options)

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("97201", 10000))
	require.NoError(t, err)
	// carrier quotes are still offered, but none is auto-selected
	require.Len(t, resolution.Quotes, 2)
	assert.Equal(t, types.ShippingSourceCarrier, resolution.Quotes[0].Source)
	require.NotNil(t, resolution.Selection)
	assert.True(t, resolution.Selection.FreeShipping)
	assert.Equal(t, types.ShippingSourceNative, resolution.Selection.Quote.Source)
	assert.Equal(t, "Standard Delivery", resolution.Selection.Quote.Name)
	assert.Equal(t, int64(0), resolution.Selection.DisplayPriceCents())
}

func TestResolveFreeShippingWithoutNativeOptionsKeepsCarrierQuote(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("97201", 10000))
	require.NoError(t, err)
	require.NotNil(t, resolution.Selection)
	assert.True(t, resolution.Selection.FreeShipping)
	assert.Equal(t, "usps-priority", resolution.Selection.Quote.MethodID)
	assert.Equal(t, int64(0), resolution.Selection.DisplayPriceCents())
}

func TestResolveFreeShippingKeepsUserSelectedCarrierQuote(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	options := &stubOptionRepo{options: []models.ShippingOption{
		{ID: uuid.New(), Name: "Standard Delivery", PriceCents: 599, Active: true},
	}}
	resolver := newTestResolver(t, fetcher, options)

	cart := cartWithPostal("97201", 10000)
	cart.Shipping = &types.ShippingSelection{
		Quote:        types.ShippingQuote{Source: types.ShippingSourceCarrier, MethodID: "ups-ground", PriceCents: 1199},
		UserSelected: true,
	}

	resolution, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	require.NotNil(t, resolution.Selection)
	assert.True(t, resolution.Selection.UserSelected)
	assert.Equal(t, "ups-ground", resolution.Selection.Quote.MethodID)
	assert.Equal(t, int64(0), resolution.Selection.DisplayPriceCents())
}

func TestResolveNoFreeShippingOneCentBelowThreshold(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("97201", 9999))
	require.NoError(t, err)
	require.NotNil(t, resolution.Selection)
	assert.False(t, resolution.Selection.FreeShipping)
	assert.Equal(t, int64(899), resolution.Selection.DisplayPriceCents())
}

func TestResolveNativeFallbackOnEmptyQuotes(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{}
	options := &stubOptionRepo{options: []models.ShippingOption{
		{ID: uuid.New(), Name: "Standard Delivery", PriceCents: 599, Active: true},
		{ID: uuid.New(), Name: "Express Delivery", PriceCents: 1499, Active: true},
	}}
	resolver := newTestResolver(t, fetcher, options)

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("97201", 5000))
	require.NoError(t, err)
	require.Len(t, resolution.Quotes, 2)
	assert.Equal(t, types.ShippingSourceNative, resolution.Quotes[0].Source)
	require.NotNil(t, resolution.Selection)
	assert.Equal(t, "Standard Delivery", resolution.Selection.Quote.Name)
}

func TestResolveNativeFallbackOnCarrierError(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{err: errors.New("carrier timeout")}
	options := &stubOptionRepo{options: []models.ShippingOption{
		{ID: uuid.New(), Name: "Standard Delivery", PriceCents: 599, Active: true},
	}}
	resolver := newTestResolver(t, fetcher, options)

	resolution, err := resolver.Resolve(context.Background(), cartWithPostal("97201", 5000))
	require.NoError(t, err)
	require.Len(t, resolution.Quotes, 1)
	assert.Equal(t, types.ShippingSourceNative, resolution.Quotes[0].Source)
}

func TestResolveCarrierErrorWithIncompleteAddressSurfaces(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{err: errors.New("carrier timeout")}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})

	cart := cartWithPostal("97201", 5000)
	cart.ShippingAddress.Line1 = ""

	_, err := resolver.Resolve(context.Background(), cart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier timeout")
}

func TestResolveSupersededDuringDebounce(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	cart := cartWithPostal("97201", 5000)

	var resolver *Resolver
	waiter := func(ctx context.Context, d time.Duration) error {
		// a newer resolve arrives while this one is waiting
		resolver.InvalidateCart(cart.ID)
		return nil
	}
	resolver = newTestResolver(t, fetcher, &stubOptionRepo{}, WithWaiter(waiter))

	resolution, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	assert.True(t, resolution.Superseded)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestResolveStaleResultDiscardedAfterFetch(t *testing.T) {
	t.Parallel()

	cart := cartWithPostal("97201", 5000)
	var resolver *Resolver
	fetcher := &invalidatingFetcher{quotes: priorityQuotes(), invalidate: func() {
		resolver.InvalidateCart(cart.ID)
	}}
	resolver = newTestResolver(t, fetcher, &stubOptionRepo{})

	resolution, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	assert.True(t, resolution.Superseded)
	assert.Nil(t, resolution.Selection)
}

type invalidatingFetcher struct {
	quotes     []rates.Quote
	invalidate func()
}

func (f *invalidatingFetcher) GetRates(ctx context.Context, postalCode string, weightGrams int) ([]rates.Quote, error) {
	defer f.invalidate()
	return f.quotes, nil
}

func TestResolveSamePostalCodeSkipsSecondQuery(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})
	cart := cartWithPostal("97201", 5000)

	first, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	require.Len(t, first.Quotes, 2)

	second, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	assert.True(t, second.Queried)
	require.Len(t, second.Quotes, 2)
	require.NotNil(t, second.Selection)
	assert.Equal(t, "usps-priority", second.Selection.Quote.MethodID)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestResolveRequeriesAfterCartInvalidation(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{quotes: priorityQuotes()}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{})
	cart := cartWithPostal("97201", 5000)

	_, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)

	resolver.InvalidateCart(cart.ID)

	resolution, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	assert.True(t, resolution.Queried)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestResolveCarrierErrorIsNotMemoized(t *testing.T) {
	t.Parallel()

	fetcher := &stubRateFetcher{err: errors.New("carrier timeout")}
	options := &stubOptionRepo{options: []models.ShippingOption{
		{ID: uuid.New(), Name: "Standard Delivery", PriceCents: 599, Active: true},
	}}
	resolver := newTestResolver(t, fetcher, options)
	cart := cartWithPostal("97201", 5000)

	_, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

type blockingFetcher struct {
	stubRateFetcher
	release chan struct{}
}

func (f *blockingFetcher) GetRates(ctx context.Context, postalCode string, weightGrams int) ([]rates.Quote, error) {
	<-f.release
	return f.stubRateFetcher.GetRates(ctx, postalCode, weightGrams)
}

func TestResolveSkipsWhileSamePostalCodeInFlight(t *testing.T) {
	t.Parallel()

	fetcher := &blockingFetcher{
		stubRateFetcher: stubRateFetcher{quotes: priorityQuotes()},
		release:         make(chan struct{}),
	}
	started := make(chan struct{})
	waiter := func(ctx context.Context, d time.Duration) error {
		close(started)
		return ctx.Err()
	}
	resolver := newTestResolver(t, fetcher, &stubOptionRepo{}, WithWaiter(waiter))
	cart := cartWithPostal("97201", 5000)

	done := make(chan *Resolution, 1)
	go func() {
		resolution, err := resolver.Resolve(context.Background(), cart)
		require.NoError(t, err)
		done <- resolution
	}()
	<-started

	second, err := resolver.Resolve(context.Background(), cart)
	require.NoError(t, err)
	assert.True(t, second.Superseded)

	close(fetcher.release)
	first := <-done
	require.Len(t, first.Quotes, 2)
	assert.Equal(t, 1, fetcher.callCount())
}
