package shipping

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db/models"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/rates"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// rateFetcher is the slice of the carrier client the resolver needs.
type rateFetcher interface {
	GetRates(ctx context.Context, postalCode string, weightGrams int) ([]rates.Quote, error)
}

// Resolution is the outcome of one resolve pass. Superseded means a newer
// resolve for the same cart started while this one was waiting or querying,
// so its result must not be attached to the cart.
type Resolution struct {
	Queried    bool
	Superseded bool
	Quotes     []types.ShippingQuote
	Selection  *types.ShippingSelection
}

// Resolver turns a cart's destination into shipping quotes and a selection.
//
// Address edits arrive in bursts while the buyer types, so each resolve waits
// out a short debounce window before querying the carrier. Per cart it keeps a
// generation counter (stale results are discarded, only the newest resolve may
// attach), an in-flight flag (a second resolve for the same postal code while
// one is running never issues a second query), and the last quoted postal code
// with its quotes (re-resolving an already quoted code skips the carrier).
type Resolver struct {
	rates   rateFetcher
	options OptionRepository
	cfg     config.CheckoutConfig
	logg    *logger.Logger
	wait    func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	states map[uuid.UUID]*cartState
}

type cartState struct {
	generation     uint64
	inFlightGen    uint64
	inFlightPostal string
	quotedPostal   string
	quotes         []types.ShippingQuote
}

// ResolverOption configures optional resolver behavior.
type ResolverOption func(*Resolver)

// WithWaiter overrides the debounce wait, used by tests to avoid real sleeps.
func WithWaiter(wait func(ctx context.Context, d time.Duration) error) ResolverOption {
	return func(r *Resolver) {
		if wait != nil {
			r.wait = wait
		}
	}
}

func NewResolver(fetcher rateFetcher, options OptionRepository, cfg config.CheckoutConfig, logg *logger.Logger, opts ...ResolverOption) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("rate fetcher required")
	}
	if options == nil {
		return nil, fmt.Errorf("option repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	resolver := &Resolver{
		rates:   fetcher,
		options: options,
		cfg:     cfg,
		logg:    logg,
		wait:    sleepWait,
		states:  map[uuid.UUID]*cartState{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(resolver)
		}
	}
	return resolver, nil
}

func sleepWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Resolve fetches quotes for the cart's shipping address and decides the
// selection to attach. It returns Queried=false without touching the carrier
// when the postal code is too short to quote against.
func (r *Resolver) Resolve(ctx context.Context, cart *models.CartRecord) (*Resolution, error) {
	ctx = r.logg.WithCartID(ctx, cart.ID.String())

	postal := ""
	if cart.ShippingAddress != nil {
		postal = strings.TrimSpace(cart.ShippingAddress.PostalCode)
	}
	if len(postal) < r.cfg.PostalCodeLength {
		return &Resolution{}, nil
	}

	r.mu.Lock()
	st := r.state(cart.ID)
	if st.quotedPostal == postal && len(st.quotes) > 0 {
		quotes := st.quotes
		r.mu.Unlock()
		return r.buildResolution(ctx, cart, quotes), nil
	}
	if st.inFlightGen != 0 && st.inFlightPostal == postal {
		r.mu.Unlock()
		return &Resolution{Superseded: true}, nil
	}
	st.generation++
	generation := st.generation
	st.inFlightGen = generation
	st.inFlightPostal = postal
	r.mu.Unlock()

	if err := r.wait(ctx, r.cfg.RateDebounceWindow); err != nil {
		r.clearInFlight(cart.ID, generation)
		return nil, err
	}
	if !r.isLatest(cart.ID, generation) {
		r.clearInFlight(cart.ID, generation)
		return &Resolution{Superseded: true}, nil
	}

	carrierQuotes, err := r.rates.GetRates(ctx, postal, shipmentWeightGrams(cart))
	if !r.isLatest(cart.ID, generation) {
		r.clearInFlight(cart.ID, generation)
		return &Resolution{Superseded: true}, nil
	}

	quotes := toShippingQuotes(carrierQuotes)
	if err != nil || len(quotes) == 0 {
		if err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "carrier rate lookup failed, trying native options")
		}
		fallback, fallbackErr := r.nativeFallback(ctx, cart, err)
		if fallbackErr != nil {
			r.clearInFlight(cart.ID, generation)
			return nil, fallbackErr
		}
		quotes = fallback
	}

	// a carrier error is never memoized so a later resolve can retry it
	r.finish(cart.ID, generation, postal, quotes, err == nil)
	return r.buildResolution(ctx, cart, quotes), nil
}

func (r *Resolver) buildResolution(ctx context.Context, cart *models.CartRecord, quotes []types.ShippingQuote) *Resolution {
	resolution := &Resolution{Queried: true, Quotes: quotes}
	if len(quotes) > 0 {
		resolution.Selection = r.selectQuote(ctx, cart, quotes)
	}
	return resolution
}

// InvalidateCart bumps the cart's generation so any in-flight resolve discards
// its result, and drops the quoted-postal memo. Called when the cart mutates
// outside a resolve pass.
func (r *Resolver) InvalidateCart(cartID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(cartID)
	st.generation++
	st.quotedPostal = ""
	st.quotes = nil
}

// state returns the cart's entry; callers must hold r.mu.
func (r *Resolver) state(cartID uuid.UUID) *cartState {
	st, ok := r.states[cartID]
	if !ok {
		st = &cartState{}
		r.states[cartID] = st
	}
	return st
}

func (r *Resolver) isLatest(cartID uuid.UUID, generation uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(cartID).generation == generation
}

func (r *Resolver) clearInFlight(cartID uuid.UUID, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(cartID)
	if st.inFlightGen == generation {
		st.inFlightGen = 0
		st.inFlightPostal = ""
	}
}

// finish clears the in-flight flag and, for a clean carrier answer, memoizes
// the quotes so re-resolving the same postal code skips the query.
func (r *Resolver) finish(cartID uuid.UUID, generation uint64, postal string, quotes []types.ShippingQuote, memoize bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(cartID)
	if st.inFlightGen == generation {
		st.inFlightGen = 0
		st.inFlightPostal = ""
	}
	if memoize && st.generation == generation {
		st.quotedPostal = postal
		st.quotes = quotes
	}
}

// nativeFallback substitutes platform-native options when the carrier gave
// nothing usable. A carrier error with an incomplete address is surfaced as-is
// since there is nothing sane to fall back to yet.
func (r *Resolver) nativeFallback(ctx context.Context, cart *models.CartRecord, carrierErr error) ([]types.ShippingQuote, error) {
	if cart.ShippingAddress == nil || !cart.ShippingAddress.Complete() {
		if carrierErr != nil {
			return nil, carrierErr
		}
		return nil, nil
	}

	options, err := r.options.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	quotes := make([]types.ShippingQuote, 0, len(options))
	for _, option := range options {
		quotes = append(quotes, nativeQuote(option))
	}
	return quotes, nil
}

func nativeQuote(option models.ShippingOption) types.ShippingQuote {
	return types.ShippingQuote{
		Source:     types.ShippingSourceNative,
		MethodID:   option.ID.String(),
		Name:       option.Name,
		PriceCents: option.PriceCents,
	}
}

// selectQuote keeps the buyer's previous pick when it is still offered,
// otherwise attaches the first quote. Above the free-shipping threshold no
// paid carrier quote is auto-selected; a platform-native method is attached
// instead so cart completion stays possible.
func (r *Resolver) selectQuote(ctx context.Context, cart *models.CartRecord, quotes []types.ShippingQuote) *types.ShippingSelection {
	free := r.cfg.FreeShippingThresholdCents > 0 &&
		cart.SubtotalCents >= int64(r.cfg.FreeShippingThresholdCents)

	if prior := cart.Shipping; prior != nil && prior.UserSelected {
		for _, quote := range quotes {
			if quote.MethodID == prior.Quote.MethodID {
				return &types.ShippingSelection{Quote: quote, UserSelected: true, FreeShipping: free}
			}
		}
	}

	if free {
		for _, quote := range quotes {
			if quote.Source == types.ShippingSourceNative {
				return &types.ShippingSelection{Quote: quote, FreeShipping: true}
			}
		}
		options, err := r.options.ListActive(ctx)
		if err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "native option lookup failed, attaching carrier quote")
		} else if len(options) > 0 {
			return &types.ShippingSelection{Quote: nativeQuote(options[0]), FreeShipping: true}
		}
	}

	return &types.ShippingSelection{Quote: quotes[0], FreeShipping: free}
}

func shipmentWeightGrams(cart *models.CartRecord) int {
	total := 0
	for _, item := range cart.Items {
		total += item.WeightGrams * item.Quantity
	}
	return total
}

func toShippingQuotes(carrierQuotes []rates.Quote) []types.ShippingQuote {
	quotes := make([]types.ShippingQuote, 0, len(carrierQuotes))
	for _, quote := range carrierQuotes {
		quotes = append(quotes, types.ShippingQuote{
			Source:     types.ShippingSourceCarrier,
			MethodID:   quote.ServiceID,
			Courier:    quote.Courier,
			Name:       quote.Courier + " " + quote.ServiceID,
			PriceCents: quote.PriceCents,
			ETADays:    quote.ETADays,
		})
	}
	return quotes
}
