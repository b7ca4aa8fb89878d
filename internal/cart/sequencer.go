package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jordibadia/ferncart-backend/pkg/enums"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/types"
)

// StepError tags a failure with the checkout step that produced it so callers
// can distinguish a failed address write from a failed shipping attach.
type StepError struct {
	Step enums.CheckoutStep
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("checkout step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// MutationInput carries the buyer-provided fields the sequencer applies.
// Nil or empty fields are skipped.
type MutationInput struct {
	ShippingAddress *types.Address
	BillingAddress  *types.Address
	Email           string
	Shipping        *types.ShippingSelection
}

// MutationResult reports what the sequencer actually applied. AddressErr is
// populated when the address write failed but the run continued.
type MutationResult struct {
	AddressApplied  bool
	AddressErr      error
	EmailApplied    bool
	ShippingApplied bool
}

// Sequencer applies cart mutations in a fixed order: addresses first, then
// email, then the shipping method. The ordering matters because shipping
// resolution depends on the address and payment depends on both.
//
// An address failure is tolerated: the run logs it and keeps going, since the
// buyer can still correct the address before payment. Email and shipping
// failures abort the run.
type Sequencer struct {
	carts Service
	logg  *logger.Logger
}

func NewSequencer(carts Service, logg *logger.Logger) (*Sequencer, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Sequencer{carts: carts, logg: logg}, nil
}

// Apply runs the ordered mutations against the cart.
func (s *Sequencer) Apply(ctx context.Context, cartID uuid.UUID, input MutationInput) (MutationResult, error) {
	result := MutationResult{}
	ctx = s.logg.WithCartID(ctx, cartID.String())

	if input.ShippingAddress != nil || input.BillingAddress != nil {
		ctx := s.logg.WithCheckoutStep(ctx, string(enums.StepAddress))
		if err := s.carts.UpdateAddresses(ctx, cartID, input.ShippingAddress, input.BillingAddress); err != nil {
			result.AddressErr = err
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "address update failed, continuing checkout")
		} else {
			result.AddressApplied = true
		}
	}

	if input.Email != "" {
		ctx := s.logg.WithCheckoutStep(ctx, string(enums.StepEmail))
		if err := s.carts.UpdateEmail(ctx, cartID, input.Email); err != nil {
			return result, &StepError{Step: enums.StepEmail, Err: err}
		}
		result.EmailApplied = true
	}

	if input.Shipping != nil {
		ctx := s.logg.WithCheckoutStep(ctx, string(enums.StepShipping))
		if err := s.carts.AddShippingMethod(ctx, cartID, *input.Shipping); err != nil {
			return result, &StepError{Step: enums.StepShipping, Err: err}
		}
		result.ShippingApplied = true
	}

	return result, nil
}
