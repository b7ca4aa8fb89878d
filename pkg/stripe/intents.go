package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
)

// Intent is the subset of a gateway payment intent the checkout saga needs.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Status       string
}

// CreatePaymentIntent opens a new payment intent bound to a cart. The cart id
// travels in metadata so webhook events can be routed back to the cart.
func (c *Client) CreatePaymentIntent(ctx context.Context, cartID string, amountCents int64) (*Intent, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{"cart_id": cartID},
	}
	intent, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return newIntent(intent), nil
}

// UpdatePaymentIntentAmount refreshes the captured amount on an existing intent.
func (c *Client) UpdatePaymentIntentAmount(ctx context.Context, intentID string, amountCents int64) (*Intent, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	intent, err := c.api.V1PaymentIntents.Update(ctx, intentID, &stripe.PaymentIntentUpdateParams{
		Amount: stripe.Int64(amountCents),
	})
	if err != nil {
		return nil, err
	}
	return newIntent(intent), nil
}

// GetPaymentIntent fetches the current gateway view of an intent.
func (c *Client) GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	intent, err := c.api.V1PaymentIntents.Retrieve(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, err
	}
	return newIntent(intent), nil
}

// CancelPaymentIntent discards an intent so the cart can be mutated again.
func (c *Client) CancelPaymentIntent(ctx context.Context, intentID string) error {
	if c == nil || c.api == nil {
		return errors.New("stripe client not initialized")
	}
	_, err := c.api.V1PaymentIntents.Cancel(ctx, intentID, &stripe.PaymentIntentCancelParams{})
	return err
}

func newIntent(intent *stripe.PaymentIntent) *Intent {
	if intent == nil {
		return nil
	}
	return &Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.Amount,
		Status:       string(intent.Status),
	}
}
