package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/mowistore/storefront-backend/pkg/stripe"
)

// Gateway exposes the subset of payment-provider operations required by the
// payment service.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, orderID uuid.UUID) (*stripe.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type stripeGateway struct {
	currency string
}

// NewStripeGateway wraps the provided Stripe client so the payment service can be tested.
func NewStripeGateway(api *pkgstripe.Client) Gateway {
	if api == nil {
		return nil
	}
	return &stripeGateway{currency: api.Currency()}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, orderID uuid.UUID) (*stripe.PaymentIntent, error) {
	if currency == "" {
		currency = g.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID.String())
	return paymentintent.New(params)
}

func (g *stripeGateway) GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}
