package purchase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"

	"github.com/chatforge/server/internal/module/pricing"
)

// StripeGateway settles purchases through Stripe payment intents with
// automatic confirmation.
type StripeGateway struct {
	apiKey string
}

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	APIKey string
}

// NewStripeGateway creates a new Stripe gateway.
func NewStripeGateway(config *StripeConfig) *StripeGateway {
	stripe.Key = config.APIKey
	return &StripeGateway{apiKey: config.APIKey}
}

// Name returns the gateway name.
func (g *StripeGateway) Name() string {
	return "stripe"
}

// Settle creates and confirms a payment intent for the priced amount.
// Stripe amounts are in the currency's smallest unit: cents for USD,
// poisha for BDT.
func (g *StripeGateway) Settle(ctx context.Context, amount float64, currency pricing.Currency, metadata map[string]string) (*Settlement, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(amount)),
		Currency: stripe.String(strings.ToLower(string(currency))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("payment intent %s not settled: %s", pi.ID, pi.Status)
	}

	return &Settlement{
		TransactionID: pi.ID,
		Gateway:       g.Name(),
	}, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Compile-time check
var _ Gateway = (*StripeGateway)(nil)
