package purchase

import (
	"context"
	"fmt"

	"github.com/chatforge/server/internal/module/pricing"
	"github.com/chatforge/server/internal/utils/random"
)

// Settlement is a successful payment capture from a gateway.
type Settlement struct {
	TransactionID string
	Gateway       string
}

// Gateway settles a payment for a priced purchase. Real capture is out of
// scope for the core flow; the simulated gateway is the default and the
// Stripe gateway is the integration seam.
type Gateway interface {
	Name() string
	Settle(ctx context.Context, amount float64, currency pricing.Currency, metadata map[string]string) (*Settlement, error)
}

// SimulatedGateway settles every payment deterministically. Used in
// development and in the product's current launch configuration, where
// settlement is mocked.
type SimulatedGateway struct{}

// NewSimulatedGateway creates a new simulated gateway.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

// Name returns the gateway name.
func (g *SimulatedGateway) Name() string {
	return "simulated"
}

// Settle always succeeds with a generated transaction id.
func (g *SimulatedGateway) Settle(_ context.Context, _ float64, _ pricing.Currency, _ map[string]string) (*Settlement, error) {
	return &Settlement{
		TransactionID: fmt.Sprintf("SIM-%s", random.UpperAlphaNum(20)),
		Gateway:       g.Name(),
	}, nil
}

// Compile-time check
var _ Gateway = (*SimulatedGateway)(nil)
