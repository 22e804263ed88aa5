package pricing

import "math"

// Currency is an ISO 4217 currency code from the supported set.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyBDT Currency = "BDT"
)

// IsValid reports whether the currency is in the supported set.
func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyBDT:
		return true
	default:
		return false
	}
}

// DefaultUSDToBDT is the static USD to BDT exchange rate. Live FX rates are
// an explicit non-goal; the rate changes only with a deploy.
const DefaultUSDToBDT = 120.0

// Converter converts USD quotes into a supported target currency using a
// fixed exchange rate. BDT amounts are rounded to whole taka since the
// fractional unit has no practical use at these price points.
type Converter struct {
	usdToBDT float64
}

// NewConverter creates a Converter with the given USD to BDT rate.
// A zero or negative rate falls back to DefaultUSDToBDT.
func NewConverter(usdToBDT float64) *Converter {
	if usdToBDT <= 0 {
		usdToBDT = DefaultUSDToBDT
	}
	return &Converter{usdToBDT: usdToBDT}
}

// Convert returns the quote denominated in target. USD is the identity
// conversion. Unknown codes fail with ErrUnsupportedCurrency.
func (c *Converter) Convert(q Quote, target Currency) (Quote, error) {
	switch target {
	case CurrencyUSD:
		q.Currency = CurrencyUSD
		q.Symbol = "$"
		return q, nil
	case CurrencyBDT:
		q.Currency = CurrencyBDT
		q.Symbol = "৳"
		q.PricePerThousand = roundTo(q.PricePerThousand*c.usdToBDT, 2)
		q.TotalPrice = math.Round(q.TotalPrice * c.usdToBDT)
		return q, nil
	default:
		return Quote{}, ErrUnsupportedCurrency
	}
}
