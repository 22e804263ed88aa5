package pricing

import (
	"fmt"
	"math"
)

// Tier is one row of the volume pricing table. MaxTokens is inclusive;
// -1 means unbounded.
type Tier struct {
	MinTokens            int64    `json:"min_tokens"`
	MaxTokens            int64    `json:"max_tokens"`
	PricePerThousandUSD  float64  `json:"price_per_thousand_usd"`
	Name                 string   `json:"name"`
	Benefits             []string `json:"benefits"`
	UnlocksClaudeOpus    bool     `json:"unlocks_claude_opus"`
	ClaudeOpusDailyLimit int64    `json:"claude_opus_daily_limit"`
}

// Contains reports whether tokenAmount falls inside the tier's range.
func (t *Tier) Contains(tokenAmount int64) bool {
	if tokenAmount < t.MinTokens {
		return false
	}
	return t.MaxTokens == -1 || tokenAmount <= t.MaxTokens
}

// Purchase bounds. Amounts outside this range are rejected before any
// pricing lookup.
const (
	MinPurchaseTokens int64 = 10_000
	MaxPurchaseTokens int64 = 10_000_000
)

// DefaultTiers returns the standard volume pricing table.
func DefaultTiers() []Tier {
	return []Tier{
		{
			MinTokens:           10_000,
			MaxTokens:           99_999,
			PricePerThousandUSD: 0.020,
			Name:                "Starter",
			Benefits:            []string{"Access to GPT and Claude Sonnet models", "Standard rate"},
		},
		{
			MinTokens:           100_000,
			MaxTokens:           299_999,
			PricePerThousandUSD: 0.019,
			Name:                "Frequent User",
			Benefits:            []string{"Access to GPT and Claude Sonnet models", "5% savings"},
		},
		{
			MinTokens:            300_000,
			MaxTokens:            999_999,
			PricePerThousandUSD:  0.018,
			Name:                 "Power User",
			Benefits:             []string{"Claude Opus access (25,000 tokens/day)", "10% savings"},
			UnlocksClaudeOpus:    true,
			ClaudeOpusDailyLimit: 25_000,
		},
		{
			MinTokens:            1_000_000,
			MaxTokens:            4_999_999,
			PricePerThousandUSD:  0.017,
			Name:                 "Professional",
			Benefits:             []string{"Claude Opus access (75,000 tokens/day)", "15% savings"},
			UnlocksClaudeOpus:    true,
			ClaudeOpusDailyLimit: 75_000,
		},
		{
			MinTokens:            5_000_000,
			MaxTokens:            -1,
			PricePerThousandUSD:  0.0165,
			Name:                 "Enterprise",
			Benefits:             []string{"Claude Opus access (150,000 tokens/day)", "17.5% savings", "Priority support"},
			UnlocksClaudeOpus:    true,
			ClaudeOpusDailyLimit: 150_000,
		},
	}
}

// Table resolves token amounts to pricing tiers. It is immutable after
// construction so a single instance can be shared across requests.
type Table struct {
	tiers []Tier
}

// NewTable validates the tier rows and returns a Table. Rows must be sorted
// by MinTokens, start at MinPurchaseTokens, leave no gaps or overlaps, and
// only the last row may be unbounded.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("pricing table requires at least one tier")
	}
	if tiers[0].MinTokens != MinPurchaseTokens {
		return nil, fmt.Errorf("first tier must start at %d, got %d", MinPurchaseTokens, tiers[0].MinTokens)
	}
	for i, t := range tiers {
		last := i == len(tiers)-1
		if t.MaxTokens == -1 && !last {
			return nil, fmt.Errorf("tier %q: only the last tier may be unbounded", t.Name)
		}
		if !last {
			if t.MaxTokens < t.MinTokens {
				return nil, fmt.Errorf("tier %q: max %d below min %d", t.Name, t.MaxTokens, t.MinTokens)
			}
			if tiers[i+1].MinTokens != t.MaxTokens+1 {
				return nil, fmt.Errorf("tier %q: gap or overlap before tier %q", t.Name, tiers[i+1].Name)
			}
		}
	}
	cp := make([]Tier, len(tiers))
	copy(cp, tiers)
	return &Table{tiers: cp}, nil
}

// NewDefaultTable returns a Table built from DefaultTiers.
func NewDefaultTable() *Table {
	t, err := NewTable(DefaultTiers())
	if err != nil {
		// Default rows are compile-time constants; a failure here is a bug.
		panic(err)
	}
	return t
}

// Tiers returns a copy of the tier rows.
func (t *Table) Tiers() []Tier {
	cp := make([]Tier, len(t.tiers))
	copy(cp, t.tiers)
	return cp
}

// PriceTier returns the tier matching tokenAmount. The caller is responsible
// for rejecting amounts outside [MinPurchaseTokens, MaxPurchaseTokens]
// before calling; amounts below the first tier return ErrNoMatchingTier.
func (t *Table) PriceTier(tokenAmount int64) (Tier, error) {
	for i := range t.tiers {
		if t.tiers[i].Contains(tokenAmount) {
			return t.tiers[i], nil
		}
	}
	return Tier{}, ErrNoMatchingTier
}

// Quote is a fully computed price for a token amount in a single currency.
type Quote struct {
	TokenAmount          int64    `json:"token_amount"`
	Currency             Currency `json:"currency"`
	Symbol               string   `json:"symbol"`
	PricePerThousand     float64  `json:"price_per_thousand"`
	TotalPrice           float64  `json:"total_price"`
	Tier                 string   `json:"tier"`
	Benefits             []string `json:"benefits"`
	UnlocksClaudeOpus    bool     `json:"unlocks_claude_opus"`
	ClaudeOpusDailyLimit int64    `json:"claude_opus_daily_limit"`
}

// QuoteUSD computes the USD quote for tokenAmount. Total price is
// (tokenAmount / 1000) * pricePerThousand rounded to cents.
func (t *Table) QuoteUSD(tokenAmount int64) (Quote, error) {
	tier, err := t.PriceTier(tokenAmount)
	if err != nil {
		return Quote{}, err
	}
	total := roundTo(float64(tokenAmount)/1000*tier.PricePerThousandUSD, 2)
	return Quote{
		TokenAmount:          tokenAmount,
		Currency:             CurrencyUSD,
		Symbol:               "$",
		PricePerThousand:     tier.PricePerThousandUSD,
		TotalPrice:           total,
		Tier:                 tier.Name,
		Benefits:             tier.Benefits,
		UnlocksClaudeOpus:    tier.UnlocksClaudeOpus,
		ClaudeOpusDailyLimit: tier.ClaudeOpusDailyLimit,
	}, nil
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
