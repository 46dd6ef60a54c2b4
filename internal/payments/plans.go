package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan identifiers
const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanElite = "elite"
)

const planPeriod = 30 * 24 * time.Hour

// Plan is a subscription tier sold through invoices
type Plan struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	PeriodDays int             `json:"period_days"`
	MaxBots    int             `json:"max_bots"` // -1 = unlimited
	Features   []string        `json:"features"`
}

// Period returns the duration one payment buys
func (p Plan) Period() time.Duration {
	return time.Duration(p.PeriodDays) * 24 * time.Hour
}

var plans = []Plan{
	{
		ID:       PlanFree,
		Name:     "Free",
		PriceUSD: decimal.Zero,
		MaxBots:  1,
		Features: []string{"Chat bot builder", "Paper trading"},
	},
	{
		ID:         PlanPro,
		Name:       "Pro",
		PriceUSD:   decimal.NewFromInt(29),
		PeriodDays: int(planPeriod.Hours() / 24),
		MaxBots:    10,
		Features:   []string{"Chat bot builder", "Paper trading", "Marketplace publishing", "Exchange keys"},
	},
	{
		ID:         PlanElite,
		Name:       "Elite",
		PriceUSD:   decimal.NewFromInt(99),
		PeriodDays: int(planPeriod.Hours() / 24),
		MaxBots:    -1,
		Features:   []string{"Chat bot builder", "Paper trading", "Marketplace publishing", "Exchange keys", "Priority support"},
	},
}

// Plans returns every plan, cheapest first
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlanByID looks a plan up by id
func PlanByID(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
