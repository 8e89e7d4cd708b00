// Package plans defines the DukaBook subscription tiers and their
// per-feature monthly limits. Limits are consulted by pkg/usage when
// gating writes and by the monthly rollover job when seeding fresh
// usage periods.
package plans

import "sort"

// Tier identifies a subscription plan.
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierBusiness Tier = "business"
)

// Feature codes tracked against monthly limits.
const (
	FeatureInvoices  = "invoices"
	FeatureSales     = "sales"
	FeatureExpenses  = "expenses"
	FeatureProducts  = "products"
	FeatureCustomers = "customers"
)

// Unlimited marks a feature with no monthly cap. Stored as limit_count 0,
// which the percentage calculation treats as 0%.
const Unlimited = 0

// Plan describes one tier: its monthly feature limits and the total
// attachment storage it may hold.
type Plan struct {
	Tier            Tier           `json:"tier"`
	DisplayName     string         `json:"display_name"`
	PriceCents      int64          `json:"price_cents"`
	FeatureLimits   map[string]int `json:"feature_limits"`
	MaxStorageBytes int64          `json:"max_storage_bytes"`
}

var plans = map[Tier]Plan{
	TierFree: {
		Tier:        TierFree,
		DisplayName: "Free",
		PriceCents:  0,
		FeatureLimits: map[string]int{
			FeatureInvoices:  5,
			FeatureSales:     50,
			FeatureExpenses:  50,
			FeatureProducts:  25,
			FeatureCustomers: 25,
		},
		MaxStorageBytes: 100 << 20, // 100 MB
	},
	TierStarter: {
		Tier:        TierStarter,
		DisplayName: "Starter",
		PriceCents:  49900,
		FeatureLimits: map[string]int{
			FeatureInvoices:  100,
			FeatureSales:     1000,
			FeatureExpenses:  1000,
			FeatureProducts:  500,
			FeatureCustomers: 500,
		},
		MaxStorageBytes: 2 << 30, // 2 GB
	},
	TierBusiness: {
		Tier:        TierBusiness,
		DisplayName: "Business",
		PriceCents:  149900,
		FeatureLimits: map[string]int{
			FeatureInvoices:  Unlimited,
			FeatureSales:     Unlimited,
			FeatureExpenses:  Unlimited,
			FeatureProducts:  Unlimited,
			FeatureCustomers: Unlimited,
		},
		MaxStorageBytes: 20 << 30, // 20 GB
	},
}

// Get returns the plan for a tier. Unknown tiers fall back to Free so a
// corrupted subscription row never unlocks unlimited usage.
func Get(tier Tier) Plan {
	if p, ok := plans[tier]; ok {
		return p
	}
	return plans[TierFree]
}

// Valid reports whether tier names a defined plan.
func Valid(tier Tier) bool {
	_, ok := plans[tier]
	return ok
}

// Limit returns the monthly cap for a feature under the tier. Unknown
// features are capped at zero.
func Limit(tier Tier, feature string) int {
	p := Get(tier)
	limit, ok := p.FeatureLimits[feature]
	if !ok {
		return 0
	}
	return limit
}

// Features returns the tracked feature codes in stable order.
func Features() []string {
	p := plans[TierFree]
	out := make([]string, 0, len(p.FeatureLimits))
	for code := range p.FeatureLimits {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// All returns every plan ordered free, starter, business.
func All() []Plan {
	return []Plan{plans[TierFree], plans[TierStarter], plans[TierBusiness]}
}
