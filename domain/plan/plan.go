// Package plan provides plan value types and pure functions.
// The plan table is the single source of the plan -> quota mapping.
package plan

// Plan represents a pricing tier (immutable value type).
type Plan struct {
	ID               string
	Name             string
	RequestsPerMonth int64 // quota ceiling; -1 = unlimited
	MaxKeys          int   // maximum active API keys
	PriceMonthly     int64 // cents
	StripePriceID    string
}

// Defaults returns the built-in plan table. Deployments may override it
// from configuration, but a plan id must always resolve through one table.
func Defaults() []Plan {
	return []Plan{
		{ID: "free", Name: "Free", RequestsPerMonth: 100, MaxKeys: 2, PriceMonthly: 0},
		{ID: "starter", Name: "Starter", RequestsPerMonth: 10000, MaxKeys: 5, PriceMonthly: 1900},
		{ID: "pro", Name: "Pro", RequestsPerMonth: 100000, MaxKeys: 10, PriceMonthly: 9900},
		{ID: "enterprise", Name: "Enterprise", RequestsPerMonth: -1, MaxKeys: 25, PriceMonthly: 49900},
	}
}

// Find finds a plan by ID in a list.
// This is a PURE function.
func Find(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// QuotaFor returns the quota ceiling for a plan id.
// The second return value is false for an unknown plan: callers must
// never guess a ceiling for a plan that is not in the table.
func QuotaFor(plans []Plan, id string) (int64, bool) {
	p, ok := Find(plans, id)
	if !ok {
		return 0, false
	}
	return p.RequestsPerMonth, true
}

// IsUnlimited checks if a plan has unlimited requests.
// This is a PURE function.
func IsUnlimited(p Plan) bool {
	return p.RequestsPerMonth < 0
}
