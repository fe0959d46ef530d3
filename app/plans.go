package app

import (
	"sync/atomic"

	"github.com/docpilot/metergate/domain/plan"
)

// PlanTable holds the hot-reloadable plan table shared by every service.
// Reads are lock-free; config reload swaps the whole slice at once so a
// request never sees a half-updated table.
type PlanTable struct {
	v atomic.Pointer[[]plan.Plan]
}

// NewPlanTable creates a plan table with an initial set of plans.
func NewPlanTable(plans []plan.Plan) *PlanTable {
	t := &PlanTable{}
	t.Update(plans)
	return t
}

// Get returns the current plan table. Callers must not mutate it.
func (t *PlanTable) Get() []plan.Plan {
	return *t.v.Load()
}

// Update replaces the plan table. Safe to call while requests are in
// flight.
func (t *PlanTable) Update(plans []plan.Plan) {
	cp := make([]plan.Plan, len(plans))
	copy(cp, plans)
	t.v.Store(&cp)
}
