package validate

import (
	"sort"

	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/tool"
)

// Gate checks that every tool the plan references exists in the catalog.
// On success it returns the plan unchanged. If any lookup fails, the whole
// plan is rejected before any tool runs: the returned plan is a
// complexity=impossible rejection whose reason names every missing tool and
// enumerates the available ones, and the CapabilityError carries the same
// sets for programmatic callers. Rejection is all-or-nothing.
func Gate(p *plan.Plan, cat *tool.Catalog) (*plan.Plan, *CapabilityError) {
	missingSet := make(map[string]struct{})
	for _, s := range p.Steps {
		if _, err := cat.Lookup(s.Action); err != nil {
			missingSet[s.Action] = struct{}{}
		}
	}
	if len(missingSet) == 0 {
		return p, nil
	}

	missing := make([]string, 0, len(missingSet))
	for name := range missingSet {
		missing = append(missing, name)
	}
	sort.Strings(missing)

	available := cat.Names()
	return plan.Rejection(p.Goal, missing, available), &CapabilityError{
		Missing:   missing,
		Available: available,
	}
}
