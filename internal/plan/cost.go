package plan

import (
	"afyaplate/internal/price"
)

// Verdict compares a plan's grand total against the client budget.
type Verdict string

const (
	// VerdictWithinBudget: fully priced and affordable.
	VerdictWithinBudget Verdict = "within-budget"
	// VerdictOverBudget: the priced items alone already exceed the
	// budget. Takes precedence over partial pricing.
	VerdictOverBudget Verdict = "over-budget"
	// VerdictPartialUnknown: within budget so far, but unpriced items
	// make the total a lower bound.
	VerdictPartialUnknown Verdict = "partial-unknown"
)

// ItemCost prices one meal item. Cost is nil when the item is
// unresolved or has no catalog price.
type ItemCost struct {
	Item MealItem `json:"item"`
	Cost *float64 `json:"cost,omitempty"`
}

// MealCost aggregates one meal.
type MealCost struct {
	Slot     MealSlot   `json:"slot"`
	Name     string     `json:"name"`
	Items    []ItemCost `json:"items"`
	Subtotal float64    `json:"subtotal"`
}

// DayCost aggregates one day.
type DayCost struct {
	Number   int        `json:"day"`
	Meals    []MealCost `json:"meals"`
	Subtotal float64    `json:"subtotal"`
}

// CostedPlan is the plan joined with the price catalog: per-item prices,
// per-meal and per-day subtotals, grand total and budget verdict.
type CostedPlan struct {
	Plan    *MealPlan `json:"plan"`
	Days    []DayCost `json:"days"`
	Total   float64   `json:"total"`
	Budget  float64   `json:"budget"`
	Delta   float64   `json:"delta"`
	Partial bool      `json:"partial"`
	Verdict Verdict   `json:"verdict"`
	// Unpriced lists the food names that contributed no cost.
	Unpriced []string `json:"unpriced,omitempty"`
}

// EstimateCost joins a validated plan against the price catalog.
// Deterministic and pure: no lookups beyond the supplied maps, no
// external calls. Entries priced in a non-weight unit cannot cost a
// gram quantity and count as unpriced.
func EstimateCost(plan *MealPlan, prices map[string]price.Entry, budget float64) CostedPlan {
	out := CostedPlan{Plan: plan, Budget: budget}

	for _, day := range plan.Days {
		dc := DayCost{Number: day.Number}
		for _, meal := range day.Meals {
			mc := MealCost{Slot: meal.Slot, Name: meal.Name}
			for _, item := range meal.Items {
				ic := ItemCost{Item: item}
				entry, ok := prices[item.ResolvedCode]
				perGram, convertible := entry.PerGram()
				if ok && !item.Unresolved && convertible {
					cost := item.QuantityG * perGram
					ic.Cost = &cost
					mc.Subtotal += cost
				} else {
					out.Partial = true
					out.Unpriced = append(out.Unpriced, item.Food)
				}
				mc.Items = append(mc.Items, ic)
			}
			dc.Subtotal += mc.Subtotal
			dc.Meals = append(dc.Meals, mc)
		}
		out.Total += dc.Subtotal
		out.Days = append(out.Days, dc)
	}

	out.Delta = out.Total - budget
	switch {
	case out.Total > budget:
		out.Verdict = VerdictOverBudget
	case out.Partial:
		out.Verdict = VerdictPartialUnknown
	default:
		out.Verdict = VerdictWithinBudget
	}
	out.Unpriced = dedupe(out.Unpriced)
	return out
}
