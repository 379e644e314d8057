package plan

import (
	"fmt"
)

// Condition is a recognized client health goal. Each condition pins the
// nutrient keys the plan must estimate.
type Condition string

const (
	ConditionGeneralWellness Condition = "general_wellness"
	ConditionDiabetesType2   Condition = "diabetes_type_2"
	ConditionHypertension    Condition = "hypertension"
	ConditionAnaemia         Condition = "anaemia"
	ConditionPregnancy       Condition = "pregnancy"
)

// AllConditions lists the recognized condition vocabulary.
var AllConditions = []Condition{
	ConditionGeneralWellness, ConditionDiabetesType2, ConditionHypertension,
	ConditionAnaemia, ConditionPregnancy,
}

// nutrientFocus pins the nutrient keys a condition requires in meal
// estimates and daily totals.
var nutrientFocus = map[Condition][]string{
	ConditionGeneralWellness: {"calories", "protein", "carbohydrates", "estimated_cost"},
	ConditionDiabetesType2:   {"calories", "carbohydrates", "sugars", "protein", "fats", "estimated_cost"},
	ConditionHypertension:    {"calories", "sodium", "potassium", "protein", "estimated_cost"},
	ConditionAnaemia:         {"calories", "iron", "vitamin_c", "protein", "estimated_cost"},
	ConditionPregnancy:       {"calories", "folate", "iron", "calcium", "protein", "estimated_cost"},
}

// Valid reports whether c is part of the recognized vocabulary.
func (c Condition) Valid() bool {
	_, ok := nutrientFocus[c]
	return ok
}

// FocusNutrients returns the nutrient keys for a set of conditions,
// deduplicated, in first-seen order. Empty input means general wellness.
func FocusNutrients(conditions []Condition) []string {
	if len(conditions) == 0 {
		conditions = []Condition{ConditionGeneralWellness}
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range conditions {
		for _, n := range nutrientFocus[c] {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// ClientProfile describes who the plan is for and under what constraints.
type ClientProfile struct {
	Name        string      `json:"name"`
	Age         int         `json:"age"`
	Sex         string      `json:"sex"`
	Conditions  []Condition `json:"conditions"`
	KcalTarget  int         `json:"kcal_target"`
	BudgetKSh   float64     `json:"budget_ksh"`
	Days        int         `json:"days"`
	Preferences string      `json:"preferences,omitempty"`
	Exclusions  []string    `json:"exclusions,omitempty"`
}

// Validate rejects profiles that must never reach the generation
// service: out-of-range duration, non-positive budget, unknown
// conditions.
func (p ClientProfile) Validate() error {
	if p.Days < 1 || p.Days > 7 {
		return fmt.Errorf("day count must be between 1 and 7, got %d", p.Days)
	}
	if p.BudgetKSh <= 0 {
		return fmt.Errorf("budget must be positive, got %v", p.BudgetKSh)
	}
	for _, c := range p.Conditions {
		if !c.Valid() {
			return fmt.Errorf("unknown condition %q", c)
		}
	}
	return nil
}

// MealSlot is a fixed meal position within a day.
type MealSlot string

const (
	SlotBreakfast MealSlot = "breakfast"
	SlotLunch     MealSlot = "lunch"
	SlotDinner    MealSlot = "dinner"
	SlotSnack     MealSlot = "snack"
)

// requiredSlots must be present in every day; the snack slot is optional
// unless configuration demands it.
var requiredSlots = []MealSlot{SlotBreakfast, SlotLunch, SlotDinner}

// MealItem is one food within a meal. The generator emits Food and
// QuantityG; ResolvedCode and Unresolved are filled during validation.
// An item is never silently dropped: it either carries a code or the
// unresolved flag.
type MealItem struct {
	Food         string  `json:"food"`
	QuantityG    float64 `json:"quantity_g"`
	Note         string  `json:"note,omitempty"`
	ResolvedCode string  `json:"resolved_code,omitempty"`
	Unresolved   bool    `json:"unresolved,omitempty"`
}

// Meal is one slot of a day.
type Meal struct {
	Slot          MealSlot           `json:"slot"`
	Name          string             `json:"name"`
	Items         []MealItem         `json:"items"`
	Nutrients     map[string]float64 `json:"nutrients,omitempty"`
	EstimatedCost float64            `json:"estimated_cost,omitempty"`
}

// Day holds the ordered meals of one plan day.
type Day struct {
	Number int                `json:"day"`
	Meals  []Meal             `json:"meals"`
	Totals map[string]float64 `json:"daily_totals,omitempty"`
}

// MealPlan is the validated multi-day plan.
type MealPlan struct {
	Days []Day `json:"days"`
}
