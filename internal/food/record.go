package food

import (
	"strconv"
	"strings"
)

// FoodGroup is the controlled food-group enumeration from the KFCT 2018.
type FoodGroup string

const (
	GroupCereals      FoodGroup = "Cereals and their products"
	GroupStarchyRoots FoodGroup = "Starchy roots, tubers, and their products"
	GroupLegumes      FoodGroup = "Legumes, and their products"
	GroupNutsSeeds    FoodGroup = "Nuts, seeds and their products"
	GroupVegetables   FoodGroup = "Vegetables and their products"
	GroupFruits       FoodGroup = "Fruits and their products"
	GroupMeat         FoodGroup = "Meat, poultry and their products"
	GroupFish         FoodGroup = "Fish, other aquatic animals and their products"
	GroupMilkEggs     FoodGroup = "Milk, milk products and eggs"
	GroupOilsFats     FoodGroup = "Oils and fats"
	GroupBeverages    FoodGroup = "Beverages"
	GroupSpices       FoodGroup = "Spices and condiments"
	GroupMisc         FoodGroup = "Miscellaneous"
	GroupInfant       FoodGroup = "Infant foods"
	GroupSpecialDiet  FoodGroup = "Foods for special dietary use"
)

// AllGroups lists the enumeration in table order.
var AllGroups = []FoodGroup{
	GroupCereals, GroupStarchyRoots, GroupLegumes, GroupNutsSeeds,
	GroupVegetables, GroupFruits, GroupMeat, GroupFish, GroupMilkEggs,
	GroupOilsFats, GroupBeverages, GroupSpices, GroupMisc, GroupInfant,
	GroupSpecialDiet,
}

// groupByCodeLetter maps the leading letter of a KFCT food code onto its
// group, used when the group cell is blank.
var groupByCodeLetter = map[byte]FoodGroup{
	'A': GroupCereals,
	'B': GroupStarchyRoots,
	'C': GroupLegumes,
	'D': GroupNutsSeeds,
	'E': GroupVegetables,
	'F': GroupFruits,
	'G': GroupMeat,
	'H': GroupFish,
	'J': GroupMilkEggs,
	'K': GroupOilsFats,
	'L': GroupBeverages,
	'M': GroupSpices,
	'N': GroupMisc,
	'P': GroupInfant,
	'S': GroupSpecialDiet,
}

// Valid reports whether g is part of the controlled enumeration.
func (g FoodGroup) Valid() bool {
	for _, known := range AllGroups {
		if g == known {
			return true
		}
	}
	return false
}

// MatchGroup resolves a free-text label onto the enumeration: folded
// exact match first, then a unique folded prefix ("vege" matches the
// vegetables group). Ambiguous prefixes do not match.
func MatchGroup(label string) (FoodGroup, bool) {
	folded := Fold(label)
	if folded == "" {
		return "", false
	}
	var (
		match FoodGroup
		hits  int
	)
	for _, g := range AllGroups {
		fg := Fold(string(g))
		if fg == folded {
			return g, true
		}
		if strings.HasPrefix(fg, folded) {
			match = g
			hits++
		}
	}
	if hits == 1 {
		return match, true
	}
	return "", false
}

// MicroKeys fixes the micronutrient columns and their serialization order.
// Units are part of the key.
var MicroKeys = []string{
	"calcium_mg", "iron_mg", "zinc_mg", "vit_a_mcg",
	"thiamin_mg", "riboflavin_mg", "niacin_mg", "vit_c_mg",
}

// NutrientValue is a per-100g nutrient amount. "Trace" and "not
// determined" cells are Available=false — distinct from zero, so unknown
// values never pollute nutrient totals.
type NutrientValue struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
}

// Known wraps a measured value.
func Known(v float64) NutrientValue {
	return NutrientValue{Value: v, Available: true}
}

// NotAvailable marks a nutrient as unknown.
func NotAvailable() NutrientValue {
	return NutrientValue{}
}

// String renders the value for the canonical dataset file.
func (v NutrientValue) String() string {
	if !v.Available {
		return "NA"
	}
	return strconv.FormatFloat(v.Value, 'f', -1, 64)
}

func (v NutrientValue) scaled(f float64) NutrientValue {
	if !v.Available {
		return v
	}
	return Known(v.Value * f)
}

// FoodRecord is the canonical per-100g nutrient entry for one food item.
type FoodRecord struct {
	Code    string                   `json:"food_code"`
	NameEn  string                   `json:"food_name_english"`
	NameSw  string                   `json:"food_name_swahili,omitempty"`
	Group   FoodGroup                `json:"category"`
	Energy  NutrientValue            `json:"energy_kcal"`
	Protein NutrientValue            `json:"protein_g"`
	Fat     NutrientValue            `json:"fat_g"`
	Carbs   NutrientValue            `json:"carbs_g"`
	Fiber   NutrientValue            `json:"fibre_g"`
	Micros  map[string]NutrientValue `json:"micros,omitempty"`
}

// Scaled returns a copy with every nutrient scaled from the per-100g
// base to the given portion in grams. Unknown values stay unknown.
func (r FoodRecord) Scaled(grams float64) FoodRecord {
	f := grams / 100
	out := r
	out.Energy = r.Energy.scaled(f)
	out.Protein = r.Protein.scaled(f)
	out.Fat = r.Fat.scaled(f)
	out.Carbs = r.Carbs.scaled(f)
	out.Fiber = r.Fiber.scaled(f)
	if r.Micros != nil {
		out.Micros = make(map[string]NutrientValue, len(r.Micros))
		for k, v := range r.Micros {
			out.Micros[k] = v.scaled(f)
		}
	}
	return out
}
