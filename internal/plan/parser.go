package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ParseResult is a tagged parse outcome: either a structurally complete
// plan or a malformed-output reason. Generative text is untrusted input,
// so parse failures are data, not panics.
type ParseResult struct {
	Plan   *MealPlan
	Reason string
}

// Parsed reports whether the raw output yielded a plan.
func (r ParseResult) Parsed() bool { return r.Plan != nil }

func malformed(format string, args ...any) ParseResult {
	return ParseResult{Reason: fmt.Sprintf(format, args...)}
}

// Parse extracts the JSON object from raw model output and maps it onto
// the plan schema. It tolerates markdown fences, prose around the JSON,
// quoted numbers and a few item shapes; anything beyond that is
// malformed output.
func Parse(raw string) ParseResult {
	block, ok := extractJSONBlock(raw)
	if !ok {
		return malformed("no JSON object found in output")
	}

	var rp rawPlan
	if err := json.Unmarshal([]byte(block), &rp); err != nil {
		return malformed("invalid JSON: %v", err)
	}
	if len(rp.Days) == 0 {
		return malformed("JSON object has no day blocks")
	}

	plan := &MealPlan{Days: make([]Day, 0, len(rp.Days))}
	for i, rd := range rp.Days {
		day := Day{
			Number: int(rd.Day),
			Totals: toFloatMap(rd.DailyTotals),
		}
		if day.Number == 0 {
			day.Number = i + 1
		}
		for _, slot := range []MealSlot{SlotBreakfast, SlotLunch, SlotDinner, SlotSnack} {
			rm, ok := rd.Meals[slot]
			if !ok {
				continue
			}
			meal := Meal{
				Slot:          slot,
				Name:          rm.Name,
				Nutrients:     toFloatMap(rm.Nutrients),
				EstimatedCost: float64(rm.EstimatedCost),
			}
			for _, ri := range rm.Items {
				meal.Items = append(meal.Items, MealItem{
					Food:      strings.TrimSpace(ri.Food),
					QuantityG: float64(ri.QuantityG),
					Note:      ri.Note,
				})
			}
			day.Meals = append(day.Meals, meal)
		}
		plan.Days = append(plan.Days, day)
	}

	sort.SliceStable(plan.Days, func(i, j int) bool {
		return plan.Days[i].Number < plan.Days[j].Number
	})
	return ParseResult{Plan: plan}
}

// extractJSONBlock returns the substring between the first '{' and the
// last '}', after stripping markdown code fences.
func extractJSONBlock(raw string) (string, bool) {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

type rawPlan struct {
	Days []rawDay `json:"days"`
}

type rawDay struct {
	Day         FlexFloat            `json:"day"`
	Meals       rawMeals             `json:"meals"`
	DailyTotals map[string]FlexFloat `json:"daily_totals"`
}

// rawMeals maps slot names to meals. "snacks" is folded into the snack
// slot since models flip between the two.
type rawMeals map[MealSlot]rawMeal

func (m *rawMeals) UnmarshalJSON(b []byte) error {
	var bySlot map[string]rawMeal
	if err := json.Unmarshal(b, &bySlot); err != nil {
		return err
	}
	out := make(rawMeals, len(bySlot))
	for name, meal := range bySlot {
		slot := MealSlot(strings.ToLower(strings.TrimSpace(name)))
		if slot == "snacks" {
			slot = SlotSnack
		}
		out[slot] = meal
	}
	*m = out
	return nil
}

// rawMeal accepts either the full meal object or a bare item array.
type rawMeal struct {
	Name          string
	Items         []rawItem
	Nutrients     map[string]FlexFloat
	EstimatedCost FlexFloat
}

func (m *rawMeal) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(b, &m.Items)
	}

	var obj struct {
		Name          string               `json:"name"`
		Items         []rawItem            `json:"items"`
		Ingredients   []rawItem            `json:"ingredients"`
		Nutrients     map[string]FlexFloat `json:"nutrients"`
		EstimatedCost FlexFloat            `json:"estimated_cost"`
		Cost          FlexFloat            `json:"cost"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	m.Name = obj.Name
	m.Items = obj.Items
	if len(m.Items) == 0 {
		m.Items = obj.Ingredients
	}
	m.Nutrients = obj.Nutrients
	m.EstimatedCost = obj.EstimatedCost
	if m.EstimatedCost == 0 {
		m.EstimatedCost = obj.Cost
	}
	return nil
}

// rawItem accepts {"food": ..., "quantity_g": ...} or a bare string.
type rawItem struct {
	Food      string
	QuantityG FlexFloat
	Note      string
}

func (it *rawItem) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(b, &it.Food)
	}

	var obj struct {
		Food      string    `json:"food"`
		Name      string    `json:"name"`
		QuantityG FlexFloat `json:"quantity_g"`
		Quantity  FlexFloat `json:"quantity"`
		Grams     FlexFloat `json:"grams"`
		Note      string    `json:"note"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	it.Food = obj.Food
	if it.Food == "" {
		it.Food = obj.Name
	}
	it.QuantityG = obj.QuantityG
	if it.QuantityG == 0 {
		it.QuantityG = obj.Quantity
	}
	if it.QuantityG == 0 {
		it.QuantityG = obj.Grams
	}
	it.Note = obj.Note
	return nil
}

var flexNumRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// FlexFloat is a float64 that also accepts quoted numbers and numbers
// with unit suffixes ("550 kcal"), which small models emit despite
// instructions.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	match := flexNumRe.FindString(s)
	if match == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return fmt.Errorf("bad numeric value %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

func toFloatMap(in map[string]FlexFloat) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = float64(v)
	}
	return out
}
