package plan

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"afyaplate/internal/food"
)

//go:embed planner_prompt.md
var plannerPrompt string

// maxFoodListChars bounds the food list injected into the prompt so the
// request stays within small local-model context windows.
const maxFoodListChars = 3000

// RequestBuilder turns a ClientProfile into a generation prompt with a
// machine-checkable output schema.
type RequestBuilder struct {
	index        *food.Index
	requireSnack bool
	tmpl         *template.Template
}

// NewRequestBuilder creates a builder over the current food index.
func NewRequestBuilder(index *food.Index, requireSnack bool) (*RequestBuilder, error) {
	tmpl, err := template.New("planner").Parse(plannerPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse planner prompt: %w", err)
	}
	return &RequestBuilder{index: index, requireSnack: requireSnack, tmpl: tmpl}, nil
}

// Build renders the prompt for a profile. A non-empty hint carries the
// previous attempt's failure reason so the model can self-correct. The
// profile must be validated before any generation call; Build enforces
// that here so no malformed request ever reaches the service.
func (b *RequestBuilder) Build(profile ClientProfile, hint string) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", fmt.Errorf("invalid client profile: %w", err)
	}

	conditions := profile.Conditions
	if len(conditions) == 0 {
		conditions = []Condition{ConditionGeneralWellness}
	}
	condNames := make([]string, len(conditions))
	for i, c := range conditions {
		condNames[i] = strings.ReplaceAll(string(c), "_", " ")
	}

	data := struct {
		Days           int
		Age            int
		Sex            string
		Conditions     string
		KcalTarget     int
		Budget         float64
		Preferences    string
		Exclusions     string
		FoodList       string
		FocusNutrients string
		RequireSnack   bool
		Hint           string
	}{
		Days:           profile.Days,
		Age:            profile.Age,
		Sex:            profile.Sex,
		Conditions:     strings.Join(condNames, ", "),
		KcalTarget:     profile.KcalTarget,
		Budget:         profile.BudgetKSh,
		Preferences:    profile.Preferences,
		Exclusions:     strings.Join(profile.Exclusions, ", "),
		FoodList:       b.foodList(),
		FocusNutrients: strings.Join(FocusNutrients(profile.Conditions), ", "),
		RequireSnack:   b.requireSnack,
		Hint:           hint,
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render planner prompt: %w", err)
	}
	return buf.String(), nil
}

// foodList renders the available foods as "English (Swahili)" pairs,
// truncated at an entry boundary.
func (b *RequestBuilder) foodList() string {
	var sb strings.Builder
	for _, rec := range b.index.Records() {
		entry := rec.NameEn
		if rec.NameSw != "" {
			entry = fmt.Sprintf("%s (%s)", rec.NameEn, rec.NameSw)
		}
		if sb.Len() > 0 {
			if sb.Len()+len(entry)+2 > maxFoodListChars {
				break
			}
			sb.WriteString(", ")
		}
		sb.WriteString(entry)
	}
	return sb.String()
}
