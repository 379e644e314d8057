package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"afyaplate/internal/food"
	"afyaplate/internal/llm"
	"afyaplate/internal/shared"

	"go.uber.org/zap"
)

type scripted struct {
	content string
	err     error
}

// scriptedGen replays a fixed sequence of responses; the last entry
// repeats once the script runs out.
type scriptedGen struct {
	script  []scripted
	calls   int
	prompts []string
}

func (g *scriptedGen) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	g.prompts = append(g.prompts, prompt)
	i := g.calls
	if i >= len(g.script) {
		i = len(g.script) - 1
	}
	g.calls++
	s := g.script[i]
	if s.err != nil {
		return llm.ContentResponse{}, s.err
	}
	return llm.ContentResponse{
		Content: s.content,
		Usage:   shared.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, Model: "test"},
	}, nil
}

func validatorTestIndex(t *testing.T) *food.Index {
	t.Helper()
	records := []food.FoodRecord{
		{Code: "A001", NameEn: "Maize flour", NameSw: "Unga wa mahindi", Group: food.GroupCereals},
		{Code: "A005", NameEn: "Maize, dry", NameSw: "Mahindi", Group: food.GroupCereals},
		{Code: "A010", NameEn: "Millet flour", NameSw: "Unga wa wimbi", Group: food.GroupCereals},
		{Code: "C005", NameEn: "Beans, dry", NameSw: "Maharagwe", Group: food.GroupLegumes},
		{Code: "E012", NameEn: "Kale", NameSw: "Sukuma wiki", Group: food.GroupVegetables},
		{Code: "F001", NameEn: "Banana", NameSw: "Ndizi", Group: food.GroupFruits},
	}
	idx, err := food.NewIndex(records, 0.75)
	if err != nil {
		t.Fatalf("Expected no error building index, got %v", err)
	}
	return idx
}

// planJSON renders a structurally valid plan for the given number of
// days. Every item name resolves against validatorTestIndex.
func planJSON(days int) string {
	var sb strings.Builder
	sb.WriteString(`{"days": [`)
	for d := 1; d <= days; d++ {
		if d > 1 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{
			"day": %d,
			"meals": {
				"breakfast": {"name": "Uji", "items": [{"food": "Millet flour", "quantity_g": 60}], "estimated_cost": 60},
				"lunch": {"name": "Githeri", "items": [{"food": "Maize, dry", "quantity_g": 120}, {"food": "Beans, dry", "quantity_g": 100}], "estimated_cost": 120},
				"dinner": {"name": "Ugali with sukuma wiki", "items": [{"food": "Maize flour", "quantity_g": 150}, {"food": "Kale", "quantity_g": 200}], "estimated_cost": 100}
			},
			"daily_totals": {"calories": 1600, "estimated_cost": 280}
		}`, d)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func testProfile(days int) ClientProfile {
	return ClientProfile{
		Name:       "Wanjiku",
		Age:        34,
		Sex:        "female",
		Conditions: []Condition{ConditionGeneralWellness},
		KcalTarget: 2000,
		BudgetKSh:  3000,
		Days:       days,
	}
}

func newTestValidator(t *testing.T, gen llm.TextGenerator, opts ValidatorOptions) *Validator {
	t.Helper()
	idx := validatorTestIndex(t)
	builder, err := NewRequestBuilder(idx, false)
	if err != nil {
		t.Fatalf("Expected no error building request builder, got %v", err)
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 5 * time.Second
	}
	return NewValidator(gen, builder, idx, opts, zap.NewNop())
}

func defaultOpts() ValidatorOptions {
	return ValidatorOptions{
		MaxRetries:          2,
		UnresolvedTolerance: 0.10,
		DailyBudgetSlack:    1.5,
	}
}

func TestValidatorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("AcceptsValidPlan", func(t *testing.T) {
		gen := &scriptedGen{script: []scripted{{content: planJSON(3)}}}
		v := newTestValidator(t, gen, defaultOpts())

		res, err := v.Run(ctx, testProfile(3))
		if err != nil {
			t.Fatalf("Expected accepted plan, got %v", err)
		}
		if res.Attempts != 1 || gen.calls != 1 {
			t.Errorf("Expected 1 attempt, got %d attempts / %d calls", res.Attempts, gen.calls)
		}
		if len(res.Plan.Days) != 3 {
			t.Errorf("Expected 3 days, got %d", len(res.Plan.Days))
		}
		if len(res.Unresolved) != 0 {
			t.Errorf("Expected no unresolved items, got %v", res.Unresolved)
		}
		if res.Plan.Days[0].Meals[0].Items[0].ResolvedCode != "A010" {
			t.Errorf("Expected resolved code A010, got %+v", res.Plan.Days[0].Meals[0].Items[0])
		}
		if len(res.Metas) != 1 || res.Metas[0].Stage != "plan" {
			t.Errorf("Expected one 'plan' meta, got %+v", res.Metas)
		}
	})

	t.Run("InvalidProfileNeverCallsGenerator", func(t *testing.T) {
		gen := &scriptedGen{script: []scripted{{content: planJSON(1)}}}
		v := newTestValidator(t, gen, defaultOpts())

		for _, profile := range []ClientProfile{
			func() ClientProfile { p := testProfile(0); return p }(),
			func() ClientProfile { p := testProfile(8); return p }(),
			func() ClientProfile { p := testProfile(3); p.BudgetKSh = 0; return p }(),
			func() ClientProfile { p := testProfile(3); p.Conditions = []Condition{"keto"}; return p }(),
		} {
			if _, err := v.Run(ctx, profile); err == nil {
				t.Errorf("Expected rejection for profile %+v", profile)
			}
		}
		if gen.calls != 0 {
			t.Errorf("Expected no generation calls for invalid profiles, got %d", gen.calls)
		}
	})

	t.Run("MissingDayRetriesThenFails", func(t *testing.T) {
		// Always one day short of the 3-day request.
		gen := &scriptedGen{script: []scripted{{content: planJSON(2)}}}
		v := newTestValidator(t, gen, defaultOpts())

		_, err := v.Run(ctx, testProfile(3))
		var cf *ConstraintFailure
		if !errors.As(err, &cf) {
			t.Fatalf("Expected ConstraintFailure, got %v", err)
		}
		if cf.Attempts != 3 {
			t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", cf.Attempts)
		}
		if gen.calls != 3 {
			t.Errorf("Expected 3 generation calls, got %d", gen.calls)
		}
		if cf.State != StateParsed {
			t.Errorf("Expected failure leaving state %s, got %s", StateParsed, cf.State)
		}
		if !strings.Contains(cf.Diagnostic, "day blocks") {
			t.Errorf("Expected day-count diagnostic, got %q", cf.Diagnostic)
		}
		if !strings.Contains(gen.prompts[1], "PREVIOUS ATTEMPT WAS REJECTED") {
			t.Error("Expected the retry prompt to carry the failure reason")
		}
	})

	t.Run("RetryRecovers", func(t *testing.T) {
		gen := &scriptedGen{script: []scripted{
			{content: "Sorry, here is some prose instead of JSON."},
			{content: planJSON(2)},
		}}
		v := newTestValidator(t, gen, defaultOpts())

		res, err := v.Run(ctx, testProfile(2))
		if err != nil {
			t.Fatalf("Expected recovery on retry, got %v", err)
		}
		if res.Attempts != 2 || gen.calls != 2 {
			t.Errorf("Expected 2 attempts, got %d attempts / %d calls", res.Attempts, gen.calls)
		}
		if res.Metas[1].Stage != "retry-1" {
			t.Errorf("Expected second meta stage 'retry-1', got %q", res.Metas[1].Stage)
		}
	})

	t.Run("UnavailableSurfacesImmediately", func(t *testing.T) {
		gen := &scriptedGen{script: []scripted{{err: llm.ErrGenerationUnavailable}}}
		v := newTestValidator(t, gen, defaultOpts())

		_, err := v.Run(ctx, testProfile(2))
		if !errors.Is(err, llm.ErrGenerationUnavailable) {
			t.Fatalf("Expected ErrGenerationUnavailable, got %v", err)
		}
		if gen.calls != 1 {
			t.Errorf("Expected no retry on service errors, got %d calls", gen.calls)
		}
	})

	t.Run("TimeoutSurfacesImmediately", func(t *testing.T) {
		gen := &scriptedGen{script: []scripted{{err: llm.ErrGenerationTimeout}}}
		v := newTestValidator(t, gen, defaultOpts())

		_, err := v.Run(ctx, testProfile(2))
		if !errors.Is(err, llm.ErrGenerationTimeout) {
			t.Fatalf("Expected ErrGenerationTimeout, got %v", err)
		}
		if gen.calls != 1 {
			t.Errorf("Expected no retry on timeouts, got %d calls", gen.calls)
		}
	})

	t.Run("UnknownFoodsBeyondToleranceRejected", func(t *testing.T) {
		raw := strings.ReplaceAll(planJSON(1), "Maize, dry", "Imported quinoa")
		gen := &scriptedGen{script: []scripted{{content: raw}}}
		v := newTestValidator(t, gen, defaultOpts())

		_, err := v.Run(ctx, testProfile(1))
		var cf *ConstraintFailure
		if !errors.As(err, &cf) {
			t.Fatalf("Expected ConstraintFailure, got %v", err)
		}
		if cf.State != StateSchemaValid {
			t.Errorf("Expected failure leaving state %s, got %s", StateSchemaValid, cf.State)
		}
		if !strings.Contains(cf.Diagnostic, "Imported quinoa") {
			t.Errorf("Expected diagnostic to name the unknown food, got %q", cf.Diagnostic)
		}
	})

	t.Run("FewUnknownFoodsFlaggedNotDropped", func(t *testing.T) {
		raw := strings.ReplaceAll(planJSON(1), "Maize, dry", "Imported quinoa")
		gen := &scriptedGen{script: []scripted{{content: raw}}}
		opts := defaultOpts()
		opts.UnresolvedTolerance = 0.5
		v := newTestValidator(t, gen, opts)

		res, err := v.Run(ctx, testProfile(1))
		if err != nil {
			t.Fatalf("Expected acceptance within tolerance, got %v", err)
		}
		if len(res.Unresolved) != 1 || res.Unresolved[0] != "Imported quinoa" {
			t.Fatalf("Expected one unresolved item, got %v", res.Unresolved)
		}
		item := res.Plan.Days[0].Meals[1].Items[0]
		if !item.Unresolved || item.ResolvedCode != "" {
			t.Errorf("Expected the item flagged unresolved, got %+v", item)
		}
	})

	t.Run("DayCostFarOverBudgetRejected", func(t *testing.T) {
		raw := strings.ReplaceAll(planJSON(1), `"estimated_cost": 120`, `"estimated_cost": 9000`)
		gen := &scriptedGen{script: []scripted{{content: raw}}}
		v := newTestValidator(t, gen, defaultOpts())

		profile := testProfile(1)
		profile.BudgetKSh = 500
		_, err := v.Run(ctx, profile)
		var cf *ConstraintFailure
		if !errors.As(err, &cf) {
			t.Fatalf("Expected ConstraintFailure, got %v", err)
		}
		if !strings.Contains(cf.Diagnostic, "rebalance") {
			t.Errorf("Expected budget diagnostic, got %q", cf.Diagnostic)
		}
	})

	t.Run("MissingDailyTotalsRejected", func(t *testing.T) {
		raw := strings.ReplaceAll(planJSON(1),
			`"daily_totals": {"calories": 1600, "estimated_cost": 280}`,
			`"daily_totals": {}`)
		gen := &scriptedGen{script: []scripted{{content: raw}}}
		v := newTestValidator(t, gen, defaultOpts())

		_, err := v.Run(ctx, testProfile(1))
		var cf *ConstraintFailure
		if !errors.As(err, &cf) {
			t.Fatalf("Expected ConstraintFailure, got %v", err)
		}
		if cf.State != StateParsed {
			t.Errorf("Expected failure leaving state %s, got %s", StateParsed, cf.State)
		}
		if !strings.Contains(cf.Diagnostic, "daily_totals") {
			t.Errorf("Expected daily_totals diagnostic, got %q", cf.Diagnostic)
		}
		if !strings.Contains(cf.Diagnostic, "calories") {
			t.Errorf("Expected the diagnostic to name the focus nutrients, got %q", cf.Diagnostic)
		}
	})

	t.Run("MissingMealSlotRejected", func(t *testing.T) {
		raw := strings.ReplaceAll(planJSON(1), `"dinner"`, `"supper"`)
		gen := &scriptedGen{script: []scripted{{content: raw}}}
		v := newTestValidator(t, gen, defaultOpts())

		_, err := v.Run(ctx, testProfile(1))
		var cf *ConstraintFailure
		if !errors.As(err, &cf) {
			t.Fatalf("Expected ConstraintFailure, got %v", err)
		}
		if !strings.Contains(cf.Diagnostic, "missing the dinner meal") {
			t.Errorf("Expected missing-slot diagnostic, got %q", cf.Diagnostic)
		}
	})
}
