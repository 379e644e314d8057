package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"afyaplate/internal/food"
	"afyaplate/internal/llm"
	"afyaplate/internal/shared"

	"go.uber.org/zap"
)

// State is a validation stage a generated plan moves through. A plan is
// only handed to the caller once it reaches StateAccepted.
type State string

const (
	StateRaw             State = "RAW"
	StateParsed          State = "PARSED"
	StateSchemaValid     State = "SCHEMA_VALID"
	StateConstraintValid State = "CONSTRAINT_VALID"
	StateAccepted        State = "ACCEPTED"
	StateRejected        State = "REJECTED"
)

// ConstraintFailure is the terminal error after retries are exhausted.
// It always names the state that failed, the attempt count and the last
// diagnostic — never a bare "failed".
type ConstraintFailure struct {
	State      State
	Attempts   int
	Diagnostic string
}

func (e *ConstraintFailure) Error() string {
	return fmt.Sprintf("plan rejected at %s after %d attempt(s): %s",
		e.State, e.Attempts, e.Diagnostic)
}

// ValidatorOptions holds the generation and acceptance policy.
type ValidatorOptions struct {
	// MaxRetries bounds corrective re-prompts after the first attempt.
	MaxRetries int
	// CallTimeout is the deadline for a single generation call. The
	// whole run is bounded by CallTimeout * (MaxRetries + 1).
	CallTimeout time.Duration
	// UnresolvedTolerance is the accepted fraction of meal items that
	// may fail food-name resolution.
	UnresolvedTolerance float64
	// RequireSnack makes the snack slot mandatory.
	RequireSnack bool
	// DailyBudgetSlack caps a day's estimated cost at
	// slack * budget / days before a corrective retry fires.
	DailyBudgetSlack float64
}

// Result is an accepted plan plus its generation diagnostics.
type Result struct {
	Plan       *MealPlan
	Attempts   int
	Unresolved []string
	Metas      []shared.CallMeta
}

// Validator drives generation attempts through the validation states,
// re-prompting with a corrective hint on recoverable failures.
type Validator struct {
	gen     llm.TextGenerator
	builder *RequestBuilder
	index   *food.Index
	opts    ValidatorOptions
	logger  *zap.Logger
}

// NewValidator wires a validator. The index and builder are read-only
// for the validator's lifetime, so concurrent runs for independent
// clients are safe.
func NewValidator(gen llm.TextGenerator, builder *RequestBuilder, index *food.Index, opts ValidatorOptions, logger *zap.Logger) *Validator {
	return &Validator{
		gen:     gen,
		builder: builder,
		index:   index,
		opts:    opts,
		logger:  logger.Named("validator"),
	}
}

// Run generates a plan for the profile and validates it to acceptance.
// Service errors (unavailable, timeout) surface immediately; malformed
// or constraint-violating output triggers a corrective retry up to
// MaxRetries, after which the caller gets a ConstraintFailure carrying
// the last diagnostic.
func (v *Validator) Run(ctx context.Context, profile ClientProfile) (Result, error) {
	if err := profile.Validate(); err != nil {
		return Result{}, err
	}

	overall := v.opts.CallTimeout * time.Duration(v.opts.MaxRetries+1)
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	var (
		result Result
		hint   string
	)
	for attempt := 0; attempt <= v.opts.MaxRetries; attempt++ {
		result.Attempts = attempt + 1
		stage := "plan"
		if attempt > 0 {
			stage = fmt.Sprintf("retry-%d", attempt)
		}

		prompt, err := v.builder.Build(profile, hint)
		if err != nil {
			return result, err
		}

		resp, meta, err := v.generate(ctx, stage, prompt)
		result.Metas = append(result.Metas, meta)
		if err != nil {
			// Service-boundary errors are not retried here; the model
			// cannot self-correct a connection problem.
			return result, err
		}

		state, diagnostic, accepted := v.validate(resp.Content, profile, &result)
		if accepted {
			v.logger.Info("plan accepted",
				zap.String("client", profile.Name),
				zap.Int("attempts", result.Attempts),
				zap.Int("unresolved_items", len(result.Unresolved)),
			)
			return result, nil
		}

		v.logger.Warn("plan rejected, retrying",
			zap.String("state", string(state)),
			zap.Int("attempt", attempt+1),
			zap.String("diagnostic", diagnostic),
		)
		hint = diagnostic

		if attempt == v.opts.MaxRetries {
			return result, &ConstraintFailure{
				State:      state,
				Attempts:   result.Attempts,
				Diagnostic: diagnostic,
			}
		}
	}
	// Unreachable: the loop always returns.
	return result, &ConstraintFailure{State: StateRejected, Attempts: result.Attempts, Diagnostic: "no attempts made"}
}

func (v *Validator) generate(ctx context.Context, stage, prompt string) (llm.ContentResponse, shared.CallMeta, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := v.gen.GenerateContent(callCtx, prompt)
	meta := shared.CallMeta{
		Stage:   stage,
		Usage:   resp.Usage,
		Latency: time.Since(start),
	}
	if err != nil {
		// Exceeding the overall wall-clock budget surfaces as a single
		// timeout, not as whatever the last call happened to report.
		if errors.Is(err, llm.ErrGenerationTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return resp, meta, fmt.Errorf("generating plan (%s): %w", stage, llm.ErrGenerationTimeout)
		}
		return resp, meta, fmt.Errorf("generating plan (%s): %w", stage, err)
	}
	return resp, meta, nil
}

// validate moves raw output through the states. On failure it returns
// the failing state and a diagnostic usable as a corrective hint; on
// success it fills result.Plan and result.Unresolved.
func (v *Validator) validate(raw string, profile ClientProfile, result *Result) (State, string, bool) {
	parsed := Parse(raw)
	if !parsed.Parsed() {
		return StateRaw, "output was not a valid JSON plan: " + parsed.Reason, false
	}
	plan := parsed.Plan

	if diag := v.checkSchema(plan, profile); diag != "" {
		return StateParsed, diag, false
	}

	unresolved, diag := v.checkConstraints(plan, profile)
	if diag != "" {
		return StateSchemaValid, diag, false
	}

	result.Plan = plan
	result.Unresolved = unresolved
	return StateAccepted, "", true
}

// checkSchema enforces the structural contract: day count, day
// numbering, required meal slots, non-empty meals, positive quantities.
func (v *Validator) checkSchema(plan *MealPlan, profile ClientProfile) string {
	if len(plan.Days) != profile.Days {
		return fmt.Sprintf("the plan has %d day blocks, the request requires exactly %d", len(plan.Days), profile.Days)
	}

	required := requiredSlots
	if v.opts.RequireSnack {
		required = append(append([]MealSlot{}, requiredSlots...), SlotSnack)
	}

	for i, day := range plan.Days {
		if day.Number != i+1 {
			return fmt.Sprintf("day blocks must be numbered 1..%d, block %d is numbered %d", profile.Days, i+1, day.Number)
		}
		present := make(map[MealSlot]bool, len(day.Meals))
		for _, meal := range day.Meals {
			present[meal.Slot] = true
			if len(meal.Items) == 0 {
				return fmt.Sprintf("day %d %s has no items", day.Number, meal.Slot)
			}
			for _, item := range meal.Items {
				if item.Food == "" {
					return fmt.Sprintf("day %d %s has an item without a food name", day.Number, meal.Slot)
				}
				if item.QuantityG <= 0 {
					return fmt.Sprintf("day %d %s: %q needs a positive quantity_g", day.Number, meal.Slot, item.Food)
				}
			}
		}
		for _, slot := range required {
			if !present[slot] {
				return fmt.Sprintf("day %d is missing the %s meal", day.Number, slot)
			}
		}
		if len(day.Totals) == 0 {
			return fmt.Sprintf("day %d has no daily_totals; include numeric totals for %s",
				day.Number, strings.Join(FocusNutrients(profile.Conditions), ", "))
		}
	}
	return ""
}

// checkConstraints resolves every item against the food index and runs
// the budget sanity check. Items that fail resolution are flagged, never
// dropped; too many of them reject the plan.
func (v *Validator) checkConstraints(plan *MealPlan, profile ClientProfile) ([]string, string) {
	var (
		total      int
		unresolved []string
	)
	for d := range plan.Days {
		for m := range plan.Days[d].Meals {
			meal := &plan.Days[d].Meals[m]
			for i := range meal.Items {
				item := &meal.Items[i]
				total++
				rec, _ := v.index.Resolve(item.Food)
				if rec == nil {
					item.Unresolved = true
					unresolved = append(unresolved, item.Food)
					continue
				}
				item.ResolvedCode = rec.Code
			}
		}
	}

	if total > 0 {
		frac := float64(len(unresolved)) / float64(total)
		if frac > v.opts.UnresolvedTolerance {
			return nil, fmt.Sprintf(
				"%d of %d items are not in the food list (%s); use only foods from the list",
				len(unresolved), total, strings.Join(dedupe(unresolved), ", "))
		}
	}

	if v.opts.DailyBudgetSlack > 0 {
		dailyCap := v.opts.DailyBudgetSlack * profile.BudgetKSh / float64(profile.Days)
		for _, day := range plan.Days {
			var dayCost float64
			for _, meal := range day.Meals {
				dayCost += meal.EstimatedCost
			}
			if dayCost > dailyCap {
				return nil, fmt.Sprintf(
					"day %d estimates KSh %.0f, far above the ~KSh %.0f available per day; rebalance the plan",
					day.Number, dayCost, profile.BudgetKSh/float64(profile.Days))
			}
		}
	}

	return unresolved, ""
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
