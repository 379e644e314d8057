package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"afyaplate/internal/config"
	"afyaplate/internal/food"
	"afyaplate/internal/llm"
	"afyaplate/internal/plan"
	"afyaplate/internal/price"
	"afyaplate/internal/shared"

	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LogLevel: "info",
		Dataset: config.DatasetConfig{
			PDFPath:        filepath.Join(dir, "kfct.pdf"),
			CSVPath:        filepath.Join(dir, "kfct_clean.csv"),
			GroupThreshold: 0.80,
		},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "afyaplate.db")},
		Match:    config.MatchConfig{Threshold: 0.75, MaxCandidates: 10},
		Generation: config.GenerationConfig{
			Backend:    "ollama",
			Timeout:    5 * time.Second,
			MaxRetries: 2,
		},
		Ollama: config.OllamaConfig{Host: "http://localhost:11434", Model: "test"},
		Plan: config.PlanConfig{
			UnresolvedTolerance: 0.10,
			DailyBudgetSlack:    1.5,
		},
	}
}

func seedDataset(t *testing.T, cfg *config.Config) {
	t.Helper()
	records := []food.FoodRecord{
		{Code: "A001", NameEn: "Maize flour", NameSw: "Unga wa mahindi", Group: food.GroupCereals, Energy: food.Known(353)},
		{Code: "C005", NameEn: "Beans, dry", NameSw: "Maharagwe", Group: food.GroupLegumes, Energy: food.Known(333)},
		{Code: "E012", NameEn: "Kale", NameSw: "Sukuma wiki", Group: food.GroupVegetables, Energy: food.Known(35)},
	}
	if err := food.NewStore(cfg.Dataset.CSVPath).Save(records, "test"); err != nil {
		t.Fatalf("Expected no error seeding dataset, got %v", err)
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error building app, got %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

type fixedGen struct {
	content string
	calls   int
}

func (g *fixedGen) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	g.calls++
	return llm.ContentResponse{
		Content: g.content,
		Usage:   shared.TokenUsage{PromptTokens: 100, CompletionTokens: 60, TotalTokens: 160, Model: "test"},
	}, nil
}

func TestNewWithoutDataset(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	if a.Index() != nil {
		t.Error("Expected no index before extraction")
	}
	if _, err := a.Search("ugali", SearchOptions{Max: 5}); err == nil {
		t.Error("Expected search to fail without a dataset")
	}
	if _, err := a.GeneratePlan(context.Background(), plan.ClientProfile{Name: "x", Days: 3, BudgetKSh: 1000}); err == nil {
		t.Error("Expected plan generation to fail without a dataset")
	}
}

func TestSearch(t *testing.T) {
	cfg := testConfig(t)
	seedDataset(t, cfg)
	a := newTestApp(t, cfg)

	if a.Index() == nil || a.Index().Len() != 3 {
		t.Fatal("Expected the seeded dataset to be indexed")
	}

	t.Run("ExactSwahiliHit", func(t *testing.T) {
		results, err := a.Search("sukuma wiki", SearchOptions{Max: 5})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(results) == 0 || results[0].Record.Code != "E012" {
			t.Fatalf("Expected E012 first, got %+v", results)
		}
		if results[0].Score != 1 || results[0].Lang != food.LangSwahili {
			t.Errorf("Expected exact swahili hit, got %+v", results[0])
		}
	})

	t.Run("LangFilter", func(t *testing.T) {
		results, err := a.Search("sukuma wiki", SearchOptions{Lang: food.LangEnglish, Max: 5})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		for _, r := range results {
			if r.Score == 1 {
				t.Errorf("Expected no exact hit for a swahili name in english-only search, got %+v", r)
			}
		}
	})

	t.Run("GroupFilter", func(t *testing.T) {
		results, err := a.Search("maharagwe", SearchOptions{Group: food.GroupCereals, Max: 5})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		for _, r := range results {
			if r.Record.Group != food.GroupCereals {
				t.Errorf("Expected only cereals, got %+v", r.Record)
			}
		}
	})

	t.Run("PrefixHit", func(t *testing.T) {
		results, err := a.Search("maize", SearchOptions{Lang: food.LangEnglish, Max: 5})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(results) == 0 || results[0].Record.Code != "A001" {
			t.Fatalf("Expected the maize flour record, got %+v", results)
		}
	})

	t.Run("EmptyQueryListsGroup", func(t *testing.T) {
		results, err := a.Search("", SearchOptions{Group: food.GroupVegetables, Max: 10})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(results) != 1 || results[0].Record.Code != "E012" {
			t.Fatalf("Expected the one vegetable record, got %+v", results)
		}
	})

	t.Run("EmptyQueryNeedsGroup", func(t *testing.T) {
		if _, err := a.Search("", SearchOptions{Max: 5}); err == nil {
			t.Error("Expected an error for an empty query without a group filter")
		}
	})
}

func TestGeneratePlan(t *testing.T) {
	cfg := testConfig(t)
	seedDataset(t, cfg)
	a := newTestApp(t, cfg)
	ctx := context.Background()

	gen := &fixedGen{content: `{"days": [{
		"day": 1,
		"meals": {
			"breakfast": {"name": "Uji", "items": [{"food": "Maize flour", "quantity_g": 60}], "estimated_cost": 40},
			"lunch": {"name": "Beans", "items": [{"food": "Beans, dry", "quantity_g": 150}], "estimated_cost": 90},
			"dinner": {"name": "Ugali na sukuma", "items": [{"food": "Maize flour", "quantity_g": 150}, {"food": "Kale", "quantity_g": 200}], "estimated_cost": 80}
		},
		"daily_totals": {"calories": 1600, "estimated_cost": 210}
	}]}`}
	a.gen = gen

	if err := a.Prices().Put(ctx, price.Entry{Key: "A001", Price: 120, Unit: "kg", Currency: "KSh"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	profile := plan.ClientProfile{Name: "Wanjiku", Age: 30, Days: 1, BudgetKSh: 500, KcalTarget: 2000}
	result, err := a.GeneratePlan(ctx, profile)
	if err != nil {
		t.Fatalf("Expected accepted plan, got %v", err)
	}
	if gen.calls != 1 || result.Attempts != 1 {
		t.Errorf("Expected a single attempt, got %d calls / %d attempts", gen.calls, result.Attempts)
	}
	if result.ID == "" {
		t.Error("Expected a stored plan id")
	}
	// Only maize flour is priced: 0.21kg * 120 = 25.2, partial verdict.
	if result.Costed.Verdict != plan.VerdictPartialUnknown {
		t.Errorf("Expected partial-unknown verdict, got %s", result.Costed.Verdict)
	}

	stored, err := a.Plans().Get(ctx, result.ID)
	if err != nil {
		t.Fatalf("Expected the plan to be stored, got %v", err)
	}
	if stored.ClientName != "Wanjiku" {
		t.Errorf("Expected stored client name, got %q", stored.ClientName)
	}

	usage, err := a.Metrics().GetDailyUsage(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if usage.Calls != 1 || usage.PromptTokens != 100 {
		t.Errorf("Expected recorded metrics for the attempt, got %+v", usage)
	}
}
