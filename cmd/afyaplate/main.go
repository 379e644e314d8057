package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"afyaplate/internal/app"
	"afyaplate/internal/config"
	"afyaplate/internal/food"
	"afyaplate/internal/logging"
	"afyaplate/internal/plan"

	"go.uber.org/zap"
)

const usageText = `Usage: afyaplate <command> [flags]

Commands:
  extract          Extract the food composition PDF into the canonical dataset
  search           Look a food up in the dataset (English or Swahili)
  plan             Generate a validated, costed meal plan
  import-prices    Replace the price catalog from a JSON file
  usage            Show today's generation token usage
  metrics-cleanup  Delete generation metrics older than the retention window
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	switch os.Args[1] {
	case "extract":
		runExtract(ctx, a, cfg, os.Args[2:])
	case "search":
		runSearch(a, os.Args[2:])
	case "plan":
		runPlan(ctx, a, os.Args[2:])
	case "import-prices":
		runImportPrices(ctx, a, os.Args[2:])
	case "usage":
		runUsage(ctx, a)
	case "metrics-cleanup":
		runMetricsCleanup(ctx, a, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}
}

func runExtract(ctx context.Context, a *app.App, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	pdfPath := fs.String("pdf", cfg.Dataset.PDFPath, "path to the food composition PDF")
	fs.Parse(args)

	report, err := a.RunExtraction(ctx, *pdfPath)
	if err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}

	fmt.Printf("Dataset version %s committed: %d records from %d pages\n",
		report.Version, report.Records, report.Pages)
	if len(report.PageGaps) > 0 {
		fmt.Printf("Pages without parseable tables: %v\n", report.PageGaps)
	}
	d := report.Extraction
	fmt.Printf("Rows in: %d, rejected: %d, duplicates dropped: %d\n",
		d.RowsIn, d.RowsRejected, d.DuplicatesDropped)
	for _, issue := range d.Issues {
		fmt.Printf("  page %d table %d: %s\n", issue.Page, issue.Table, issue.Reason)
	}
}

func runSearch(a *app.App, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	max := fs.Int("max", 0, "maximum number of results (0 = configured default)")
	lang := fs.String("lang", "", "restrict matching to one name language: en or sw")
	group := fs.String("group", "", "restrict results to a food group (prefix is enough, e.g. 'vege')")
	portion := fs.Float64("portion", 100, "portion in grams to scale nutrients to")
	fs.Parse(args)

	query := strings.Join(fs.Args(), " ")
	if query == "" && *group == "" {
		log.Fatal("Usage: afyaplate search [flags] <query>  (or -group <group> to list a group)")
	}
	if *portion <= 0 {
		log.Fatal("The -portion flag needs a positive gram amount")
	}

	opts := app.SearchOptions{Max: *max}
	switch *lang {
	case "":
	case string(food.LangEnglish), string(food.LangSwahili):
		opts.Lang = food.Lang(*lang)
	default:
		log.Fatalf("Unknown language %q, use en or sw", *lang)
	}
	if *group != "" {
		g, ok := food.MatchGroup(*group)
		if !ok {
			log.Fatalf("Unknown or ambiguous food group %q", *group)
		}
		opts.Group = g
	}

	results, err := a.Search(query, opts)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		name := r.Record.NameEn
		if r.Record.NameSw != "" {
			name = fmt.Sprintf("%s / %s", r.Record.NameEn, r.Record.NameSw)
		}
		scaled := r.Record.Scaled(*portion)
		fmt.Printf("%-8s %-50s %-45s %5.2f  %s kcal, %s g protein per %.0fg\n",
			r.Record.Code, name, r.Record.Group, r.Score,
			scaled.Energy.String(), scaled.Protein.String(), *portion)
	}
}

func runPlan(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	name := fs.String("name", "", "client name (required)")
	age := fs.Int("age", 30, "client age in years")
	sex := fs.String("sex", "", "client sex")
	conditions := fs.String("conditions", "general_wellness", "comma-separated health goals")
	kcal := fs.Int("kcal", 2000, "daily calorie target")
	budget := fs.Float64("budget", 0, "total budget in KSh for the whole plan (required)")
	days := fs.Int("days", 3, "plan duration in days (1-7)")
	preferences := fs.String("preferences", "", "free-text preferences")
	exclusions := fs.String("exclude", "", "comma-separated foods to never include")
	fs.Parse(args)

	if *name == "" {
		log.Fatal("The -name flag is required")
	}

	profile := plan.ClientProfile{
		Name:        *name,
		Age:         *age,
		Sex:         *sex,
		KcalTarget:  *kcal,
		BudgetKSh:   *budget,
		Days:        *days,
		Preferences: *preferences,
	}
	for _, c := range strings.Split(*conditions, ",") {
		if c = strings.TrimSpace(c); c != "" {
			profile.Conditions = append(profile.Conditions, plan.Condition(c))
		}
	}
	for _, e := range strings.Split(*exclusions, ",") {
		if e = strings.TrimSpace(e); e != "" {
			profile.Exclusions = append(profile.Exclusions, e)
		}
	}

	result, err := a.GeneratePlan(ctx, profile)
	if err != nil {
		log.Fatalf("Plan generation failed: %v", err)
	}

	out, err := json.MarshalIndent(result.Costed, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render plan: %v", err)
	}
	fmt.Println(string(out))
	fmt.Printf("\nPlan %s stored (%d attempt(s), verdict %s, total KSh %.0f",
		result.ID, result.Attempts, result.Costed.Verdict, result.Costed.Total)
	if result.Costed.Delta > 0 {
		fmt.Printf(", KSh %.0f over budget", result.Costed.Delta)
	}
	fmt.Println(")")
	if len(result.Unresolved) > 0 {
		fmt.Printf("Unresolved items: %s\n", strings.Join(result.Unresolved, ", "))
	}
}

func runImportPrices(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("import-prices", flag.ExitOnError)
	file := fs.String("file", "", "JSON file with price entries (required)")
	fs.Parse(args)
	if *file == "" {
		log.Fatal("The -file flag is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open price file: %v", err)
	}
	defer f.Close()

	n, err := a.Prices().ImportJSON(ctx, f)
	if err != nil {
		log.Fatalf("Price import failed: %v", err)
	}
	fmt.Printf("Imported %d price entries\n", n)
}

func runUsage(ctx context.Context, a *app.App) {
	usage, err := a.Metrics().GetDailyUsage(ctx)
	if err != nil {
		log.Fatalf("Failed to read usage: %v", err)
	}
	fmt.Printf("Today: %d generation call(s), %d prompt tokens, %d completion tokens, %s total latency\n",
		usage.Calls, usage.PromptTokens, usage.CompletionTokens, usage.TotalLatency)
}

func runMetricsCleanup(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
	retention := fs.Duration("retention", 30*24*time.Hour, "keep metrics newer than this")
	fs.Parse(args)

	n, err := a.Metrics().Cleanup(ctx, *retention)
	if err != nil {
		log.Fatalf("Metrics cleanup failed: %v", err)
	}
	fmt.Printf("Removed %d metric row(s)\n", n)
}
