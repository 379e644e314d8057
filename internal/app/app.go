package app

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"afyaplate/internal/config"
	"afyaplate/internal/database"
	"afyaplate/internal/extract"
	"afyaplate/internal/food"
	"afyaplate/internal/llm"
	"afyaplate/internal/metrics"
	"afyaplate/internal/plan"
	"afyaplate/internal/price"

	"go.uber.org/zap"
)

// App wires the dataset pipeline, the plan generator and their storage.
// The food index is published through an atomic pointer: extraction
// builds a complete new index before readers ever see it.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB

	store   *food.Store
	catalog *price.Catalog
	plans   *plan.Repository
	metrics *metrics.Store
	gen     llm.TextGenerator

	index atomic.Pointer[food.Index]
}

// New builds the application. The food index loads from the canonical
// dataset if one exists; an empty workspace starts without an index and
// only supports extraction.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		store:   food.NewStore(cfg.Dataset.CSVPath),
		catalog: price.NewCatalog(db),
		plans:   plan.NewRepository(db),
		metrics: metrics.NewStore(db),
	}

	switch cfg.Generation.Backend {
	case "gemini":
		gen, err := llm.NewGeminiClient(ctx, cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to init gemini backend: %w", err)
		}
		a.gen = gen
	default:
		a.gen = llm.NewOllamaClient(cfg, logger)
	}

	if records, version, err := a.store.Load(); err == nil {
		idx, err := food.NewIndex(records, cfg.Match.Threshold)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to index dataset: %w", err)
		}
		a.index.Store(idx)
		logger.Info("dataset loaded",
			zap.String("version", version),
			zap.Int("records", idx.Len()),
		)
	} else {
		logger.Warn("no usable dataset, run extraction first", zap.Error(err))
	}

	return a, nil
}

// Close releases the database and backend resources.
func (a *App) Close() error {
	if c, ok := a.gen.(llm.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("failed to close generation backend", zap.Error(err))
		}
	}
	return a.db.Close()
}

// Index returns the current food index, or nil before first extraction.
func (a *App) Index() *food.Index {
	return a.index.Load()
}

// ExtractionReport summarizes one extraction run.
type ExtractionReport struct {
	Extraction food.Diagnostics
	Pages      int
	PageGaps   []int
	Records    int
	Version    string
}

// RunExtraction runs the full pipeline: PDF → raw rows → normalized
// records → canonical dataset → new index. The dataset on disk and the
// in-memory index change only if every step succeeds.
func (a *App) RunExtraction(ctx context.Context, pdfPath string) (ExtractionReport, error) {
	schema := food.DefaultKFCTSchema()
	extractor := extract.New(extract.Options{
		Columns:      len(schema.Columns),
		HeaderTokens: schema.HeaderTokens(),
	}, a.logger)

	rows, extDiag, err := extractor.ExtractFile(ctx, pdfPath)
	if err != nil {
		return ExtractionReport{}, fmt.Errorf("extraction failed: %w", err)
	}

	normalizer := food.NewNormalizer(schema, food.NormalizerOptions{
		GroupThreshold:    a.cfg.Dataset.GroupThreshold,
		MergeAcrossGroups: a.cfg.Dataset.MergeAcrossGroups,
	}, a.logger)
	records, normDiag := normalizer.Normalize(rows)
	if len(records) == 0 {
		return ExtractionReport{}, fmt.Errorf("extraction produced no usable records (%d rows rejected)", normDiag.RowsRejected)
	}

	// Build the index before touching the dataset file: a dataset that
	// cannot be indexed must not be committed.
	idx, err := food.NewIndex(records, a.cfg.Match.Threshold)
	if err != nil {
		return ExtractionReport{}, fmt.Errorf("extracted dataset is not indexable: %w", err)
	}

	version := time.Now().UTC().Format("20060102T150405Z")
	if err := a.store.Save(records, version); err != nil {
		return ExtractionReport{}, err
	}
	a.index.Store(idx)

	a.logger.Info("dataset replaced",
		zap.String("version", version),
		zap.Int("records", len(records)),
		zap.Int("pages", extDiag.Pages),
	)
	return ExtractionReport{
		Extraction: normDiag,
		Pages:      extDiag.Pages,
		PageGaps:   extDiag.PageGaps,
		Records:    len(records),
		Version:    version,
	}, nil
}

// PlanResult bundles the accepted, costed plan with its diagnostics.
type PlanResult struct {
	ID         string
	Costed     plan.CostedPlan
	Attempts   int
	Unresolved []string
}

// GeneratePlan produces, validates, costs and persists a meal plan for
// the profile. Generation metrics are recorded for every attempt, also
// when the plan ends up rejected.
func (a *App) GeneratePlan(ctx context.Context, profile plan.ClientProfile) (PlanResult, error) {
	idx := a.index.Load()
	if idx == nil {
		return PlanResult{}, fmt.Errorf("no food dataset loaded; run extraction first")
	}

	builder, err := plan.NewRequestBuilder(idx, a.cfg.Plan.RequireSnack)
	if err != nil {
		return PlanResult{}, err
	}
	validator := plan.NewValidator(a.gen, builder, idx, plan.ValidatorOptions{
		MaxRetries:          a.cfg.Generation.MaxRetries,
		CallTimeout:         a.cfg.Generation.Timeout,
		UnresolvedTolerance: a.cfg.Plan.UnresolvedTolerance,
		RequireSnack:        a.cfg.Plan.RequireSnack,
		DailyBudgetSlack:    a.cfg.Plan.DailyBudgetSlack,
	}, a.logger)

	res, runErr := validator.Run(ctx, profile)
	for _, meta := range res.Metas {
		if err := a.metrics.RecordMeta(context.WithoutCancel(ctx), meta); err != nil {
			a.logger.Warn("failed to record generation metrics", zap.Error(err))
		}
	}
	if runErr != nil {
		return PlanResult{}, runErr
	}

	prices, err := a.catalog.GetAll(ctx)
	if err != nil {
		return PlanResult{}, err
	}
	costed := plan.EstimateCost(res.Plan, prices, profile.BudgetKSh)

	id, err := a.plans.Save(ctx, profile.Name, costed)
	if err != nil {
		return PlanResult{}, err
	}

	return PlanResult{
		ID:         id,
		Costed:     costed,
		Attempts:   res.Attempts,
		Unresolved: res.Unresolved,
	}, nil
}

// SearchResult is one scored hit from a food search.
type SearchResult struct {
	Record *food.FoodRecord
	Score  float64
	Lang   food.Lang
}

// SearchOptions narrows a food search. Zero Lang searches both
// languages; zero Group applies no group filter; Max <= 0 falls back to
// the configured candidate limit.
type SearchOptions struct {
	Lang  food.Lang
	Group food.FoodGroup
	Max   int
}

// Search looks a query up: exact first, then prefix, then fuzzy, merged
// best-score-first. An empty query with a group filter lists that group.
func (a *App) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	idx := a.index.Load()
	if idx == nil {
		return nil, fmt.Errorf("no food dataset loaded; run extraction first")
	}
	max := opts.Max
	if max <= 0 {
		max = a.cfg.Match.MaxCandidates
	}

	langs := []food.Lang{food.LangEnglish, food.LangSwahili}
	if opts.Lang != "" {
		langs = []food.Lang{opts.Lang}
	}

	best := make(map[string]SearchResult)
	add := func(rec *food.FoodRecord, score float64, lang food.Lang) {
		if opts.Group != "" && rec.Group != opts.Group {
			return
		}
		if prev, ok := best[rec.Code]; !ok || score > prev.Score {
			best[rec.Code] = SearchResult{Record: rec, Score: score, Lang: lang}
		}
	}

	if query == "" {
		if opts.Group == "" {
			return nil, fmt.Errorf("empty search needs a group filter")
		}
		for _, rec := range idx.FilterByGroup(opts.Group) {
			add(rec, 1, food.LangEnglish)
		}
	} else {
		for _, lang := range langs {
			if rec := idx.LookupExact(query, lang); rec != nil {
				add(rec, 1, lang)
			}
			for _, rec := range idx.LookupPrefix(query, lang, max) {
				name := rec.NameEn
				if lang == food.LangSwahili {
					name = rec.NameSw
				}
				add(rec, food.Similarity(food.Fold(query), food.Fold(name)), lang)
			}
			for _, m := range idx.LookupFuzzy(query, lang, max) {
				add(m.Record, m.Score, lang)
			}
		}
	}

	out := make([]SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.Code < out[j].Record.Code
	})
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// Prices exposes the price catalog.
func (a *App) Prices() *price.Catalog { return a.catalog }

// Plans exposes the stored-plan repository.
func (a *App) Plans() *plan.Repository { return a.plans }

// Metrics exposes the generation metrics store.
func (a *App) Metrics() *metrics.Store { return a.metrics }
