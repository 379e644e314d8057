package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Match      MatchConfig      `mapstructure:"match"`
	Generation GenerationConfig `mapstructure:"generation"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Plan       PlanConfig       `mapstructure:"plan"`
}

// DatasetConfig controls extraction and the canonical dataset file.
type DatasetConfig struct {
	PDFPath string `mapstructure:"pdf_path"`
	CSVPath string `mapstructure:"csv_path"`
	// MergeAcrossGroups collapses duplicate food names even when they
	// belong to different food groups. Off by default: the KFCT lists
	// e.g. "flour" entries under more than one group on purpose.
	MergeAcrossGroups bool `mapstructure:"merge_across_groups"`
	// GroupThreshold is the minimum similarity for resolving a free-text
	// food-group label onto the controlled enumeration.
	GroupThreshold float64 `mapstructure:"group_threshold"`
}

// DatabaseConfig locates the SQLite database (prices, plans, metrics).
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MatchConfig controls bilingual fuzzy lookup in the food index.
type MatchConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	MaxCandidates int     `mapstructure:"max_candidates"`
}

// GenerationConfig selects and bounds the text-generation backend.
type GenerationConfig struct {
	Backend    string        `mapstructure:"backend"` // "ollama" or "gemini"
	Timeout    time.Duration `mapstructure:"timeout"` // per generation call
	MaxRetries int           `mapstructure:"max_retries"`
}

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	Host  string `mapstructure:"host"`
	Model string `mapstructure:"model"`
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// PlanConfig holds plan validation policy.
type PlanConfig struct {
	// UnresolvedTolerance is the fraction of plan items allowed to miss
	// the food index before a corrective retry is issued.
	UnresolvedTolerance float64 `mapstructure:"unresolved_tolerance"`
	RequireSnack        bool    `mapstructure:"require_snack"`
	// DailyBudgetSlack multiplies budget/day to form the per-day cost
	// sanity ceiling applied to the model's own estimates.
	DailyBudgetSlack float64 `mapstructure:"daily_budget_slack"`
}

// Load reads configuration from .env / environment variables with the
// AFYAPLATE_ prefix and applies defaults.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment alone may be complete.
	_ = godotenv.Load()

	setDefaults()

	viper.SetEnvPrefix("AFYAPLATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvs()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func bindEnvs() {
	viper.BindEnv("log_level", "AFYAPLATE_LOG_LEVEL")
	viper.BindEnv("dataset.pdf_path", "AFYAPLATE_DATASET_PDF_PATH")
	viper.BindEnv("dataset.csv_path", "AFYAPLATE_DATASET_CSV_PATH")
	viper.BindEnv("dataset.merge_across_groups", "AFYAPLATE_DATASET_MERGE_ACROSS_GROUPS")
	viper.BindEnv("dataset.group_threshold", "AFYAPLATE_DATASET_GROUP_THRESHOLD")
	viper.BindEnv("database.path", "AFYAPLATE_DATABASE_PATH")
	viper.BindEnv("match.threshold", "AFYAPLATE_MATCH_THRESHOLD")
	viper.BindEnv("match.max_candidates", "AFYAPLATE_MATCH_MAX_CANDIDATES")
	viper.BindEnv("generation.backend", "AFYAPLATE_GENERATION_BACKEND")
	viper.BindEnv("generation.timeout", "AFYAPLATE_GENERATION_TIMEOUT")
	viper.BindEnv("generation.max_retries", "AFYAPLATE_GENERATION_MAX_RETRIES")
	viper.BindEnv("ollama.host", "AFYAPLATE_OLLAMA_HOST")
	viper.BindEnv("ollama.model", "AFYAPLATE_OLLAMA_MODEL")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model", "AFYAPLATE_GEMINI_MODEL")
	viper.BindEnv("plan.unresolved_tolerance", "AFYAPLATE_PLAN_UNRESOLVED_TOLERANCE")
	viper.BindEnv("plan.require_snack", "AFYAPLATE_PLAN_REQUIRE_SNACK")
	viper.BindEnv("plan.daily_budget_slack", "AFYAPLATE_PLAN_DAILY_BUDGET_SLACK")
}

func setDefaults() {
	viper.SetDefault("log_level", "info")

	viper.SetDefault("dataset.pdf_path", "data/KFCT_2018.pdf")
	viper.SetDefault("dataset.csv_path", "data/kfct_clean.csv")
	viper.SetDefault("dataset.merge_across_groups", false)
	viper.SetDefault("dataset.group_threshold", 0.80)

	viper.SetDefault("database.path", "data/afyaplate.db")

	// The source tables were matched at rapidfuzz score > 75; the same
	// cut-off carries over on the 0..1 scale.
	viper.SetDefault("match.threshold", 0.75)
	viper.SetDefault("match.max_candidates", 10)

	viper.SetDefault("generation.backend", "ollama")
	viper.SetDefault("generation.timeout", "120s")
	viper.SetDefault("generation.max_retries", 2)

	viper.SetDefault("ollama.host", "http://localhost:11434")
	viper.SetDefault("ollama.model", "llama3.2:3b")

	viper.SetDefault("gemini.model", "gemini-1.5-flash")

	viper.SetDefault("plan.unresolved_tolerance", 0.10)
	viper.SetDefault("plan.require_snack", false)
	viper.SetDefault("plan.daily_budget_slack", 1.5)
}

func validate(cfg *Config) error {
	if cfg.Dataset.CSVPath == "" {
		return fmt.Errorf("dataset csv path is required")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if cfg.Match.Threshold <= 0 || cfg.Match.Threshold > 1 {
		return fmt.Errorf("match threshold must be in (0,1], got %v", cfg.Match.Threshold)
	}
	if cfg.Dataset.GroupThreshold <= 0 || cfg.Dataset.GroupThreshold > 1 {
		return fmt.Errorf("group threshold must be in (0,1], got %v", cfg.Dataset.GroupThreshold)
	}
	if cfg.Plan.UnresolvedTolerance < 0 || cfg.Plan.UnresolvedTolerance > 1 {
		return fmt.Errorf("unresolved tolerance must be in [0,1], got %v", cfg.Plan.UnresolvedTolerance)
	}
	if cfg.Generation.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if cfg.Generation.Timeout <= 0 {
		return fmt.Errorf("generation timeout must be positive")
	}
	switch cfg.Generation.Backend {
	case "ollama":
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return fmt.Errorf("gemini backend selected but no API key set")
		}
	default:
		return fmt.Errorf("unknown generation backend %q", cfg.Generation.Backend)
	}
	return nil
}
