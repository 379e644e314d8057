package metrics

import (
	"context"
	"fmt"
	"time"

	"afyaplate/internal/database"
	"afyaplate/internal/shared"
)

// UsageSummary aggregates generation calls over a period.
type UsageSummary struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalLatency     time.Duration
}

// Store records per-call generation metrics in SQLite.
type Store struct {
	db *database.DB
}

// NewStore creates a metrics Store over db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record inserts one generation call.
func (s *Store) Record(ctx context.Context, stage, model string, promptTokens, completionTokens int, latency time.Duration) error {
	_, err := s.db.SQL.ExecContext(ctx,
		`INSERT INTO generation_metrics (stage, model, prompt_tokens, completion_tokens, latency_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		stage, model, promptTokens, completionTokens, latency.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record metrics for stage %s: %w", stage, err)
	}
	return nil
}

// RecordMeta inserts the metadata of one generation attempt.
func (s *Store) RecordMeta(ctx context.Context, meta shared.CallMeta) error {
	return s.Record(ctx, meta.Stage, meta.Usage.Model,
		meta.Usage.PromptTokens, meta.Usage.CompletionTokens, meta.Latency)
}

// GetDailyUsage summarizes calls made since the start of the current
// UTC day.
func (s *Store) GetDailyUsage(ctx context.Context) (UsageSummary, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	row := s.db.SQL.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(latency_ms), 0)
		 FROM generation_metrics WHERE timestamp >= ?`, dayStart)

	var (
		summary   UsageSummary
		latencyMS int64
	)
	if err := row.Scan(&summary.Calls, &summary.PromptTokens, &summary.CompletionTokens, &latencyMS); err != nil {
		return UsageSummary{}, fmt.Errorf("failed to summarize daily usage: %w", err)
	}
	summary.TotalLatency = time.Duration(latencyMS) * time.Millisecond
	return summary, nil
}

// Cleanup deletes metric rows older than the retention window and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.SQL.ExecContext(ctx,
		`DELETE FROM generation_metrics WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up metrics: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean up metrics: %w", err)
	}
	return n, nil
}
