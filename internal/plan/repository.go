package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"afyaplate/internal/database"

	"github.com/google/uuid"
)

// StoredPlan is a persisted costed plan.
type StoredPlan struct {
	ID         string
	ClientName string
	Verdict    Verdict
	TotalCost  float64
	PlanData   []byte // Raw JSON of the CostedPlan
	CreatedAt  time.Time
}

// Repository is a database-backed store for accepted plans.
type Repository struct {
	db *database.DB
}

// NewRepository creates a Repository over db.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Save persists a costed plan and returns its identifier.
func (r *Repository) Save(ctx context.Context, clientName string, costed CostedPlan) (string, error) {
	data, err := json.Marshal(costed)
	if err != nil {
		return "", fmt.Errorf("failed to encode plan: %w", err)
	}

	id := uuid.New().String()
	_, err = r.db.SQL.ExecContext(ctx,
		`INSERT INTO meal_plans (id, client_name, verdict, total_cost, plan_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, clientName, string(costed.Verdict), costed.Total, data, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to store plan for %s: %w", clientName, err)
	}
	return id, nil
}

// Get retrieves one stored plan by identifier.
func (r *Repository) Get(ctx context.Context, id string) (*StoredPlan, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT id, client_name, verdict, total_cost, plan_data, created_at
		 FROM meal_plans WHERE id = ?`, id)

	var sp StoredPlan
	if err := row.Scan(&sp.ID, &sp.ClientName, &sp.Verdict, &sp.TotalCost, &sp.PlanData, &sp.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}
	return &sp, nil
}

// ListRecentByClient retrieves the N most recent plans for a client.
func (r *Repository) ListRecentByClient(ctx context.Context, clientName string, limit int) ([]StoredPlan, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT id, client_name, verdict, total_cost, plan_data, created_at
		 FROM meal_plans WHERE client_name = ?
		 ORDER BY created_at DESC LIMIT ?`, clientName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans for %s: %w", clientName, err)
	}
	defer rows.Close()

	var plans []StoredPlan
	for rows.Next() {
		var sp StoredPlan
		if err := rows.Scan(&sp.ID, &sp.ClientName, &sp.Verdict, &sp.TotalCost, &sp.PlanData, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list plans for %s: %w", clientName, err)
	}
	return plans, nil
}
