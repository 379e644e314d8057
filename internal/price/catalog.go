package price

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"afyaplate/internal/database"
)

// Entry is one market price, keyed by food code. Price is per Unit of
// edible food.
type Entry struct {
	Key       string    `json:"food_key"`
	Price     float64   `json:"price"`
	Unit      string    `json:"unit"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PerGram converts the entry's price to a per-gram rate. Weight units
// convert (an empty unit means kg); count units like "bunch" or "piece"
// carry no gram equivalent and report false.
func (e Entry) PerGram() (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(e.Unit)) {
	case "", "kg":
		return e.Price / 1000, true
	case "100g":
		return e.Price / 100, true
	case "g":
		return e.Price, true
	}
	return 0, false
}

// Catalog stores market prices in SQLite.
type Catalog struct {
	db *database.DB
}

// NewCatalog creates a Catalog backed by db.
func NewCatalog(db *database.DB) *Catalog {
	return &Catalog{db: db}
}

// Get returns the price entry for a food key, or nil when none is
// known. A missing price is an expected condition, not an error.
func (c *Catalog) Get(ctx context.Context, key string) (*Entry, error) {
	row := c.db.SQL.QueryRowContext(ctx,
		`SELECT food_key, price, unit, currency, updated_at FROM prices WHERE food_key = ?`, key)

	var e Entry
	err := row.Scan(&e.Key, &e.Price, &e.Unit, &e.Currency, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price for %q: %w", key, err)
	}
	return &e, nil
}

// GetAll returns every price entry keyed by food code.
func (c *Catalog) GetAll(ctx context.Context) (map[string]Entry, error) {
	rows, err := c.db.SQL.QueryContext(ctx,
		`SELECT food_key, price, unit, currency, updated_at FROM prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Price, &e.Unit, &e.Currency, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		out[e.Key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return out, nil
}

// Put inserts or replaces one price entry.
func (c *Catalog) Put(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}

	_, err := c.db.SQL.ExecContext(ctx,
		`INSERT INTO prices (food_key, price, unit, currency, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(food_key) DO UPDATE SET
		   price = excluded.price,
		   unit = excluded.unit,
		   currency = excluded.currency,
		   updated_at = excluded.updated_at`,
		e.Key, e.Price, e.Unit, e.Currency, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store price for %q: %w", e.Key, err)
	}
	return nil
}

// ImportJSON replaces the whole catalog from a JSON array of entries.
// The import is transactional: a bad entry leaves the old catalog in
// place.
func (c *Catalog) ImportJSON(ctx context.Context, r io.Reader) (int, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("failed to decode price file: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("price file contains no entries")
	}

	tx, err := c.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin price import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prices`); err != nil {
		return 0, fmt.Errorf("failed to clear catalog: %w", err)
	}

	now := time.Now().UTC()
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return 0, fmt.Errorf("price entry %d: %w", i, err)
		}
		if e.Unit == "" {
			e.Unit = "kg"
		}
		if e.Currency == "" {
			e.Currency = "KSh"
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prices (food_key, price, unit, currency, updated_at) VALUES (?, ?, ?, ?, ?)`,
			e.Key, e.Price, e.Unit, e.Currency, e.UpdatedAt); err != nil {
			return 0, fmt.Errorf("failed to store price for %q: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit price import: %w", err)
	}
	return len(entries), nil
}

func validateEntry(e Entry) error {
	if e.Key == "" {
		return fmt.Errorf("price entry has no food key")
	}
	if e.Price <= 0 {
		return fmt.Errorf("price for %q must be positive, got %v", e.Key, e.Price)
	}
	return nil
}
