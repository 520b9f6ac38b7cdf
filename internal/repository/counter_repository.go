package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CounterRepository owns the per register, per scope year sequence rows.
type CounterRepository struct {
	db *sqlx.DB
}

// NewCounterRepository constructs the repository.
func NewCounterRepository(db *sqlx.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Increment atomically advances the counter for the scope and returns the new value.
// A missing row is created holding startingNumber. The row stays locked until the
// surrounding transaction ends, so callers must run it through TxManager.WithinTx.
func (r *CounterRepository) Increment(ctx context.Context, configurationID string, scopeYear int, startingNumber int64) (int64, error) {
	const query = `INSERT INTO register_counters (configuration_id, scope_year, last_number, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (configuration_id, scope_year)
	DO UPDATE SET last_number = register_counters.last_number + 1, updated_at = NOW()
	RETURNING last_number`
	var next int64
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &next, query, configurationID, scopeYear, startingNumber); err != nil {
		return 0, fmt.Errorf("increment counter %s/%d: %w", configurationID, scopeYear, err)
	}
	return next, nil
}

// HasCounter reports whether any number was ever issued for the configuration.
func (r *CounterRepository) HasCounter(ctx context.Context, configurationID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM register_counters WHERE configuration_id = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, configurationID); err != nil {
		return false, fmt.Errorf("check counter %s: %w", configurationID, err)
	}
	return exists, nil
}
