package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
)

// PostgresEntityRepository implements EntityRepository using PostgreSQL
type PostgresEntityRepository struct {
	db *sql.DB
}

// NewPostgresEntityRepository creates a new PostgreSQL entity repository
func NewPostgresEntityRepository(db *sql.DB) repositories.EntityRepository {
	return &PostgresEntityRepository{db: db}
}

// Upsert returns the entity named name, inserting it on first reference.
// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
func (r *PostgresEntityRepository) Upsert(ctx context.Context, name string) (*entities.Entity, error) {
	name, err := entities.NormalizeName("name", name)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO entity (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING ` + entityColumns
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert entity: %w", err)
	}
	return e, nil
}

// Get retrieves an entity by ID
func (r *PostgresEntityRepository) Get(ctx context.Context, id int64) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entity WHERE id = $1`
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("entity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// GetByName retrieves an entity by its unique name
func (r *PostgresEntityRepository) GetByName(ctx context.Context, name string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entity WHERE name = $1`
	e, err := scanEntity(r.db.QueryRowContext(ctx, query, name))
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("entity", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// Delete removes an entity with its accounts, their projects and attributes
func (r *PostgresEntityRepository) Delete(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Locking the entity blocks new accounts from referencing it until commit
	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM entity WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("entity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock entity: %w", err)
	}

	summary := &entities.CascadeSummary{}
	steps := []cascadeStep{
		{
			query: `
				DELETE FROM project_attribute
				WHERE project_id IN (
					SELECT p.id FROM project p
					JOIN account a ON a.address = p.contract_address
					WHERE a.entity_id = $1
				)`,
			count: &summary.Attributes,
		},
		{
			query: `
				DELETE FROM project
				WHERE contract_address IN (SELECT address FROM account WHERE entity_id = $1)`,
			count: &summary.Projects,
		},
		{query: `DELETE FROM account WHERE entity_id = $1`, count: &summary.Accounts},
		{query: `DELETE FROM entity WHERE id = $1`},
	}
	if err := runCascade(ctx, tx, steps, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return summary, nil
}
