package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
)

// PostgresAttributeRepository implements AttributeRepository using PostgreSQL
type PostgresAttributeRepository struct {
	db *sql.DB
}

// NewPostgresAttributeRepository creates a new PostgreSQL attribute repository
func NewPostgresAttributeRepository(db *sql.DB) repositories.AttributeRepository {
	return &PostgresAttributeRepository{db: db}
}

// Upsert creates or replaces the (projectID, key) tuple
func (r *PostgresAttributeRepository) Upsert(ctx context.Context, projectID int64, key string, value entities.StoredValue, allowKindChange bool) (*repositories.UpsertResult, error) {
	if err := entities.ValidateAttributeKey(key); err != nil {
		return nil, err
	}
	if value.IsZero() {
		return nil, entities.NewValidationError("value", "missing kind")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := upsertAttribute(ctx, tx, projectID, key, value, allowKindChange)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// upsertAttribute writes one tuple inside tx. The existing row is locked
// first so the kind check, the reported previous kind and the write all see
// the same value_type. When the lock finds nothing the row is inserted with
// ON CONFLICT DO NOTHING; losing that race to a concurrent first insert sends
// the write back through the locked path.
func upsertAttribute(ctx context.Context, tx *sql.Tx, projectID int64, key string, value entities.StoredValue, allowKindChange bool) (*repositories.UpsertResult, error) {
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		var previous string
		err := tx.QueryRowContext(ctx, `
			SELECT value_type FROM project_attribute
			WHERE project_id = $1 AND key = $2
			FOR UPDATE`, projectID, key).Scan(&previous)
		switch {
		case err == nil:
			return updateLocked(ctx, tx, projectID, key, value, entities.ValueKind(previous), allowKindChange)
		case !isNoRows(err):
			return nil, fmt.Errorf("failed to lock attribute: %w", err)
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO project_attribute (project_id, key, value, value_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project_id, key) DO NOTHING
			RETURNING id
		`, projectID, key, value.Text(), string(value.Kind())).Scan(&id)
		switch {
		case err == nil:
			return &repositories.UpsertResult{Inserted: true}, nil
		case isNoRows(err):
			// A concurrent first insert committed; lock it and retry
			continue
		case isForeignKeyViolation(err):
			return nil, entities.NewNotFoundError("project", projectID)
		default:
			return nil, fmt.Errorf("failed to insert attribute: %w", err)
		}
	}
	return nil, entities.NewConflictError("attribute", attributeRef(projectID, key),
		"concurrently inserted and removed, retry the write")
}

const maxUpsertAttempts = 3

// updateLocked overwrites a row the caller holds FOR UPDATE
func updateLocked(ctx context.Context, tx *sql.Tx, projectID int64, key string, value entities.StoredValue, previous entities.ValueKind, allowKindChange bool) (*repositories.UpsertResult, error) {
	if previous != value.Kind() && !allowKindChange {
		return nil, kindConflict(projectID, key, string(previous), value.Kind())
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE project_attribute SET value = $3, value_type = $4
		WHERE project_id = $1 AND key = $2
	`, projectID, key, value.Text(), string(value.Kind()))
	if err != nil {
		return nil, fmt.Errorf("failed to update attribute: %w", err)
	}
	return &repositories.UpsertResult{PreviousKind: previous}, nil
}

func kindConflict(projectID int64, key, stored string, next entities.ValueKind) error {
	return entities.NewConflictError("attribute", attributeRef(projectID, key),
		"stored as %s, refusing %s without kind change", stored, next)
}

func attributeRef(projectID int64, key string) string {
	return fmt.Sprintf("%d.%s", projectID, key)
}

// Get retrieves the raw row for (projectID, key)
func (r *PostgresAttributeRepository) Get(ctx context.Context, projectID int64, key string) (*entities.ProjectAttribute, error) {
	query := `
		SELECT ` + attributeColumns + `
		FROM project_attribute
		WHERE project_id = $1 AND key = $2
	`
	attr, err := scanAttribute(r.db.QueryRowContext(ctx, query, projectID, key))
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("attribute", attributeRef(projectID, key))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute: %w", err)
	}
	return attr, nil
}

// List retrieves every raw row of a project ordered by key
func (r *PostgresAttributeRepository) List(ctx context.Context, projectID int64) ([]*entities.ProjectAttribute, error) {
	query := `
		SELECT ` + attributeColumns + `
		FROM project_attribute
		WHERE project_id = $1
		ORDER BY key
	`
	return r.query(ctx, query, projectID)
}

// Delete removes (projectID, key) and reports whether a row existed
func (r *PostgresAttributeRepository) Delete(ctx context.Context, projectID int64, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM project_attribute WHERE project_id = $1 AND key = $2`, projectID, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete attribute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Scan pages through all rows ordered by ID
func (r *PostgresAttributeRepository) Scan(ctx context.Context, afterID int64, limit int) ([]*entities.ProjectAttribute, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT ` + attributeColumns + `
		FROM project_attribute
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	return r.query(ctx, query, afterID, limit)
}

func (r *PostgresAttributeRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entities.ProjectAttribute, error) {
	return queryAttributes(ctx, r.db, query, args...)
}
