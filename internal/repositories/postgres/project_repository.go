package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
)

const (
	defaultProjectPage = 100
	maxProjectPage     = 1000
)

// PostgresProjectRepository implements ProjectRepository using PostgreSQL
type PostgresProjectRepository struct {
	db *sql.DB
}

// NewPostgresProjectRepository creates a new PostgreSQL project repository
func NewPostgresProjectRepository(db *sql.DB) repositories.ProjectRepository {
	return &PostgresProjectRepository{db: db}
}

// Create inserts a project and its initial attributes in a single transaction
func (r *PostgresProjectRepository) Create(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.Project, error) {
	p := *project
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, attr := range attrs {
		if err := entities.ValidateAttributeKey(attr.Key); err != nil {
			return nil, err
		}
		if attr.Value.IsZero() {
			return nil, entities.NewValidationError("value", "missing kind for %s", attr.Key)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO project (name, token, category, contract_address)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + projectColumns
	created, err := scanProject(tx.QueryRowContext(ctx, query, p.Name, p.Token, p.Category, p.ContractAddress))
	if isForeignKeyViolation(err) {
		return nil, entities.NewNotFoundError("account", p.ContractAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	for _, attr := range attrs {
		if _, err := upsertAttribute(ctx, tx, created.ID, attr.Key, attr.Value, false); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}

// Get retrieves a project by ID
func (r *PostgresProjectRepository) Get(ctx context.Context, id int64) (*entities.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM project WHERE id = $1`, id)
}

// GetWithAttributes reads the project and its attributes inside one
// read-only REPEATABLE READ transaction
func (r *PostgresProjectRepository) GetWithAttributes(ctx context.Context, id int64) (*entities.Project, []*entities.ProjectAttribute, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	project, err := scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM project WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil, entities.NewNotFoundError("project", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get project: %w", err)
	}

	attrs, err := queryAttributes(ctx, tx, `
		SELECT `+attributeColumns+`
		FROM project_attribute
		WHERE project_id = $1
		ORDER BY key
	`, id)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return project, attrs, nil
}

// GetByName retrieves the oldest project with the given name
func (r *PostgresProjectRepository) GetByName(ctx context.Context, name string) (*entities.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM project WHERE name = $1 ORDER BY id LIMIT 1`, name)
}

// GetByAddress retrieves the oldest project anchored to a contract address
func (r *PostgresProjectRepository) GetByAddress(ctx context.Context, address string) (*entities.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM project WHERE contract_address = $1 ORDER BY id LIMIT 1`, address)
}

func (r *PostgresProjectRepository) getOne(ctx context.Context, query string, arg interface{}) (*entities.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, query, arg))
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("project", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// List retrieves projects ordered by ID
func (r *PostgresProjectRepository) List(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM project WHERE id > $1`
	var afterID int64
	limit := defaultProjectPage
	category := ""
	if filter != nil {
		afterID = filter.AfterID
		category = filter.Category
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}
	if limit > maxProjectPage {
		limit = maxProjectPage
	}

	args := []interface{}{afterID}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*entities.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// Update writes the fixed columns of an existing project and refreshes updated_at
func (r *PostgresProjectRepository) Update(ctx context.Context, project *entities.Project) (*entities.Project, error) {
	p := *project
	if err := p.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE project
		SET name = $2, token = $3, category = $4, contract_address = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + projectColumns
	updated, err := scanProject(r.db.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Token, p.Category, p.ContractAddress))
	switch {
	case isNoRows(err):
		return nil, entities.NewNotFoundError("project", p.ID)
	case isForeignKeyViolation(err):
		return nil, entities.NewNotFoundError("account", p.ContractAddress)
	case err != nil:
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return updated, nil
}

// Delete removes a project and its attributes
func (r *PostgresProjectRepository) Delete(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM project WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock project: %w", err)
	}

	summary := &entities.CascadeSummary{}
	steps := []cascadeStep{
		{query: `DELETE FROM project_attribute WHERE project_id = $1`, count: &summary.Attributes},
		{query: `DELETE FROM project WHERE id = $1`, count: &summary.Projects},
	}
	if err := runCascade(ctx, tx, steps, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return summary, nil
}
