package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asakaida/warehouse/internal/entities"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const (
	entityColumns    = `id, name, created_at, updated_at`
	accountColumns   = `id, address, entity_id, created_at, updated_at`
	projectColumns   = `id, name, token, category, contract_address, created_at, updated_at`
	attributeColumns = `id, project_id, key, value, value_type`
)

func scanEntity(s rowScanner) (*entities.Entity, error) {
	e := &entities.Entity{}
	if err := s.Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

func scanAccount(s rowScanner) (*entities.Account, error) {
	a := &entities.Account{}
	var entityID sql.NullInt64
	if err := s.Scan(&a.ID, &a.Address, &entityID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if entityID.Valid {
		id := entityID.Int64
		a.EntityID = &id
	}
	return a, nil
}

func scanProject(s rowScanner) (*entities.Project, error) {
	p := &entities.Project{}
	if err := s.Scan(&p.ID, &p.Name, &p.Token, &p.Category, &p.ContractAddress, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func scanAttribute(s rowScanner) (*entities.ProjectAttribute, error) {
	a := &entities.ProjectAttribute{}
	if err := s.Scan(&a.ID, &a.ProjectID, &a.Key, &a.Value, &a.ValueType); err != nil {
		return nil, err
	}
	return a, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryAttributes(ctx context.Context, q queryer, query string, args ...interface{}) ([]*entities.ProjectAttribute, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}
	defer rows.Close()

	var attrs []*entities.ProjectAttribute
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attributes: %w", err)
	}

	return attrs, nil
}

// execCount runs a statement inside tx and returns the number of affected rows
func execCount(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// cascadeStep is one level of an explicit, bottom-up cascade
type cascadeStep struct {
	query string
	count *int64
}

// runCascade deletes dependents leaf-first so every level is counted exactly.
// The parent row must already be locked by the caller.
func runCascade(ctx context.Context, tx *sql.Tx, steps []cascadeStep, arg interface{}) error {
	for _, step := range steps {
		n, err := execCount(ctx, tx, step.query, arg)
		if err != nil {
			return fmt.Errorf("failed to cascade delete: %w", err)
		}
		if step.count != nil {
			*step.count = n
		}
	}
	return nil
}
