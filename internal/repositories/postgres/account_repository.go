package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
)

// PostgresAccountRepository implements AccountRepository using PostgreSQL
type PostgresAccountRepository struct {
	db *sql.DB
}

// NewPostgresAccountRepository creates a new PostgreSQL account repository
func NewPostgresAccountRepository(db *sql.DB) repositories.AccountRepository {
	return &PostgresAccountRepository{db: db}
}

// Upsert returns the account for address, inserting it when absent.
// The insert and the ownership check run in one transaction so two callers
// can never both observe the address as free.
func (r *PostgresAccountRepository) Upsert(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error) {
	address, err := entities.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owner sql.NullInt64
	if entityID != nil {
		owner = sql.NullInt64{Int64: *entityID, Valid: true}
	}

	insert := `
		INSERT INTO account (address, entity_id)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
		RETURNING ` + accountColumns

	var existing *entities.Account
	for attempt := 0; existing == nil; attempt++ {
		if attempt == maxUpsertAttempts {
			return nil, entities.NewConflictError("account", address, "concurrently created and deleted, retry the write")
		}

		account, err := scanAccount(tx.QueryRowContext(ctx, insert, address, owner))
		switch {
		case err == nil:
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return account, nil
		case isForeignKeyViolation(err):
			return nil, entities.NewNotFoundError("entity", *entityID)
		case !isNoRows(err):
			return nil, fmt.Errorf("failed to insert account: %w", err)
		}

		// Address already taken: lock it and decide on ownership
		locked, err := scanAccount(tx.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM account WHERE address = $1 FOR UPDATE`, address))
		if isNoRows(err) {
			// Deleted between the insert and the lock
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		existing = locked
	}

	if entityID == nil || existing.OwnedBy(*entityID) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return existing, nil
	}
	if existing.EntityID != nil && !reassign {
		return nil, entities.NewConflictError("account", address, "owned by entity %d", *existing.EntityID)
	}

	update := `
		UPDATE account SET entity_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRowContext(ctx, update, existing.ID, *entityID))
	if isForeignKeyViolation(err) {
		return nil, entities.NewNotFoundError("entity", *entityID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reassign account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return account, nil
}

// Get retrieves an account by ID
func (r *PostgresAccountRepository) Get(ctx context.Context, id int64) (*entities.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM account WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByAddress retrieves an account by its unique address
func (r *PostgresAccountRepository) GetByAddress(ctx context.Context, address string) (*entities.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM account WHERE address = $1`, address))
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("account", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListByEntity retrieves every account owned by an entity, ordered by ID
func (r *PostgresAccountRepository) ListByEntity(ctx context.Context, entityID int64) ([]*entities.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM account WHERE entity_id = $1 ORDER BY id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*entities.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Delete removes an account together with the projects anchored to its address
func (r *PostgresAccountRepository) Delete(ctx context.Context, address string) (*entities.CascadeSummary, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM account WHERE address = $1 FOR UPDATE`, address).Scan(&id)
	if isNoRows(err) {
		return nil, entities.NewNotFoundError("account", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	summary := &entities.CascadeSummary{}
	steps := []cascadeStep{
		{
			query: `
				DELETE FROM project_attribute
				WHERE project_id IN (SELECT id FROM project WHERE contract_address = $1)`,
			count: &summary.Attributes,
		},
		{query: `DELETE FROM project WHERE contract_address = $1`, count: &summary.Projects},
		{query: `DELETE FROM account WHERE address = $1`, count: &summary.Accounts},
	}
	if err := runCascade(ctx, tx, steps, address); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return summary, nil
}
