package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestSQLState(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		unique     bool
		foreignKey bool
		noRows     bool
	}{
		{name: "pq unique", err: &pq.Error{Code: "23505"}, unique: true},
		{name: "pq foreign key", err: &pq.Error{Code: "23503"}, foreignKey: true},
		{name: "pgx unique wrapped", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), unique: true},
		{name: "pgx foreign key", err: &pgconn.PgError{Code: "23503"}, foreignKey: true},
		{name: "no rows wrapped", err: fmt.Errorf("get: %w", sql.ErrNoRows), noRows: true},
		{name: "other pq error", err: &pq.Error{Code: "42P01"}},
		{name: "plain error", err: fmt.Errorf("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.unique {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.unique)
			}
			if got := isForeignKeyViolation(tt.err); got != tt.foreignKey {
				t.Errorf("isForeignKeyViolation() = %v, want %v", got, tt.foreignKey)
			}
			if got := isNoRows(tt.err); got != tt.noRows {
				t.Errorf("isNoRows() = %v, want %v", got, tt.noRows)
			}
		})
	}
}
