package repositories

import "context"

// StatsRepository reports table sizes for monitoring
type StatsRepository interface {
	// RowCounts returns the number of rows per table
	RowCounts(ctx context.Context) (map[string]int64, error)
}
