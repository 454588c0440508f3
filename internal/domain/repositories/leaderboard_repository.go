package repositories

import (
	"context"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// LeaderboardRepository defines the interface for persisted leaderboard
// snapshots
type LeaderboardRepository interface {
	// ReplaceWindow atomically replaces every row for a window: the delete
	// and inserts run inside one transaction so concurrent readers never
	// observe a half-written window
	ReplaceWindow(ctx context.Context, window entities.Window, rows []entities.LeaderboardRow) error

	// GetWindow retrieves a page of persisted rows for a window, ordered
	// by the given metric
	GetWindow(ctx context.Context, window entities.Window, metric entities.SortMetric, ascending bool, limit, offset int) ([]entities.LeaderboardRow, error)

	// CountWindow returns the number of persisted rows for a window
	CountWindow(ctx context.Context, window entities.Window) (int64, error)
}
