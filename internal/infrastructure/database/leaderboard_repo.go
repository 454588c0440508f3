package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

// Ensure LeaderboardRepo implements LeaderboardRepository
var _ repositories.LeaderboardRepository = (*LeaderboardRepo)(nil)

// LeaderboardRepo implements LeaderboardRepository using PostgreSQL
type LeaderboardRepo struct {
	db *sqlx.DB
}

// NewLeaderboardRepo creates a new leaderboard repository
func NewLeaderboardRepo(db *sqlx.DB) *LeaderboardRepo {
	return &LeaderboardRepo{db: db}
}

// ReplaceWindow atomically replaces every row for a window
func (r *LeaderboardRepo) ReplaceWindow(ctx context.Context, window entities.Window, rows []entities.LeaderboardRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard_rows WHERE "window" = $1`, window); err != nil {
		return fmt.Errorf("failed to delete window rows: %w", err)
	}

	query := `
		INSERT INTO leaderboard_rows ("window", rank, address, aum, pnl, roi_pct,
									  max_drawdown_pct, buy_count, sell_count,
									  tokens_created, holdings_count, value_series, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Window,
			row.Rank,
			row.Address,
			row.AUM,
			row.Pnl,
			row.RoiPct,
			row.MaxDrawdownPct,
			row.BuyCount,
			row.SellCount,
			row.TokensCreated,
			row.HoldingsCount,
			row.ValueSeries,
			row.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert leaderboard row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// sortColumns maps each metric to its column; built once so GetWindow
// never interpolates caller input into SQL.
var sortColumns = map[entities.SortMetric]string{
	entities.MetricPnl: "pnl",
	entities.MetricRoi: "roi_pct",
	entities.MetricMdd: "max_drawdown_pct",
	entities.MetricAum: "aum",
}

// GetWindow retrieves a page of persisted rows for a window
func (r *LeaderboardRepo) GetWindow(ctx context.Context, window entities.Window, metric entities.SortMetric, ascending bool, limit, offset int) ([]entities.LeaderboardRow, error) {
	column, ok := sortColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown sort metric %q", metric)
	}

	direction := "DESC"
	if ascending {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT "window", rank, address, aum, pnl, roi_pct, max_drawdown_pct,
			   buy_count, sell_count, tokens_created, holdings_count,
			   value_series, computed_at
		FROM leaderboard_rows
		WHERE "window" = $1
		ORDER BY %s %s, rank ASC
		LIMIT $2 OFFSET $3
	`, column, direction)

	var rows []entities.LeaderboardRow
	if err := r.db.SelectContext(ctx, &rows, query, window, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get leaderboard rows: %w", err)
	}

	return rows, nil
}

// CountWindow returns the number of persisted rows for a window
func (r *LeaderboardRepo) CountWindow(ctx context.Context, window entities.Window) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM leaderboard_rows WHERE "window" = $1`

	if err := r.db.GetContext(ctx, &count, query, window); err != nil {
		return 0, fmt.Errorf("failed to count leaderboard rows: %w", err)
	}

	return count, nil
}
