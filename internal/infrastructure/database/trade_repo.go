package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

// Ensure TradeRepo implements TradeRepository
var _ repositories.TradeRepository = (*TradeRepo)(nil)

// TradeRepo implements TradeRepository using PostgreSQL
type TradeRepo struct {
	db *sqlx.DB
}

// NewTradeRepo creates a new trade repository
func NewTradeRepo(db *sqlx.DB) *TradeRepo {
	return &TradeRepo{db: db}
}

const tradeColumns = `id, tx_hash, address, asset_address, action, block_number,
	   block_timestamp, unit_volume::TEXT AS unit_volume, coin_amount::TEXT AS coin_amount,
	   price_coin, price_usd, supply::TEXT AS supply, decimals, verified, created_at`

// GetByFilter retrieves ledger entries matching the given filter
func (r *TradeRepo) GetByFilter(ctx context.Context, filter entities.TradeFilter) ([]entities.Trade, error) {
	query, args := r.buildFilterQuery(filter)

	var trades []entities.Trade
	if err := r.db.SelectContext(ctx, &trades, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}

	return trades, nil
}

// buildFilterQuery builds the SQL query for filtering trades
func (r *TradeRepo) buildFilterQuery(filter entities.TradeFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.Address != nil {
		conditions = append(conditions, fmt.Sprintf("address = $%d", argIdx))
		args = append(args, *filter.Address)
		argIdx++
	}

	if filter.AssetAddress != nil {
		conditions = append(conditions, fmt.Sprintf("asset_address = $%d", argIdx))
		args = append(args, *filter.AssetAddress)
		argIdx++
	}

	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, *filter.Action)
		argIdx++
	}

	if filter.FromBlock != nil {
		conditions = append(conditions, fmt.Sprintf("block_number >= $%d", argIdx))
		args = append(args, *filter.FromBlock)
		argIdx++
	}

	if filter.ToBlock != nil {
		conditions = append(conditions, fmt.Sprintf("block_number <= $%d", argIdx))
		args = append(args, *filter.ToBlock)
		argIdx++
	}

	if filter.FromTime != nil {
		conditions = append(conditions, fmt.Sprintf("block_timestamp >= $%d", argIdx))
		args = append(args, *filter.FromTime)
		argIdx++
	}

	if filter.ToTime != nil {
		conditions = append(conditions, fmt.Sprintf("block_timestamp <= $%d", argIdx))
		args = append(args, *filter.ToTime)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM trades
		%s
		ORDER BY block_timestamp %s, block_number %s, id %s
	`, tradeColumns, whereClause, order, order, order)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	return query, args
}

// GetLatestBefore returns the most recent ledger entry at or before t
func (r *TradeRepo) GetLatestBefore(ctx context.Context, t time.Time) (*entities.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM trades
		WHERE block_timestamp <= $1
		ORDER BY block_timestamp DESC, block_number DESC
		LIMIT 1
	`, tradeColumns)

	var trade entities.Trade
	if err := r.db.GetContext(ctx, &trade, query, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest trade before %s: %w", t, err)
	}

	return &trade, nil
}

// GetEarliestTradeTime returns the oldest entry timestamp for the addresses
func (r *TradeRepo) GetEarliestTradeTime(ctx context.Context, addresses []string) (*time.Time, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `SELECT MIN(block_timestamp) FROM trades WHERE address = ANY($1)`

	var earliest sql.NullTime
	if err := r.db.GetContext(ctx, &earliest, query, pq.Array(addresses)); err != nil {
		return nil, fmt.Errorf("failed to get earliest trade time: %w", err)
	}

	if !earliest.Valid {
		return nil, nil
	}
	t := earliest.Time
	return &t, nil
}

// priceRow holds the result of the last-trade-price query
type priceRow struct {
	BlockNumber int64   `db:"block_number"`
	PriceCoin   float64 `db:"price_coin"`
	PriceUSD    float64 `db:"price_usd"`
}

// GetLastTradePrice returns the most recent trade price for an asset in
// the given height range
func (r *TradeRepo) GetLastTradePrice(ctx context.Context, assetAddress string, maxBlock, minBlock int64) (*repositories.TradePrice, error) {
	query := `
		SELECT block_number, price_coin, price_usd
		FROM trades
		WHERE asset_address = $1 AND block_number <= $2
	`
	args := []interface{}{assetAddress, maxBlock}

	if minBlock > 0 {
		query += " AND block_number >= $3"
		args = append(args, minBlock)
	}

	query += " ORDER BY block_number DESC, block_timestamp DESC LIMIT 1"

	var row priceRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last trade price: %w", err)
	}

	return &repositories.TradePrice{
		AssetAddress: assetAddress,
		BlockNumber:  row.BlockNumber,
		PriceCoin:    row.PriceCoin,
		PriceUSD:     row.PriceUSD,
	}, nil
}

// traderVolumeRow holds one row of the top-traders query
type traderVolumeRow struct {
	Address    string  `db:"address"`
	CoinVolume float64 `db:"coin_volume"`
}

// GetTopTraders returns addresses ranked by lifetime traded coin volume
func (r *TradeRepo) GetTopTraders(ctx context.Context, limit int) ([]repositories.TraderVolume, error) {
	query := `
		SELECT address, SUM(coin_amount) / 1e18 AS coin_volume
		FROM trades
		GROUP BY address
		ORDER BY coin_volume DESC
		LIMIT $1
	`

	var rows []traderVolumeRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get top traders: %w", err)
	}

	traders := make([]repositories.TraderVolume, len(rows))
	for i, row := range rows {
		traders[i] = repositories.TraderVolume{
			Address:    row.Address,
			CoinVolume: row.CoinVolume,
		}
	}

	return traders, nil
}

// activityRow holds one row of the activity-counter query
type activityRow struct {
	Address   string `db:"address"`
	BuyCount  int64  `db:"buy_count"`
	SellCount int64  `db:"sell_count"`
}

// GetActivityCounters returns buy/sell counts for all given addresses
func (r *TradeRepo) GetActivityCounters(ctx context.Context, addresses []string) (map[string]repositories.ActivityCounters, error) {
	result := make(map[string]repositories.ActivityCounters, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	query := `
		SELECT address,
			   COUNT(*) FILTER (WHERE action = 'buy') AS buy_count,
			   COUNT(*) FILTER (WHERE action = 'sell') AS sell_count
		FROM trades
		WHERE address = ANY($1)
		GROUP BY address
	`

	var rows []activityRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(addresses)); err != nil {
		return nil, fmt.Errorf("failed to get activity counters: %w", err)
	}

	for _, row := range rows {
		result[row.Address] = repositories.ActivityCounters{
			Address:   row.Address,
			BuyCount:  row.BuyCount,
			SellCount: row.SellCount,
		}
	}

	return result, nil
}

// countRow holds one row of a per-address count query
type countRow struct {
	Address string `db:"address"`
	Count   int64  `db:"count"`
}

// GetCreatedCounts returns per-address counts of assets created
func (r *TradeRepo) GetCreatedCounts(ctx context.Context, addresses []string) (map[string]int64, error) {
	result := make(map[string]int64, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	query := `
		SELECT address, COUNT(*) AS count
		FROM trades
		WHERE action = 'create' AND address = ANY($1)
		GROUP BY address
	`

	var rows []countRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(addresses)); err != nil {
		return nil, fmt.Errorf("failed to get created counts: %w", err)
	}

	for _, row := range rows {
		result[row.Address] = row.Count
	}

	return result, nil
}

// GetHoldingsCounts returns per-address counts of assets held with a net
// positive balance
func (r *TradeRepo) GetHoldingsCounts(ctx context.Context, addresses []string) (map[string]int64, error) {
	result := make(map[string]int64, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	query := `
		SELECT address, COUNT(*) AS count
		FROM (
			SELECT address, asset_address,
				   SUM(CASE WHEN action = 'sell' THEN -unit_volume ELSE unit_volume END) AS net
			FROM trades
			WHERE address = ANY($1)
			GROUP BY address, asset_address
		) positions
		WHERE net > 0
		GROUP BY address
	`

	var rows []countRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(addresses)); err != nil {
		return nil, fmt.Errorf("failed to get holdings counts: %w", err)
	}

	for _, row := range rows {
		result[row.Address] = row.Count
	}

	return result, nil
}
