package repositories

import (
	"context"
	"time"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// TradePrice is the most recent observed trade price for an asset at or
// before a block height.
type TradePrice struct {
	AssetAddress string
	BlockNumber  int64
	PriceCoin    float64
	PriceUSD     float64
}

// TraderVolume ranks an address by lifetime traded coin volume
type TraderVolume struct {
	Address    string
	CoinVolume float64
}

// ActivityCounters holds per-address trade activity counts
type ActivityCounters struct {
	Address   string
	BuyCount  int64
	SellCount int64
}

// TradeRepository defines the interface for ledger read operations
type TradeRepository interface {
	// GetByFilter retrieves ledger entries matching the given filter
	GetByFilter(ctx context.Context, filter entities.TradeFilter) ([]entities.Trade, error)

	// GetLatestBefore returns the most recent ledger entry at or before t,
	// across all addresses, or nil when the ledger has no coverage there
	GetLatestBefore(ctx context.Context, t time.Time) (*entities.Trade, error)

	// GetEarliestTradeTime returns the timestamp of the oldest ledger entry
	// for any of the given addresses, or nil when none exist
	GetEarliestTradeTime(ctx context.Context, addresses []string) (*time.Time, error)

	// GetLastTradePrice returns the most recent trade price for an asset at
	// or before maxBlock (and at or after minBlock when minBlock > 0), or
	// nil when the asset has never traded in that range
	GetLastTradePrice(ctx context.Context, assetAddress string, maxBlock, minBlock int64) (*TradePrice, error)

	// GetTopTraders returns addresses ranked by lifetime traded coin volume
	GetTopTraders(ctx context.Context, limit int) ([]TraderVolume, error)

	// GetActivityCounters returns buy/sell counts for all given addresses
	// in one query
	GetActivityCounters(ctx context.Context, addresses []string) (map[string]ActivityCounters, error)

	// GetCreatedCounts returns per-address counts of assets created, for
	// all given addresses in one query
	GetCreatedCounts(ctx context.Context, addresses []string) (map[string]int64, error)

	// GetHoldingsCounts returns per-address counts of assets with a net
	// positive reconstructed balance, for all given addresses in one query
	GetHoldingsCounts(ctx context.Context, addresses []string) (map[string]int64, error)
}
