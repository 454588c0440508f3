package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockTradeRepository is a mock implementation of TradeRepository backed
// by an in-memory slice. Function hooks override individual methods.
type MockTradeRepository struct {
	mu     sync.RWMutex
	trades []entities.Trade

	// Function hooks for custom behavior
	GetByFilterFunc          func(ctx context.Context, filter entities.TradeFilter) ([]entities.Trade, error)
	GetLatestBeforeFunc      func(ctx context.Context, t time.Time) (*entities.Trade, error)
	GetEarliestTradeTimeFunc func(ctx context.Context, addresses []string) (*time.Time, error)
	GetLastTradePriceFunc    func(ctx context.Context, assetAddress string, maxBlock, minBlock int64) (*repositories.TradePrice, error)
	GetTopTradersFunc        func(ctx context.Context, limit int) ([]repositories.TraderVolume, error)
	GetActivityCountersFunc  func(ctx context.Context, addresses []string) (map[string]repositories.ActivityCounters, error)
	GetCreatedCountsFunc     func(ctx context.Context, addresses []string) (map[string]int64, error)
	GetHoldingsCountsFunc    func(ctx context.Context, addresses []string) (map[string]int64, error)

	// Call tracking
	Calls []MockCall
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{
		trades: make([]entities.Trade, 0),
		Calls:  make([]MockCall, 0),
	}
}

// AddTrades seeds the in-memory ledger
func (m *MockTradeRepository) AddTrades(trades ...entities.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trades...)
}

func (m *MockTradeRepository) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *MockTradeRepository) GetByFilter(ctx context.Context, filter entities.TradeFilter) ([]entities.Trade, error) {
	m.record("GetByFilter", filter)

	if m.GetByFilterFunc != nil {
		return m.GetByFilterFunc(ctx, filter)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Simple filtering implementation
	result := make([]entities.Trade, 0)
	for _, t := range m.trades {
		if filter.Address != nil && t.Address != *filter.Address {
			continue
		}
		if filter.AssetAddress != nil && t.AssetAddress != *filter.AssetAddress {
			continue
		}
		if filter.Action != nil && t.Action != *filter.Action {
			continue
		}
		if filter.FromBlock != nil && t.BlockNumber < *filter.FromBlock {
			continue
		}
		if filter.ToBlock != nil && t.BlockNumber > *filter.ToBlock {
			continue
		}
		if filter.FromTime != nil && t.BlockTimestamp.Before(*filter.FromTime) {
			continue
		}
		if filter.ToTime != nil && t.BlockTimestamp.After(*filter.ToTime) {
			continue
		}
		result = append(result, t)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if filter.Ascending {
			return result[i].BlockTimestamp.Before(result[j].BlockTimestamp)
		}
		return result[i].BlockTimestamp.After(result[j].BlockTimestamp)
	})

	// Apply pagination
	start := filter.Offset
	if start > len(result) {
		return []entities.Trade{}, nil
	}
	end := len(result)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return result[start:end], nil
}

func (m *MockTradeRepository) GetLatestBefore(ctx context.Context, at time.Time) (*entities.Trade, error) {
	m.record("GetLatestBefore", at)

	if m.GetLatestBeforeFunc != nil {
		return m.GetLatestBeforeFunc(ctx, at)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *entities.Trade
	for i := range m.trades {
		t := &m.trades[i]
		if t.BlockTimestamp.After(at) {
			continue
		}
		if latest == nil || t.BlockTimestamp.After(latest.BlockTimestamp) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MockTradeRepository) GetEarliestTradeTime(ctx context.Context, addresses []string) (*time.Time, error) {
	m.record("GetEarliestTradeTime", addresses)

	if m.GetEarliestTradeTimeFunc != nil {
		return m.GetEarliestTradeTimeFunc(ctx, addresses)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		members[a] = true
	}

	var earliest *time.Time
	for i := range m.trades {
		t := &m.trades[i]
		if !members[t.Address] {
			continue
		}
		if earliest == nil || t.BlockTimestamp.Before(*earliest) {
			ts := t.BlockTimestamp
			earliest = &ts
		}
	}
	return earliest, nil
}

func (m *MockTradeRepository) GetLastTradePrice(ctx context.Context, assetAddress string, maxBlock, minBlock int64) (*repositories.TradePrice, error) {
	m.record("GetLastTradePrice", assetAddress, maxBlock, minBlock)

	if m.GetLastTradePriceFunc != nil {
		return m.GetLastTradePriceFunc(ctx, assetAddress, maxBlock, minBlock)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *entities.Trade
	for i := range m.trades {
		t := &m.trades[i]
		if t.AssetAddress != assetAddress || t.BlockNumber > maxBlock {
			continue
		}
		if minBlock > 0 && t.BlockNumber < minBlock {
			continue
		}
		if last == nil || t.BlockNumber > last.BlockNumber {
			last = t
		}
	}
	if last == nil {
		return nil, nil
	}
	return &repositories.TradePrice{
		AssetAddress: last.AssetAddress,
		BlockNumber:  last.BlockNumber,
		PriceCoin:    last.PriceCoin,
		PriceUSD:     last.PriceUSD,
	}, nil
}

func (m *MockTradeRepository) GetTopTraders(ctx context.Context, limit int) ([]repositories.TraderVolume, error) {
	m.record("GetTopTraders", limit)

	if m.GetTopTradersFunc != nil {
		return m.GetTopTradersFunc(ctx, limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	volumes := make(map[string]float64)
	for i := range m.trades {
		t := &m.trades[i]
		if amount, ok := t.CoinAmountFloat(); ok {
			volumes[t.Address] += amount
		}
	}

	result := make([]repositories.TraderVolume, 0, len(volumes))
	for addr, vol := range volumes {
		result = append(result, repositories.TraderVolume{Address: addr, CoinVolume: vol})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CoinVolume != result[j].CoinVolume {
			return result[i].CoinVolume > result[j].CoinVolume
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTradeRepository) GetActivityCounters(ctx context.Context, addresses []string) (map[string]repositories.ActivityCounters, error) {
	m.record("GetActivityCounters", addresses)

	if m.GetActivityCountersFunc != nil {
		return m.GetActivityCountersFunc(ctx, addresses)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]repositories.ActivityCounters)
	for _, addr := range addresses {
		counters := repositories.ActivityCounters{Address: addr}
		for i := range m.trades {
			t := &m.trades[i]
			if t.Address != addr {
				continue
			}
			switch t.Action {
			case entities.ActionBuy:
				counters.BuyCount++
			case entities.ActionSell:
				counters.SellCount++
			}
		}
		result[addr] = counters
	}
	return result, nil
}

func (m *MockTradeRepository) GetCreatedCounts(ctx context.Context, addresses []string) (map[string]int64, error) {
	m.record("GetCreatedCounts", addresses)

	if m.GetCreatedCountsFunc != nil {
		return m.GetCreatedCountsFunc(ctx, addresses)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int64)
	for _, addr := range addresses {
		for i := range m.trades {
			t := &m.trades[i]
			if t.Address == addr && t.Action == entities.ActionCreate {
				result[addr]++
			}
		}
	}
	return result, nil
}

func (m *MockTradeRepository) GetHoldingsCounts(ctx context.Context, addresses []string) (map[string]int64, error) {
	m.record("GetHoldingsCounts", addresses)

	if m.GetHoldingsCountsFunc != nil {
		return m.GetHoldingsCountsFunc(ctx, addresses)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int64)
	for _, addr := range addresses {
		nets := make(map[string]float64)
		for i := range m.trades {
			t := &m.trades[i]
			if t.Address != addr {
				continue
			}
			volume, ok := t.UnitVolumeFloat()
			if !ok {
				continue
			}
			if t.IsAcquisition() {
				nets[t.AssetAddress] += volume
			} else {
				nets[t.AssetAddress] -= volume
			}
		}
		for _, net := range nets {
			if net > 0 {
				result[addr]++
			}
		}
	}
	return result, nil
}

// MockAssetRepository is a mock implementation of AssetRepository
type MockAssetRepository struct {
	mu     sync.RWMutex
	assets map[string]entities.Asset

	// Function hooks for custom behavior
	GetByAddressFunc   func(ctx context.Context, address string) (*entities.Asset, error)
	GetByAddressesFunc func(ctx context.Context, addresses []string) (map[string]entities.Asset, error)
	UpsertFunc         func(ctx context.Context, asset *entities.Asset) error

	// Call tracking
	Calls []MockCall
}

func NewMockAssetRepository() *MockAssetRepository {
	return &MockAssetRepository{
		assets: make(map[string]entities.Asset),
		Calls:  make([]MockCall, 0),
	}
}

func (m *MockAssetRepository) AddAssets(assets ...entities.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, asset := range assets {
		m.assets[asset.Address] = asset
	}
}

func (m *MockAssetRepository) GetByAddress(ctx context.Context, address string) (*entities.Asset, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetByAddress", Args: []interface{}{address}})
	m.mu.Unlock()

	if m.GetByAddressFunc != nil {
		return m.GetByAddressFunc(ctx, address)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	asset, ok := m.assets[address]
	if !ok {
		return nil, nil
	}
	return &asset, nil
}

func (m *MockAssetRepository) GetByAddresses(ctx context.Context, addresses []string) (map[string]entities.Asset, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetByAddresses", Args: []interface{}{addresses}})
	m.mu.Unlock()

	if m.GetByAddressesFunc != nil {
		return m.GetByAddressesFunc(ctx, addresses)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]entities.Asset)
	for _, addr := range addresses {
		if asset, ok := m.assets[addr]; ok {
			result[addr] = asset
		}
	}
	return result, nil
}

func (m *MockAssetRepository) Upsert(ctx context.Context, asset *entities.Asset) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Upsert", Args: []interface{}{asset}})
	m.mu.Unlock()

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, asset)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets[asset.Address] = *asset
	return nil
}

// MockLeaderboardRepository is a mock implementation of
// LeaderboardRepository holding rows per window in memory
type MockLeaderboardRepository struct {
	mu   sync.RWMutex
	rows map[entities.Window][]entities.LeaderboardRow

	// Function hooks for custom behavior
	ReplaceWindowFunc func(ctx context.Context, window entities.Window, rows []entities.LeaderboardRow) error
	GetWindowFunc     func(ctx context.Context, window entities.Window, metric entities.SortMetric, ascending bool, limit, offset int) ([]entities.LeaderboardRow, error)
	CountWindowFunc   func(ctx context.Context, window entities.Window) (int64, error)

	// Call tracking
	Calls []MockCall
}

func NewMockLeaderboardRepository() *MockLeaderboardRepository {
	return &MockLeaderboardRepository{
		rows:  make(map[entities.Window][]entities.LeaderboardRow),
		Calls: make([]MockCall, 0),
	}
}

// Rows returns the stored rows for a window
func (m *MockLeaderboardRepository) Rows(window entities.Window) []entities.LeaderboardRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[window]
}

func (m *MockLeaderboardRepository) ReplaceWindow(ctx context.Context, window entities.Window, rows []entities.LeaderboardRow) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "ReplaceWindow", Args: []interface{}{window, rows}})
	m.mu.Unlock()

	if m.ReplaceWindowFunc != nil {
		return m.ReplaceWindowFunc(ctx, window, rows)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[window] = append([]entities.LeaderboardRow(nil), rows...)
	return nil
}

func (m *MockLeaderboardRepository) GetWindow(ctx context.Context, window entities.Window, metric entities.SortMetric, ascending bool, limit, offset int) ([]entities.LeaderboardRow, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetWindow", Args: []interface{}{window, metric, ascending, limit, offset}})
	m.mu.Unlock()

	if m.GetWindowFunc != nil {
		return m.GetWindowFunc(ctx, window, metric, ascending, limit, offset)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := append([]entities.LeaderboardRow(nil), m.rows[window]...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := metric.Value(&rows[i]), metric.Value(&rows[j])
		if ascending {
			return a < b
		}
		return a > b
	})

	if offset >= len(rows) {
		return []entities.LeaderboardRow{}, nil
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end], nil
}

func (m *MockLeaderboardRepository) CountWindow(ctx context.Context, window entities.Window) (int64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "CountWindow", Args: []interface{}{window}})
	m.mu.Unlock()

	if m.CountWindowFunc != nil {
		return m.CountWindowFunc(ctx, window)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows[window])), nil
}

// MockChainSource is a mock implementation of the ChainSource interface.
// Seed Blocks with a contiguous ascending range and the defaults serve
// Tip, BlockAt and RecentBlocks from it.
type MockChainSource struct {
	mu     sync.RWMutex
	Blocks []entities.BlockRef

	// Function hooks for custom behavior
	TipFunc           func(ctx context.Context) (entities.BlockRef, error)
	BlockAtFunc       func(ctx context.Context, height int64) (entities.BlockRef, error)
	RecentBlocksFunc  func(ctx context.Context, n int) ([]entities.BlockRef, error)
	NativeBalanceFunc func(ctx context.Context, address string) (*big.Int, error)

	// Balances holds per-address native balances in wei for the default
	// NativeBalance implementation
	Balances map[string]*big.Int

	// Call tracking
	Calls []MockCall
}

func NewMockChainSource() *MockChainSource {
	return &MockChainSource{
		Balances: make(map[string]*big.Int),
		Calls:    make([]MockCall, 0),
	}
}

// SeedBlocks fills Blocks with count heights starting at startHeight,
// spaced by interval from startTime.
func (m *MockChainSource) SeedBlocks(startHeight int64, startTime time.Time, interval time.Duration, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Blocks = make([]entities.BlockRef, 0, count)
	for i := 0; i < count; i++ {
		m.Blocks = append(m.Blocks, entities.BlockRef{
			Height: startHeight + int64(i),
			Time:   startTime.Add(interval * time.Duration(i)),
		})
	}
}

// ProbeCount returns how many BlockAt lookups have been made
func (m *MockChainSource) ProbeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.Calls {
		if c.Method == "BlockAt" {
			count++
		}
	}
	return count
}

func (m *MockChainSource) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *MockChainSource) Tip(ctx context.Context) (entities.BlockRef, error) {
	m.record("Tip")

	if m.TipFunc != nil {
		return m.TipFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Blocks) == 0 {
		return entities.BlockRef{}, errors.New("no blocks seeded")
	}
	return m.Blocks[len(m.Blocks)-1], nil
}

func (m *MockChainSource) BlockAt(ctx context.Context, height int64) (entities.BlockRef, error) {
	m.record("BlockAt", height)

	if m.BlockAtFunc != nil {
		return m.BlockAtFunc(ctx, height)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.Blocks {
		if b.Height == height {
			return b, nil
		}
	}
	return entities.BlockRef{}, fmt.Errorf("block %d not found", height)
}

func (m *MockChainSource) RecentBlocks(ctx context.Context, n int) ([]entities.BlockRef, error) {
	m.record("RecentBlocks", n)

	if m.RecentBlocksFunc != nil {
		return m.RecentBlocksFunc(ctx, n)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Blocks) == 0 {
		return nil, errors.New("no blocks seeded")
	}
	start := len(m.Blocks) - n
	if start < 0 {
		start = 0
	}
	return append([]entities.BlockRef(nil), m.Blocks[start:]...), nil
}

func (m *MockChainSource) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	m.record("NativeBalance", address)

	if m.NativeBalanceFunc != nil {
		return m.NativeBalanceFunc(ctx, address)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if balance, ok := m.Balances[address]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

// MockHealthChecker is a mock implementation of the health check interface
type MockHealthChecker struct {
	healthy bool
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	return &MockHealthChecker{healthy: healthy}
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.healthy = healthy
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	if !m.healthy {
		return errors.New("unhealthy")
	}
	return nil
}
