package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
	"github.com/bimakw/curve-analytics/internal/infrastructure/cache"
)

const (
	// Bounds on a sampled history request.
	maxHistoryPoints     = 1000
	defaultHistoryPoints = 24
	minHistoryInterval   = time.Second

	historyCacheTTL = 5 * time.Minute
)

// HistoryQuery describes one portfolio history request. A zero Start and
// End asks for a single current-state snapshot.
type HistoryQuery struct {
	Start      time.Time
	End        time.Time
	Interval   time.Duration
	Currency   entities.Currency
	IncludePnl bool
}

// Snapshot is the portfolio state at one sampled point in time. Values
// are denominated in the query's currency; NativeBalance is always in
// the native coin.
type Snapshot struct {
	Timestamp     time.Time  `json:"timestamp"`
	BlockHeight   int64      `json:"block_height"`
	NativeBalance float64    `json:"native_balance"`
	AssetsValue   float64    `json:"assets_value"`
	TotalValue    float64    `json:"total_value"`
	Pnl           *PnlResult `json:"pnl,omitempty"`
}

// HistoryResult is a portfolio snapshot series for one address
type HistoryResult struct {
	Address   string            `json:"address"`
	Currency  entities.Currency `json:"currency"`
	Snapshots []Snapshot        `json:"snapshots"`
}

// HistoryService reconstructs a portfolio's value over time by sampling
// timestamps across the requested range and replaying the ledger up to
// each one.
type HistoryService struct {
	trades  repositories.TradeRepository
	heights *HeightService
	pnl     *PnlService
	chain   ChainSource
	cache   *cache.RedisCache
	logger  *zap.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(
	trades repositories.TradeRepository,
	heights *HeightService,
	pnl *PnlService,
	chain ChainSource,
	redisCache *cache.RedisCache,
	logger *zap.Logger,
) *HistoryService {
	return &HistoryService{
		trades:  trades,
		heights: heights,
		pnl:     pnl,
		chain:   chain,
		cache:   redisCache,
		logger:  logger,
	}
}

// GetHistory returns the snapshot series for an address. With no range
// it returns one snapshot of the current state, skipping replay.
func (s *HistoryService) GetHistory(ctx context.Context, address string, query HistoryQuery) (*HistoryResult, error) {
	if query.Currency == "" {
		query.Currency = entities.CurrencyCoin
	}

	if query.Start.IsZero() && query.End.IsZero() {
		return s.currentSnapshot(ctx, address, query)
	}

	samples, err := buildSampleTimes(query)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("history:%s:%d:%d:%d:%s:%t",
		address, query.Start.Unix(), query.End.Unix(), int64(query.Interval.Seconds()),
		query.Currency, query.IncludePnl,
	)
	var cached HistoryResult
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	result, err := s.sampledHistory(ctx, address, query, samples)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, result, historyCacheTTL); err != nil {
			s.logger.Warn("Failed to cache history result", zap.Error(err))
		}
	}

	return result, nil
}

// currentSnapshot values the portfolio as of now from the live chain
// balance and the latest trade prices, with no historical replay.
func (s *HistoryService) currentSnapshot(ctx context.Context, address string, query HistoryQuery) (*HistoryResult, error) {
	tip, err := s.heights.Tip(ctx)
	if err != nil {
		return nil, err
	}

	live, err := s.chain.NativeBalance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live balance: %w", err)
	}
	native := weiToCoin(live)

	pnl, err := s.pnl.PnlAt(ctx, address, tip.Height+1, 0)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		Timestamp:     time.Now().UTC(),
		BlockHeight:   tip.Height,
		NativeBalance: native,
	}

	if query.Currency == entities.CurrencyUSD {
		snap.AssetsValue = pnl.Totals.CurrentValueUSD
		snap.TotalValue = native*s.latestCoinRate(ctx) + snap.AssetsValue
	} else {
		snap.AssetsValue = pnl.Totals.CurrentValue
		snap.TotalValue = native + snap.AssetsValue
	}

	if query.IncludePnl {
		snap.Pnl = pnl
	}

	return &HistoryResult{
		Address:   address,
		Currency:  query.Currency,
		Snapshots: []Snapshot{snap},
	}, nil
}

// sampledHistory walks the sample times in ascending order, folding the
// address's full ledger incrementally so each entry is applied exactly
// once across the whole series.
func (s *HistoryService) sampledHistory(ctx context.Context, address string, query HistoryQuery, samples []time.Time) (*HistoryResult, error) {
	entries, err := s.trades.GetByFilter(ctx, entities.TradeFilter{
		Address:   &address,
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	live, err := s.chain.NativeBalance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch live balance: %w", err)
	}
	liveCoin := weiToCoin(live)

	result := &HistoryResult{
		Address:   address,
		Currency:  query.Currency,
		Snapshots: make([]Snapshot, 0, len(samples)),
	}

	balances := make(map[string]float64)
	coinRate := 0.0
	next := 0
	var hint *HeightHint

	for _, at := range samples {
		// Apply every entry at or before this sample.
		for next < len(entries) && !entries[next].BlockTimestamp.After(at) {
			entry := &entries[next]
			balances[entry.AssetAddress] = s.applyHistoryDelta(balances[entry.AssetAddress], entry)
			if entry.PriceCoin > 0 && entry.PriceUSD > 0 {
				coinRate = entry.PriceUSD / entry.PriceCoin
			}
			next++
		}

		height, err := s.heights.Resolve(ctx, at, hint)
		if err != nil {
			return nil, err
		}
		hint = &HeightHint{Height: height, Time: at}

		snap := Snapshot{
			Timestamp:   at,
			BlockHeight: height,
		}

		snap.NativeBalance = s.nativeBalanceFromSuffix(liveCoin, entries[next:])

		for asset, balance := range balances {
			if balance <= 0 {
				continue
			}
			price, err := s.trades.GetLastTradePrice(ctx, asset, height+1, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch price for %s: %w", asset, err)
			}
			if price == nil {
				continue
			}
			if query.Currency == entities.CurrencyUSD {
				snap.AssetsValue += balance * price.PriceUSD
			} else {
				snap.AssetsValue += balance * price.PriceCoin
			}
		}

		if query.Currency == entities.CurrencyUSD {
			snap.TotalValue = snap.NativeBalance*coinRate + snap.AssetsValue
		} else {
			snap.TotalValue = snap.NativeBalance + snap.AssetsValue
		}

		if query.IncludePnl {
			pnl, err := s.pnl.PnlAt(ctx, address, height+1, 0)
			if err != nil {
				return nil, err
			}
			snap.Pnl = pnl
		}

		result.Snapshots = append(result.Snapshots, snap)
	}

	return result, nil
}

// applyHistoryDelta mirrors the replay fold's clamping semantics for the
// incremental per-sample walk.
func (s *HistoryService) applyHistoryDelta(balance float64, t *entities.Trade) float64 {
	if balance < 0 {
		balance = 0
	}
	volume, ok := t.UnitVolumeFloat()
	if !ok {
		s.logger.Warn("Skipping ledger entry with malformed unit volume",
			zap.String("tx_hash", t.TxHash),
			zap.String("unit_volume", t.UnitVolume),
		)
		return balance
	}
	if t.IsAcquisition() {
		return balance + volume
	}
	return balance - volume
}

// nativeBalanceFromSuffix undoes the coin effect of every entry after
// the sample, newest first, starting from the current live balance.
func (s *HistoryService) nativeBalanceFromSuffix(liveCoin float64, suffix []entities.Trade) float64 {
	balance := liveCoin
	for i := len(suffix) - 1; i >= 0; i-- {
		entry := &suffix[i]
		amount, ok := entry.CoinAmountFloat()
		if !ok {
			s.logger.Warn("Skipping ledger entry with malformed coin amount",
				zap.String("tx_hash", entry.TxHash),
				zap.String("coin_amount", entry.CoinAmount),
			)
			continue
		}
		if entry.IsAcquisition() {
			balance += amount
		} else {
			balance -= amount
		}
		if balance < 0 {
			balance = 0
		}
	}
	if balance < 0 {
		balance = 0
	}
	return balance
}

// latestCoinRate derives the coin/USD rate from the most recent trade
// carrying both prices. 0 when no trade provides one.
func (s *HistoryService) latestCoinRate(ctx context.Context) float64 {
	latest, err := s.trades.GetLatestBefore(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Warn("Failed to derive coin rate from latest trade", zap.Error(err))
		return 0
	}
	if latest == nil || latest.PriceCoin <= 0 || latest.PriceUSD <= 0 {
		return 0
	}
	return latest.PriceUSD / latest.PriceCoin
}

// buildSampleTimes expands a query's range into ascending sample
// timestamps, ending exactly at End.
func buildSampleTimes(query HistoryQuery) ([]time.Time, error) {
	start := query.Start.UTC()
	end := query.End.UTC()
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() || !start.Before(end) {
		return nil, fmt.Errorf("invalid history range: start %s must precede end %s", start, end)
	}

	interval := query.Interval
	if interval == 0 {
		interval = end.Sub(start) / defaultHistoryPoints
		if interval < minHistoryInterval {
			interval = minHistoryInterval
		}
	}
	if interval < minHistoryInterval {
		return nil, fmt.Errorf("interval %s is below the minimum of %s", interval, minHistoryInterval)
	}
	if points := end.Sub(start)/interval + 1; points > maxHistoryPoints {
		return nil, fmt.Errorf("range at interval %s yields %d points, maximum is %d", interval, points, maxHistoryPoints)
	}

	samples := make([]time.Time, 0, end.Sub(start)/interval+2)
	for at := start; at.Before(end); at = at.Add(interval) {
		samples = append(samples, at)
	}
	samples = append(samples, end)
	return samples, nil
}
