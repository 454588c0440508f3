package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
	"github.com/bimakw/curve-analytics/internal/infrastructure/cache"
)

// PnlService computes cost-basis profit and loss from the trade ledger
// using average-cost accounting: all acquired lots of an asset pool into
// one running average price. The ledger's ordering guarantees are not
// strong enough for FIFO lot matching.
type PnlService struct {
	trades  repositories.TradeRepository
	assets  repositories.AssetRepository
	heights *HeightService
	cache   *cache.RedisCache
	logger  *zap.Logger
}

// NewPnlService creates a new PNL service. assets may be nil; asset
// metadata on results is then left empty.
func NewPnlService(
	trades repositories.TradeRepository,
	assets repositories.AssetRepository,
	heights *HeightService,
	redisCache *cache.RedisCache,
	logger *zap.Logger,
) *PnlService {
	return &PnlService{
		trades:  trades,
		assets:  assets,
		heights: heights,
		cache:   redisCache,
		logger:  logger,
	}
}

// AssetPnl holds per-asset cost-basis results. Coin-denominated fields
// use the native coin; USD fields carry the display-currency view and
// degrade to zero when no USD price is known.
type AssetPnl struct {
	AssetAddress    string  `json:"asset_address"`
	Name            string  `json:"name,omitempty"`
	Symbol          string  `json:"symbol,omitempty"`
	Holdings        float64 `json:"holdings"`
	AverageCost     float64 `json:"average_cost"`
	CostBasis       float64 `json:"cost_basis"`
	CurrentPrice    float64 `json:"current_price"`
	CurrentValue    float64 `json:"current_value"`
	Gain            float64 `json:"gain"`
	GainPct         float64 `json:"gain_pct"`
	CostBasisUSD    float64 `json:"cost_basis_usd"`
	CurrentPriceUSD float64 `json:"current_price_usd"`
	CurrentValueUSD float64 `json:"current_value_usd"`
	GainUSD         float64 `json:"gain_usd"`
}

// PnlTotals sums per-asset values across both denominations
type PnlTotals struct {
	CostBasis       float64 `json:"cost_basis"`
	CurrentValue    float64 `json:"current_value"`
	Gain            float64 `json:"gain"`
	GainPct         float64 `json:"gain_pct"`
	CostBasisUSD    float64 `json:"cost_basis_usd"`
	CurrentValueUSD float64 `json:"current_value_usd"`
	GainUSD         float64 `json:"gain_usd"`
}

// PnlResult is the full cost-basis breakdown for one address
type PnlResult struct {
	Address     string     `json:"address"`
	BlockHeight int64      `json:"block_height"`
	FromHeight  int64      `json:"from_height,omitempty"`
	Assets      []AssetPnl `json:"assets"`
	Totals      PnlTotals  `json:"totals"`
	ComputedAt  time.Time  `json:"computed_at"`
}

// PnlCurrent computes PNL against the chain tip
func (s *PnlService) PnlCurrent(ctx context.Context, address string) (*PnlResult, error) {
	tip, err := s.heights.Tip(ctx)
	if err != nil {
		return nil, err
	}
	// The window is half-open on the upper bound; +1 keeps trades in the
	// tip block itself inside it.
	return s.PnlAt(ctx, address, tip.Height+1, 0)
}

// PnlAt computes cost-basis PNL for an address over the ledger window
// [fromHeight, height). fromHeight 0 means the full history.
func (s *PnlService) PnlAt(ctx context.Context, address string, height, fromHeight int64) (*PnlResult, error) {
	cacheKey := fmt.Sprintf("pnl:%s:%d:%d", address, height, fromHeight)

	var cached PnlResult
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	filter := entities.TradeFilter{
		Address:   &address,
		Ascending: true,
	}
	upper := height - 1
	filter.ToBlock = &upper
	if fromHeight > 0 {
		filter.FromBlock = &fromHeight
	}

	entries, err := s.trades.GetByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	positions := s.accumulatePositions(entries)

	result := &PnlResult{
		Address:     address,
		BlockHeight: height,
		FromHeight:  fromHeight,
		Assets:      make([]AssetPnl, 0, len(positions)),
		ComputedAt:  time.Now().UTC(),
	}

	for asset, pos := range positions {
		holdings := pos.boughtVolume - pos.soldVolume
		if holdings <= 0 {
			// Closed or net-negative positions are not held.
			continue
		}

		var avgCost, avgCostUSD float64
		if pos.boughtVolume > 0 {
			avgCost = pos.coinSpent / pos.boughtVolume
			avgCostUSD = pos.usdSpent / pos.boughtVolume
		}

		assetPnl := AssetPnl{
			AssetAddress: asset,
			Holdings:     holdings,
			AverageCost:  avgCost,
			CostBasis:    holdings * avgCost,
			CostBasisUSD: holdings * avgCostUSD,
		}

		price, err := s.trades.GetLastTradePrice(ctx, asset, height, fromHeight)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch last trade price for %s: %w", asset, err)
		}
		if price != nil {
			assetPnl.CurrentPrice = price.PriceCoin
			assetPnl.CurrentPriceUSD = price.PriceUSD
		}

		assetPnl.CurrentValue = holdings * assetPnl.CurrentPrice
		assetPnl.CurrentValueUSD = holdings * assetPnl.CurrentPriceUSD
		assetPnl.Gain = assetPnl.CurrentValue - assetPnl.CostBasis
		assetPnl.GainUSD = assetPnl.CurrentValueUSD - assetPnl.CostBasisUSD
		assetPnl.GainPct = gainPercent(assetPnl.Gain, assetPnl.CostBasis)

		result.Assets = append(result.Assets, assetPnl)

		result.Totals.CostBasis += assetPnl.CostBasis
		result.Totals.CurrentValue += assetPnl.CurrentValue
		result.Totals.Gain += assetPnl.Gain
		result.Totals.CostBasisUSD += assetPnl.CostBasisUSD
		result.Totals.CurrentValueUSD += assetPnl.CurrentValueUSD
		result.Totals.GainUSD += assetPnl.GainUSD
	}

	result.Totals.GainPct = gainPercent(result.Totals.Gain, result.Totals.CostBasis)

	sort.SliceStable(result.Assets, func(i, j int) bool {
		return result.Assets[i].CurrentValue > result.Assets[j].CurrentValue
	})

	s.attachMetadata(ctx, result)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result); err != nil {
			s.logger.Warn("Failed to cache PNL result", zap.Error(err))
		}
	}

	return result, nil
}

// attachMetadata decorates held positions with asset names and symbols.
// Metadata failures degrade to bare addresses.
func (s *PnlService) attachMetadata(ctx context.Context, result *PnlResult) {
	if s.assets == nil || len(result.Assets) == 0 {
		return
	}

	addresses := make([]string, len(result.Assets))
	for i := range result.Assets {
		addresses[i] = result.Assets[i].AssetAddress
	}

	metadata, err := s.assets.GetByAddresses(ctx, addresses)
	if err != nil {
		s.logger.Warn("Failed to fetch asset metadata", zap.Error(err))
		return
	}

	for i := range result.Assets {
		if asset, ok := metadata[result.Assets[i].AssetAddress]; ok {
			result.Assets[i].Name = asset.Name
			result.Assets[i].Symbol = asset.Symbol
		}
	}
}

// position accumulates one asset's volume and spend sums during replay
type position struct {
	boughtVolume float64
	soldVolume   float64
	coinSpent    float64
	usdSpent     float64
}

// accumulatePositions folds ledger entries into per-asset sums. A
// malformed amount on one entry skips that entry only.
func (s *PnlService) accumulatePositions(entries []entities.Trade) map[string]*position {
	positions := make(map[string]*position)

	for i := range entries {
		entry := &entries[i]

		volume, ok := entry.UnitVolumeFloat()
		if !ok {
			s.logger.Warn("Skipping ledger entry with malformed unit volume",
				zap.String("tx_hash", entry.TxHash),
				zap.String("unit_volume", entry.UnitVolume),
			)
			continue
		}

		pos := positions[entry.AssetAddress]
		if pos == nil {
			pos = &position{}
			positions[entry.AssetAddress] = pos
		}

		if entry.IsAcquisition() {
			pos.boughtVolume += volume
			pos.usdSpent += volume * entry.PriceUSD

			coin, ok := entry.CoinAmountFloat()
			if !ok {
				s.logger.Warn("Skipping coin amount on ledger entry with malformed value",
					zap.String("tx_hash", entry.TxHash),
					zap.String("coin_amount", entry.CoinAmount),
				)
			} else {
				pos.coinSpent += coin
			}
		} else {
			pos.soldVolume += volume
		}
	}

	return positions
}

// gainPercent guards the zero-cost-basis case: 0, never NaN or Inf.
func gainPercent(gain, costBasis float64) float64 {
	if costBasis == 0 {
		return 0
	}
	return gain / costBasis * 100
}
