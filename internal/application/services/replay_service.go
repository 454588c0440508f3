package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

// ReplayService reconstructs historical balances by replaying an
// address's ordered ledger entries. Asset balances fold forward from an
// empty position; the native-coin balance walks back from the current
// live balance, undoing each trade's coin effect.
type ReplayService struct {
	trades repositories.TradeRepository
	chain  ChainSource
	logger *zap.Logger
}

// NewReplayService creates a new replay service
func NewReplayService(
	trades repositories.TradeRepository,
	chain ChainSource,
	logger *zap.Logger,
) *ReplayService {
	return &ReplayService{
		trades: trades,
		chain:  chain,
		logger: logger,
	}
}

// AssetBalanceAtTime reconstructs the address's balance of one asset at
// a point in time. An asset with no entries before the target yields 0.
func (s *ReplayService) AssetBalanceAtTime(ctx context.Context, address, assetAddress string, at time.Time) (float64, error) {
	entries, err := s.trades.GetByFilter(ctx, entities.TradeFilter{
		Address:      &address,
		AssetAddress: &assetAddress,
		ToTime:       &at,
		Ascending:    true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	return s.foldAssetBalance(entries), nil
}

// AssetBalanceAtHeight reconstructs the address's balance of one asset
// as of a block height (inclusive).
func (s *ReplayService) AssetBalanceAtHeight(ctx context.Context, address, assetAddress string, height int64) (float64, error) {
	entries, err := s.trades.GetByFilter(ctx, entities.TradeFilter{
		Address:      &address,
		AssetAddress: &assetAddress,
		ToBlock:      &height,
		Ascending:    true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	return s.foldAssetBalance(entries), nil
}

// foldAssetBalance replays entries in causal order. Acquisitions add
// unit volume, sells subtract it. The running balance clamps at zero:
// out-of-order ingestion can produce transient negative sums, and those
// must not poison later deltas.
func (s *ReplayService) foldAssetBalance(entries []entities.Trade) float64 {
	var balance float64
	for i := range entries {
		balance = s.applyAssetDelta(balance, &entries[i])
	}
	if balance < 0 {
		balance = 0
	}
	return balance
}

// applyAssetDelta applies one entry's volume effect with clamping. A
// malformed volume skips that entry only.
func (s *ReplayService) applyAssetDelta(balance float64, t *entities.Trade) float64 {
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

// NativeBalanceAt reconstructs the address's native-coin balance at a
// point in the past by starting from the current live balance and
// undoing every trade after the target, most recent first.
//
// This assumes no non-trade coin movements (plain transfers, gas on
// unrelated transactions) happened after the target; the result is an
// approximation from the trading ledger alone.
func (s *ReplayService) NativeBalanceAt(ctx context.Context, address string, at time.Time) (float64, error) {
	live, err := s.chain.NativeBalance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch live balance: %w", err)
	}

	entries, err := s.trades.GetByFilter(ctx, entities.TradeFilter{
		Address:   &address,
		FromTime:  &at,
		Ascending: false,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	balance := weiToCoin(live)
	for i := range entries {
		// The filter is inclusive; entries exactly at the target belong
		// to the state being reconstructed and stay applied.
		if !entries[i].BlockTimestamp.After(at) {
			continue
		}
		balance = s.undoCoinEffect(balance, &entries[i])
	}
	if balance < 0 {
		balance = 0
	}

	return balance, nil
}

// undoCoinEffect reverses one trade's native-coin effect: a buy spent
// coin, so the earlier balance was higher; a sell received coin, so it
// was lower.
func (s *ReplayService) undoCoinEffect(balance float64, t *entities.Trade) float64 {
	if balance < 0 {
		balance = 0
	}

	amount, ok := t.CoinAmountFloat()
	if !ok {
		s.logger.Warn("Skipping ledger entry with malformed coin amount",
			zap.String("tx_hash", t.TxHash),
			zap.String("coin_amount", t.CoinAmount),
		)
		return balance
	}

	if t.IsAcquisition() {
		return balance + amount
	}
	return balance - amount
}

func weiToCoin(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(1e18),
	).Float64()
	return f
}
