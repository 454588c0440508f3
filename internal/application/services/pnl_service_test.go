package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
	"github.com/bimakw/curve-analytics/internal/testutil"
)

func TestPnlService_PnlAt(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	base := testutil.GenesisTime

	t.Run("computes average-cost PNL", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			// Buy 100 units for 100 coins, unit price 1.
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
			// Sell 40 units at unit price 2.
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithUnitVolume(testutil.Units(40)),
				testutil.WithCoinAmount(testutil.Units(80)),
				testutil.WithPriceCoin(2),
				testutil.WithBlockNumber(200),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewPnlService(trades, nil, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 300, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}

		asset := result.Assets[0]
		if asset.Holdings != 60 {
			t.Errorf("expected holdings 60, got %f", asset.Holdings)
		}
		if asset.AverageCost != 1 {
			t.Errorf("expected average cost 1, got %f", asset.AverageCost)
		}
		if asset.CostBasis != 60 {
			t.Errorf("expected cost basis 60, got %f", asset.CostBasis)
		}
		if asset.CurrentPrice != 2 {
			t.Errorf("expected current price 2, got %f", asset.CurrentPrice)
		}
		if asset.CurrentValue != 120 {
			t.Errorf("expected current value 120, got %f", asset.CurrentValue)
		}
		if asset.Gain != 60 {
			t.Errorf("expected gain 60, got %f", asset.Gain)
		}
		if asset.GainPct != 100 {
			t.Errorf("expected gain pct 100, got %f", asset.GainPct)
		}

		if result.Totals.Gain != 60 {
			t.Errorf("expected total gain 60, got %f", result.Totals.Gain)
		}
	})

	t.Run("excludes trades at or above the valuation height", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithUnitVolume(testutil.Units(40)),
				testutil.WithCoinAmount(testutil.Units(80)),
				testutil.WithPriceCoin(2),
				testutil.WithBlockNumber(250),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewPnlService(trades, nil, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 200, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}
		if result.Assets[0].Holdings != 100 {
			t.Errorf("expected holdings 100, got %f", result.Assets[0].Holdings)
		}
	})

	t.Run("excludes closed positions", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(50)),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithUnitVolume(testutil.Units(50)),
				testutil.WithBlockNumber(200),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewPnlService(trades, nil, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 300, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Assets) != 0 {
			t.Errorf("expected no open positions, got %d", len(result.Assets))
		}
	})

	t.Run("guards gain percent when cost basis is zero", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			// Creating an asset costs no coin but mints units.
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionCreate),
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount("0"),
				testutil.WithPriceCoin(0.5),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
		)

		service := NewPnlService(trades, nil, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 200, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}
		asset := result.Assets[0]
		if asset.CostBasis != 0 {
			t.Errorf("expected cost basis 0, got %f", asset.CostBasis)
		}
		if asset.GainPct != 0 {
			t.Errorf("expected gain pct 0, got %f", asset.GainPct)
		}
		if result.Totals.GainPct != 0 {
			t.Errorf("expected total gain pct 0, got %f", result.Totals.GainPct)
		}
	})

	t.Run("zeroes price fields when no price is known", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
		)
		trades.GetLastTradePriceFunc = func(ctx context.Context, assetAddress string, maxBlock, minBlock int64) (*repositories.TradePrice, error) {
			return nil, nil
		}

		service := NewPnlService(trades, nil, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 200, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}
		asset := result.Assets[0]
		if asset.CurrentPrice != 0 || asset.CurrentValue != 0 {
			t.Errorf("expected zero price and value, got %f and %f", asset.CurrentPrice, asset.CurrentValue)
		}
		if asset.Gain != -asset.CostBasis {
			t.Errorf("expected gain -%f, got %f", asset.CostBasis, asset.Gain)
		}
	})

	t.Run("sorts assets by current value descending", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(10)),
				testutil.WithCoinAmount(testutil.Units(10)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithAssetAddress(testutil.AssetBeta),
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(110),
				testutil.WithBlockTimestamp(base.Add(time.Minute)),
			),
		)

		service := NewPnlService(trades, nil, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 300, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Assets) != 2 {
			t.Fatalf("expected 2 assets, got %d", len(result.Assets))
		}
		if result.Assets[0].AssetAddress != testutil.AssetBeta {
			t.Errorf("expected largest position first, got %s", result.Assets[0].AssetAddress)
		}
	})

	t.Run("attaches asset metadata when available", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
		)
		assets := testutil.NewMockAssetRepository()
		assets.AddAssets(testutil.CreateTestAsset(testutil.AssetAlpha))

		service := NewPnlService(trades, assets, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 200, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}
		if result.Assets[0].Name != "Test Asset" {
			t.Errorf("expected asset name, got %q", result.Assets[0].Name)
		}
		if result.Assets[0].Symbol != "TST" {
			t.Errorf("expected asset symbol, got %q", result.Assets[0].Symbol)
		}
	})

	t.Run("degrades to bare addresses when metadata fails", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base),
			),
		)
		assets := testutil.NewMockAssetRepository()
		assets.GetByAddressesFunc = func(ctx context.Context, addresses []string) (map[string]entities.Asset, error) {
			return nil, errors.New("database error")
		}

		service := NewPnlService(trades, assets, nil, nil, logger)

		result, err := service.PnlAt(ctx, testutil.AliceAddress, 200, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}
		if result.Assets[0].Name != "" {
			t.Errorf("expected no name, got %q", result.Assets[0].Name)
		}
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.GetByFilterFunc = func(ctx context.Context, filter entities.TradeFilter) ([]entities.Trade, error) {
			return nil, errors.New("database error")
		}

		service := NewPnlService(trades, nil, nil, nil, logger)

		if _, err := service.PnlAt(ctx, testutil.AliceAddress, 300, 0); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestPnlService_PnlCurrent(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	base := testutil.GenesisTime

	t.Run("includes trades in the tip block", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 100)

		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithCoinAmount(testutil.Units(100)),
				testutil.WithPriceCoin(1),
				testutil.WithBlockNumber(100),
				testutil.WithBlockTimestamp(base.Add(99*12*time.Second)),
			),
		)

		heights := NewHeightService(chain, trades, 12*time.Second, logger)
		service := NewPnlService(trades, nil, heights, nil, logger)

		result, err := service.PnlCurrent(ctx, testutil.AliceAddress)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.BlockHeight != 101 {
			t.Errorf("expected valuation height 101, got %d", result.BlockHeight)
		}
		if len(result.Assets) != 1 {
			t.Fatalf("expected 1 asset, got %d", len(result.Assets))
		}
		if result.Assets[0].Holdings != 100 {
			t.Errorf("expected holdings 100, got %f", result.Assets[0].Holdings)
		}
	})
}
