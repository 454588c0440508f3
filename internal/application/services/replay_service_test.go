package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/testutil"
)

func TestReplayService_AssetBalanceAtTime(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	base := testutil.GenesisTime

	t.Run("folds buys and sells in order", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithUnitVolume(testutil.Units(40)),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewReplayService(trades, testutil.NewMockChainSource(), logger)

		balance, err := service.AssetBalanceAtTime(ctx, testutil.AliceAddress, testutil.AssetAlpha, base.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 60 {
			t.Errorf("expected balance 60, got %f", balance)
		}
	})

	t.Run("excludes trades after the target time", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(100)),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithUnitVolume(testutil.Units(40)),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewReplayService(trades, testutil.NewMockChainSource(), logger)

		balance, err := service.AssetBalanceAtTime(ctx, testutil.AliceAddress, testutil.AssetAlpha, base.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 100 {
			t.Errorf("expected balance 100, got %f", balance)
		}
	})

	t.Run("clamps transient negative balances at zero", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			// A sell observed before any buy, as out-of-order ingestion
			// can produce.
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithUnitVolume(testutil.Units(50)),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(30)),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewReplayService(trades, testutil.NewMockChainSource(), logger)

		balance, err := service.AssetBalanceAtTime(ctx, testutil.AliceAddress, testutil.AssetAlpha, base.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 30 {
			t.Errorf("expected balance 30, got %f", balance)
		}
	})

	t.Run("returns zero for an empty ledger", func(t *testing.T) {
		service := NewReplayService(testutil.NewMockTradeRepository(), testutil.NewMockChainSource(), logger)

		balance, err := service.AssetBalanceAtTime(ctx, testutil.AliceAddress, testutil.AssetAlpha, base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 0 {
			t.Errorf("expected balance 0, got %f", balance)
		}
	})

	t.Run("skips malformed volumes", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithUnitVolume("not-a-number"),
				testutil.WithBlockTimestamp(base),
			),
			testutil.CreateTestTrade(
				testutil.WithUnitVolume(testutil.Units(25)),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		service := NewReplayService(trades, testutil.NewMockChainSource(), logger)

		balance, err := service.AssetBalanceAtTime(ctx, testutil.AliceAddress, testutil.AssetAlpha, base.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 25 {
			t.Errorf("expected balance 25, got %f", balance)
		}
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.GetByFilterFunc = func(ctx context.Context, filter entities.TradeFilter) ([]entities.Trade, error) {
			return nil, errors.New("database error")
		}

		service := NewReplayService(trades, testutil.NewMockChainSource(), logger)

		if _, err := service.AssetBalanceAtTime(ctx, testutil.AliceAddress, testutil.AssetAlpha, base); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestReplayService_NativeBalanceAt(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	base := testutil.GenesisTime

	oneCoin := big.NewInt(1e18)
	coins := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), oneCoin)
	}

	t.Run("undoes trades after the target", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			// A buy after the target spent 3 coins; earlier balance was
			// higher by 3.
			testutil.CreateTestTrade(
				testutil.WithCoinAmount("3000000000000000000"),
				testutil.WithBlockTimestamp(base.Add(2*time.Hour)),
			),
			// A sell after the target received 1 coin.
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithCoinAmount("1000000000000000000"),
				testutil.WithBlockTimestamp(base.Add(3*time.Hour)),
			),
		)

		chain := testutil.NewMockChainSource()
		chain.Balances[testutil.AliceAddress] = coins(10)

		service := NewReplayService(trades, chain, logger)

		balance, err := service.NativeBalanceAt(ctx, testutil.AliceAddress, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 12 {
			t.Errorf("expected balance 12, got %f", balance)
		}
	})

	t.Run("keeps trades at exactly the target applied", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			testutil.CreateTestTrade(
				testutil.WithCoinAmount("3000000000000000000"),
				testutil.WithBlockTimestamp(base.Add(time.Hour)),
			),
		)

		chain := testutil.NewMockChainSource()
		chain.Balances[testutil.AliceAddress] = coins(10)

		service := NewReplayService(trades, chain, logger)

		balance, err := service.NativeBalanceAt(ctx, testutil.AliceAddress, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 10 {
			t.Errorf("expected balance 10, got %f", balance)
		}
	})

	t.Run("clamps reconstructed balance at zero", func(t *testing.T) {
		trades := testutil.NewMockTradeRepository()
		trades.AddTrades(
			// Undoing this sell subtracts more than the live balance.
			testutil.CreateTestTrade(
				testutil.WithAction(entities.ActionSell),
				testutil.WithCoinAmount("20000000000000000000"),
				testutil.WithBlockTimestamp(base.Add(2*time.Hour)),
			),
		)

		chain := testutil.NewMockChainSource()
		chain.Balances[testutil.AliceAddress] = coins(5)

		service := NewReplayService(trades, chain, logger)

		balance, err := service.NativeBalanceAt(ctx, testutil.AliceAddress, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance != 0 {
			t.Errorf("expected balance 0, got %f", balance)
		}
	})

	t.Run("propagates chain errors", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.NativeBalanceFunc = func(ctx context.Context, address string) (*big.Int, error) {
			return nil, errors.New("rpc error")
		}

		service := NewReplayService(testutil.NewMockTradeRepository(), chain, logger)

		if _, err := service.NativeBalanceAt(ctx, testutil.AliceAddress, base); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
