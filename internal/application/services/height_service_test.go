package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/testutil"
)

func TestHeightService_Resolve(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("resolves target between blocks to the earlier block", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		// Block 500 sits at base+499*12s; five seconds later is still
		// within its span.
		target := base.Add(499*12*time.Second + 5*time.Second)
		height, err := service.Resolve(ctx, target, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 500 {
			t.Errorf("expected height 500, got %d", height)
		}
	})

	t.Run("resolves exact block time to that block", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		height, err := service.Resolve(ctx, base.Add(499*12*time.Second), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 500 {
			t.Errorf("expected height 500, got %d", height)
		}
	})

	t.Run("clamps future targets to the tip without probing", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		tipTime := base.Add(999 * 12 * time.Second)
		height, err := service.Resolve(ctx, tipTime.Add(time.Hour), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 1000 {
			t.Errorf("expected tip height 1000, got %d", height)
		}
		if probes := chain.ProbeCount(); probes != 0 {
			t.Errorf("expected no block probes, got %d", probes)
		}
	})

	t.Run("is monotonic in the target", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		h1, err := service.Resolve(ctx, base.Add(100*12*time.Second), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h2, err := service.Resolve(ctx, base.Add(200*12*time.Second), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h1 > h2 {
			t.Errorf("expected monotonic heights, got %d then %d", h1, h2)
		}
	})

	t.Run("uses caller hint for sequential resolutions", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		hint := &HeightHint{Height: 500, Time: base.Add(499 * 12 * time.Second)}
		height, err := service.Resolve(ctx, base.Add(520*12*time.Second), hint)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 521 {
			t.Errorf("expected height 521, got %d", height)
		}
	})

	t.Run("corrects a guess window entirely past the target", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		trades := testutil.NewMockTradeRepository()
		trades.GetLatestBeforeFunc = func(ctx context.Context, at time.Time) (*entities.Trade, error) {
			// A wildly wrong ledger hint well above the true height.
			trade := testutil.CreateTestTrade(testutil.WithBlockNumber(700))
			return &trade, nil
		}

		service := NewHeightService(chain, trades, 12*time.Second, logger)

		target := base.Add(499*12*time.Second + 5*time.Second)
		height, err := service.Resolve(ctx, target, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 500 {
			t.Errorf("expected height 500, got %d", height)
		}
	})

	t.Run("falls back to extrapolation when ledger lookup fails", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 1000)

		trades := testutil.NewMockTradeRepository()
		trades.GetLatestBeforeFunc = func(ctx context.Context, at time.Time) (*entities.Trade, error) {
			return nil, errors.New("database error")
		}

		service := NewHeightService(chain, trades, 12*time.Second, logger)

		height, err := service.Resolve(ctx, base.Add(499*12*time.Second+5*time.Second), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 500 {
			t.Errorf("expected height 500, got %d", height)
		}
	})

	t.Run("buckets distant targets to end of day", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		// Five-minute blocks spanning roughly 83 hours.
		chain.SeedBlocks(1, base, 5*time.Minute, 1000)

		service := NewHeightService(chain, nil, 5*time.Minute, logger)

		// More than 48h before the tip, so the target day-buckets to
		// 2024-01-01 23:59:59. The last block at or before that is 288.
		target := base.Add(10 * time.Hour)
		height, err := service.Resolve(ctx, target, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if height != 288 {
			t.Errorf("expected height 288, got %d", height)
		}
	})

	t.Run("propagates tip failures", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.TipFunc = func(ctx context.Context) (entities.BlockRef, error) {
			return entities.BlockRef{}, errors.New("rpc error")
		}

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		if _, err := service.Resolve(ctx, base, nil); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestHeightService_Tip(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("caches the tip between calls", func(t *testing.T) {
		chain := testutil.NewMockChainSource()
		chain.SeedBlocks(1, base, 12*time.Second, 10)

		calls := 0
		chain.TipFunc = func(ctx context.Context) (entities.BlockRef, error) {
			calls++
			return entities.BlockRef{Height: 10, Time: base.Add(9 * 12 * time.Second)}, nil
		}

		service := NewHeightService(chain, nil, 12*time.Second, logger)

		for i := 0; i < 3; i++ {
			if _, err := service.Tip(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if calls != 1 {
			t.Errorf("expected 1 upstream tip fetch, got %d", calls)
		}
	})
}
