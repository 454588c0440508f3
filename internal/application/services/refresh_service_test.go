package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/testutil"
)

func TestRefreshService_RefreshAll(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	newService := func(rows *testutil.MockLeaderboardRepository) *RefreshService {
		trades := testutil.NewMockTradeRepository()
		chain := testChain()
		heights := NewHeightService(chain, nil, time.Hour, logger)
		pnl := NewPnlService(trades, nil, heights, nil, logger)
		leaderboard := NewLeaderboardService(trades, rows, pnl, heights, testLeaderboardConfig(), logger)
		return NewRefreshService(leaderboard, rows, nil, logger)
	}

	t.Run("replaces every window", func(t *testing.T) {
		rows := testutil.NewMockLeaderboardRepository()
		service := newService(rows)

		if err := service.RefreshAll(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		replaced := make(map[entities.Window]bool)
		for _, call := range rows.Calls {
			if call.Method == "ReplaceWindow" {
				replaced[call.Args[0].(entities.Window)] = true
			}
		}
		for _, window := range entities.Windows {
			if !replaced[window] {
				t.Errorf("expected window %s to be replaced", window)
			}
		}
	})

	t.Run("keeps the context alive for in-flight windows after a failure", func(t *testing.T) {
		rows := testutil.NewMockLeaderboardRepository()
		failed := make(chan struct{})
		var mu sync.Mutex
		persisted := make(map[entities.Window]bool)
		rows.ReplaceWindowFunc = func(ctx context.Context, window entities.Window, rs []entities.LeaderboardRow) error {
			if window == entities.Window7d {
				close(failed)
				return errors.New("database error")
			}
			// Hold until the failure has landed, then give any shared
			// cancellation time to propagate before checking.
			<-failed
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
			mu.Lock()
			persisted[window] = true
			mu.Unlock()
			return nil
		}

		service := newService(rows)

		err := service.RefreshAll(ctx)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if errors.Is(err, context.Canceled) {
			t.Fatalf("expected the window's own error, got %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		for _, window := range entities.Windows {
			if window == entities.Window7d {
				continue
			}
			if !persisted[window] {
				t.Errorf("expected window %s to persist despite the failure", window)
			}
		}
	})

	t.Run("still refreshes other windows when one fails", func(t *testing.T) {
		rows := testutil.NewMockLeaderboardRepository()
		rows.ReplaceWindowFunc = func(ctx context.Context, window entities.Window, rs []entities.LeaderboardRow) error {
			if window == entities.Window7d {
				return errors.New("database error")
			}
			return nil
		}

		service := newService(rows)

		if err := service.RefreshAll(ctx); err == nil {
			t.Fatal("expected error, got nil")
		}

		replaceCalls := 0
		for _, call := range rows.Calls {
			if call.Method == "ReplaceWindow" {
				replaceCalls++
			}
		}
		if replaceCalls != len(entities.Windows) {
			t.Errorf("expected %d replace attempts, got %d", len(entities.Windows), replaceCalls)
		}
	})
}
