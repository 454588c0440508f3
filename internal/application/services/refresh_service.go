package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
	"github.com/bimakw/curve-analytics/internal/presentation/middleware"
)

// RefreshService recomputes and persists every leaderboard window. A
// window that fails keeps its previously persisted rows; the other
// windows still refresh.
type RefreshService struct {
	leaderboard *LeaderboardService
	rows        repositories.LeaderboardRepository
	logger      *zap.Logger
	metrics     *middleware.AggregatorMetrics
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	leaderboard *LeaderboardService,
	rows repositories.LeaderboardRepository,
	metrics *middleware.AggregatorMetrics,
	logger *zap.Logger,
) *RefreshService {
	return &RefreshService{
		leaderboard: leaderboard,
		rows:        rows,
		logger:      logger,
		metrics:     metrics,
	}
}

// RefreshAll recomputes every window concurrently and reports the first
// failure after all windows have finished. The windows are independent,
// so one failing must not cancel the others mid-computation; the group
// deliberately carries no shared cancellation.
func (s *RefreshService) RefreshAll(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("Starting leaderboard refresh cycle")

	var g errgroup.Group
	for _, window := range entities.Windows {
		window := window
		g.Go(func() error {
			return s.refreshWindow(ctx, window)
		})
	}

	err := g.Wait()

	if s.metrics != nil {
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.ErrorsTotal.Inc()
		}
		return err
	}

	s.logger.Info("Leaderboard refresh cycle completed",
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// refreshWindow computes one window from scratch and swaps its persisted
// rows in a single transaction.
func (s *RefreshService) refreshWindow(ctx context.Context, window entities.Window) error {
	start := time.Now()

	rows, total, err := s.leaderboard.Compute(ctx, window, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to compute window %s: %w", window, err)
	}

	if err := s.rows.ReplaceWindow(ctx, window, rows); err != nil {
		return fmt.Errorf("failed to persist window %s: %w", window, err)
	}

	if s.metrics != nil {
		s.metrics.CyclesTotal.WithLabelValues(string(window)).Inc()
		s.metrics.CandidatesComputed.Add(float64(len(rows)))
		s.metrics.CandidatesSkipped.Add(float64(total - len(rows)))
		s.metrics.LastRefreshTime.WithLabelValues(string(window)).SetToCurrentTime()
	}

	s.logger.Info("Refreshed leaderboard window",
		zap.String("window", string(window)),
		zap.Int("rows", len(rows)),
		zap.Int("candidates", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
