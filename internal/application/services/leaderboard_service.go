package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/config"
	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

// LeaderboardQuery describes one leaderboard read request
type LeaderboardQuery struct {
	Window    entities.Window
	Metric    entities.SortMetric
	Ascending bool
	Limit     int
	Offset    int

	// Overrides for on-demand computation. Zero values fall back to the
	// configured defaults.
	MinAUM float64
	Pool   int
}

// LeaderboardResult is one page of ranked rows plus the size of the
// candidate set they were drawn from.
type LeaderboardResult struct {
	Window          entities.Window          `json:"window"`
	Items           []entities.LeaderboardRow `json:"items"`
	TotalCandidates int64                    `json:"total_candidates"`
	Partial         bool                     `json:"partial,omitempty"`
}

// samplePoint is one shared (time, height) pair all candidates in a
// computation are valued at.
type samplePoint struct {
	Time   time.Time
	Height int64
}

// LeaderboardService ranks the most active traders by windowed trading
// performance. Candidates are valued at a shared set of sampled block
// heights with bounded concurrency; a whole-computation deadline yields
// partial rankings rather than failures.
type LeaderboardService struct {
	trades repositories.TradeRepository
	rows   repositories.LeaderboardRepository
	pnl    *PnlService
	height *HeightService
	cfg    config.LeaderboardConfig
	logger *zap.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	trades repositories.TradeRepository,
	rows repositories.LeaderboardRepository,
	pnl *PnlService,
	height *HeightService,
	cfg config.LeaderboardConfig,
	logger *zap.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		trades: trades,
		rows:   rows,
		pnl:    pnl,
		height: height,
		cfg:    cfg,
		logger: logger,
	}
}

// GetLeaders serves a leaderboard page. Persisted rows from the refresh
// cycle answer default queries; overrides force an on-demand computation
// bounded by the request deadline.
func (s *LeaderboardService) GetLeaders(ctx context.Context, query LeaderboardQuery) (*LeaderboardResult, error) {
	if query.MinAUM == 0 && query.Pool == 0 {
		count, err := s.rows.CountWindow(ctx, query.Window)
		if err != nil {
			return nil, fmt.Errorf("failed to count leaderboard rows: %w", err)
		}
		if count > 0 {
			items, err := s.rows.GetWindow(ctx, query.Window, query.Metric, query.Ascending, query.Limit, query.Offset)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch leaderboard rows: %w", err)
			}
			return &LeaderboardResult{
				Window:          query.Window,
				Items:           items,
				TotalCandidates: count,
			}, nil
		}
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestDeadline)
	defer cancel()

	computed, total, err := s.Compute(deadlineCtx, query.Window, query.Pool, query.MinAUM)
	if err != nil {
		return nil, err
	}

	partial := len(computed) < total && deadlineCtx.Err() != nil

	sortRows(computed, query.Metric, query.Ascending)

	items := paginate(computed, query.Limit, query.Offset)
	return &LeaderboardResult{
		Window:          query.Window,
		Items:           items,
		TotalCandidates: int64(total),
		Partial:         partial,
	}, nil
}

// Compute builds leaderboard rows for a window from scratch. pool and
// minAUM of 0 use the configured defaults. When ctx expires mid-flight
// the rows finished so far are returned; an empty candidate set is a
// valid empty result, not an error.
func (s *LeaderboardService) Compute(ctx context.Context, window entities.Window, pool int, minAUM float64) ([]entities.LeaderboardRow, int, error) {
	if pool <= 0 {
		pool = s.cfg.CandidatePool
	}
	if minAUM <= 0 {
		minAUM = s.cfg.MinAUM
	}

	traders, err := s.trades.GetTopTraders(ctx, pool)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch candidate traders: %w", err)
	}
	if len(traders) == 0 {
		return []entities.LeaderboardRow{}, 0, nil
	}

	addresses := make([]string, len(traders))
	for i, t := range traders {
		addresses[i] = t.Address
	}

	activity, err := s.trades.GetActivityCounters(ctx, addresses)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch activity counters: %w", err)
	}
	created, err := s.trades.GetCreatedCounts(ctx, addresses)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch created counts: %w", err)
	}
	holdings, err := s.trades.GetHoldingsCounts(ctx, addresses)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch holdings counts: %w", err)
	}

	samples, fromHeight, err := s.samplePoints(ctx, window, addresses)
	if err != nil {
		return nil, 0, err
	}
	if len(samples) == 0 {
		return []entities.LeaderboardRow{}, len(traders), nil
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := len(addresses)
	if queueSize < 16 {
		queueSize = 16
	}

	results := make([]*entities.LeaderboardRow, len(addresses))

	workerPool := pond.NewPool(workers, pond.WithQueueSize(queueSize))
	group := workerPool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i, address := range addresses {
		i, address := i, address
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			row, err := s.computeCandidate(groupCtx, window, address, fromHeight, samples)
			if err != nil {
				if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
					s.logger.Warn("Failed to compute leaderboard candidate",
						zap.String("address", address),
						zap.Error(err),
					)
				}
				return
			}
			results[i] = row
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, pond.ErrGroupStopped) {
		s.logger.Warn("Leaderboard computation group encountered error", zap.Error(err))
	}

	computedAt := time.Now().UTC()
	rows := make([]entities.LeaderboardRow, 0, len(results))
	for _, row := range results {
		if row == nil {
			continue
		}
		if row.AUM < minAUM {
			continue
		}
		counters := activity[row.Address]
		row.BuyCount = counters.BuyCount
		row.SellCount = counters.SellCount
		row.TokensCreated = created[row.Address]
		row.HoldingsCount = holdings[row.Address]
		row.ComputedAt = computedAt
		rows = append(rows, *row)
	}

	// Canonical rank is by PNL descending regardless of the requested
	// ordering; ties keep candidate-volume order.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Pnl > rows[j].Pnl
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}

	return rows, len(traders), nil
}

// computeCandidate values one address at every shared sample point and
// derives its windowed metrics. The final sample sits at the tip, so its
// valuation doubles as the row's current-state figures.
func (s *LeaderboardService) computeCandidate(ctx context.Context, window entities.Window, address string, fromHeight int64, samples []samplePoint) (*entities.LeaderboardRow, error) {
	series := make([]float64, len(samples))

	var last *PnlResult
	for i, sample := range samples {
		result, err := s.pnl.PnlAt(ctx, address, sample.Height+1, fromHeight)
		if err != nil {
			return nil, err
		}
		series[i] = result.Totals.CurrentValue
		last = result
	}

	row := &entities.LeaderboardRow{
		Window:         window,
		Address:        address,
		AUM:            last.Totals.CurrentValue,
		MaxDrawdownPct: maxDrawdownPct(series),
		ValueSeries:    series,
	}

	// Bounded windows measure the change in portfolio value across the
	// sampled series. Only the lifetime window reports cost-basis gain,
	// where the full ledger backs the basis.
	if window.Duration() > 0 {
		first := series[0]
		row.Pnl = series[len(series)-1] - first
		if first != 0 {
			row.RoiPct = row.Pnl / first * 100
		}
	} else {
		row.Pnl = last.Totals.Gain
		row.RoiPct = last.Totals.GainPct
	}
	return row, nil
}

// samplePoints resolves the shared sample heights for a window. Bounded
// windows span [now-duration, now]; the lifetime window starts at the
// candidates' earliest trade. Resolutions run sequentially so each one
// seeds the next search.
func (s *LeaderboardService) samplePoints(ctx context.Context, window entities.Window, addresses []string) ([]samplePoint, int64, error) {
	end := time.Now().UTC()
	var start time.Time

	if d := window.Duration(); d > 0 {
		start = end.Add(-d)
	} else {
		earliest, err := s.trades.GetEarliestTradeTime(ctx, addresses)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to find earliest trade: %w", err)
		}
		if earliest == nil {
			return nil, 0, nil
		}
		start = earliest.UTC()
	}
	if !start.Before(end) {
		start = end.Add(-time.Minute)
	}

	points := window.SamplePoints()
	step := end.Sub(start) / time.Duration(points-1)

	samples := make([]samplePoint, 0, points)
	var hint *HeightHint
	for i := 0; i < points; i++ {
		at := start.Add(step * time.Duration(i))
		if i == points-1 {
			at = end
		}
		height, err := s.height.Resolve(ctx, at, hint)
		if err != nil {
			return nil, 0, err
		}
		hint = &HeightHint{Height: height, Time: at}
		samples = append(samples, samplePoint{Time: at, Height: height})
	}

	// Bounded windows scope PNL to trades at or after the window's
	// opening height. The lifetime window replays everything.
	var fromHeight int64
	if window.Duration() > 0 {
		fromHeight = samples[0].Height
	}

	return samples, fromHeight, nil
}

// maxDrawdownPct returns the largest peak-to-trough decline across the
// series as a percentage of the peak, bounded to [0, 100].
func maxDrawdownPct(series []float64) float64 {
	var peak, maxDd float64
	for _, v := range series {
		if v > peak {
			peak = v
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > maxDd {
			maxDd = dd
		}
	}
	if maxDd > 100 {
		maxDd = 100
	}
	return maxDd
}

// sortRows orders rows by one metric in place, keeping canonical rank
// order for ties.
func sortRows(rows []entities.LeaderboardRow, metric entities.SortMetric, ascending bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := metric.Value(&rows[i]), metric.Value(&rows[j])
		if ascending {
			return a < b
		}
		return a > b
	})
}

func paginate(rows []entities.LeaderboardRow, limit, offset int) []entities.LeaderboardRow {
	if offset >= len(rows) {
		return []entities.LeaderboardRow{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}
