package services

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

const (
	// Tip and median-interval lookups are cached briefly; the chain tip
	// moves slowly relative to query volume.
	tipCacheTTL      = 5 * time.Minute
	intervalCacheTTL = 5 * time.Minute

	// Search window around the initial guess. Guesses for targets far in
	// the past are less reliable, so the window widens.
	nearWindowBlocks = 40
	farWindowBlocks  = 240

	// Targets within this horizon of the tip are resolved at second
	// precision; older targets are bucketed to end-of-day.
	nearHorizon = 48 * time.Hour

	// Number of recent blocks sampled for the median inter-block interval.
	intervalSampleBlocks = 32

	// Bound on the downward correction pass after the search converges.
	maxCorrectionSteps = 256
)

// HeightHint carries a previously resolved (height, time) pair from a
// sequential caller. Threading it explicitly keeps the resolver
// stateless, so independent callers can resolve in parallel.
type HeightHint struct {
	Height int64
	Time   time.Time
}

type cachedTip struct {
	ref       entities.BlockRef
	fetchedAt time.Time
}

type cachedInterval struct {
	interval  time.Duration
	fetchedAt time.Time
}

// HeightService resolves a wall-clock timestamp to the highest block
// height whose block time is at or before it. Resolution is monotonic
// in the target once chain data is fixed.
type HeightService struct {
	chain           ChainSource
	trades          repositories.TradeRepository
	logger          *zap.Logger
	defaultInterval time.Duration

	// Process-wide caches, refreshed by whichever caller sees them
	// expire first. A stale read costs an extra probe, never correctness.
	tip      atomic.Pointer[cachedTip]
	interval atomic.Pointer[cachedInterval]
}

// NewHeightService creates a new height resolver. trades may be nil when
// no local ledger is available for guess acceleration.
func NewHeightService(
	chain ChainSource,
	trades repositories.TradeRepository,
	defaultInterval time.Duration,
	logger *zap.Logger,
) *HeightService {
	if defaultInterval <= 0 {
		defaultInterval = 12 * time.Second
	}
	return &HeightService{
		chain:           chain,
		trades:          trades,
		logger:          logger,
		defaultInterval: defaultInterval,
	}
}

// Tip returns the cached chain tip, fetching it when the cache entry has
// expired
func (s *HeightService) Tip(ctx context.Context) (entities.BlockRef, error) {
	if cached := s.tip.Load(); cached != nil && time.Since(cached.fetchedAt) < tipCacheTTL {
		return cached.ref, nil
	}

	ref, err := s.chain.Tip(ctx)
	if err != nil {
		return entities.BlockRef{}, fmt.Errorf("failed to fetch chain tip: %w", err)
	}

	s.tip.Store(&cachedTip{ref: ref, fetchedAt: time.Now()})
	return ref, nil
}

// Resolve maps target to the highest block height whose time is at or
// before it. hint, when non-nil, seeds the initial guess from a
// previously resolved sample and should come from a smaller target.
func (s *HeightService) Resolve(ctx context.Context, target time.Time, hint *HeightHint) (int64, error) {
	tip, err := s.Tip(ctx)
	if err != nil {
		return 0, err
	}

	if !target.Before(tip.Time) {
		return tip.Height, nil
	}

	window := int64(nearWindowBlocks)
	if tip.Time.Sub(target) > nearHorizon {
		// Distant past: day-bucket the target, trading precision for
		// fewer probes on long ranges.
		target = endOfDay(target)
		window = farWindowBlocks
		if !target.Before(tip.Time) {
			return tip.Height, nil
		}
	}

	guess := s.guessHeight(ctx, target, tip, hint)
	if guess < 1 {
		guess = 1
	}
	if guess > tip.Height {
		guess = tip.Height
	}

	low := guess - window
	if low < 1 {
		low = 1
	}
	high := guess + window
	if high > tip.Height {
		high = tip.Height
	}

	// Binary search for the highest height in [low, high] whose block
	// time is at or before the target.
	for low < high {
		mid := (low + high + 1) / 2
		ref, err := s.chain.BlockAt(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ref.Time.After(target) {
			high = mid - 1
		} else {
			low = mid
		}
	}

	// Correction pass: the guess window may have started entirely past
	// the target, in which case the converged height still violates the
	// invariant. Step down until it holds.
	for steps := 0; low > 1; steps++ {
		if steps >= maxCorrectionSteps {
			return 0, fmt.Errorf("height resolution for %s did not converge near height %d", target, low)
		}
		ref, err := s.chain.BlockAt(ctx, low)
		if err != nil {
			return 0, err
		}
		if !ref.Time.After(target) {
			break
		}
		low--
	}

	return low, nil
}

// guessHeight picks the starting point for the search. A local ledger
// hit is exact; otherwise extrapolate linearly from the caller's hint or
// from the tip using the median inter-block interval.
func (s *HeightService) guessHeight(ctx context.Context, target time.Time, tip entities.BlockRef, hint *HeightHint) int64 {
	if s.trades != nil {
		latest, err := s.trades.GetLatestBefore(ctx, target)
		if err != nil {
			s.logger.Warn("Ledger guess lookup failed, falling back to extrapolation", zap.Error(err))
		} else if latest != nil {
			return latest.BlockNumber
		}
	}

	interval := s.medianInterval(ctx)

	if hint != nil && hint.Height > 0 && !hint.Time.IsZero() {
		return hint.Height + int64(target.Sub(hint.Time)/interval)
	}

	return tip.Height - int64(tip.Time.Sub(target)/interval)
}

// medianInterval returns the median spacing of recent blocks. Failures
// degrade to the configured default; guess quality suffers but
// resolution stays correct.
func (s *HeightService) medianInterval(ctx context.Context) time.Duration {
	if cached := s.interval.Load(); cached != nil && time.Since(cached.fetchedAt) < intervalCacheTTL {
		return cached.interval
	}

	refs, err := s.chain.RecentBlocks(ctx, intervalSampleBlocks)
	if err != nil {
		s.logger.Warn("Failed to sample recent blocks for median interval", zap.Error(err))
		return s.defaultInterval
	}
	if len(refs) < 2 {
		return s.defaultInterval
	}

	diffs := make([]time.Duration, 0, len(refs)-1)
	for i := 1; i < len(refs); i++ {
		diffs = append(diffs, refs[i].Time.Sub(refs[i-1].Time))
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })

	interval := diffs[len(diffs)/2]
	if interval <= 0 {
		interval = s.defaultInterval
	}

	s.interval.Store(&cachedInterval{interval: interval, fetchedAt: time.Now()})
	return interval
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
