package services

import (
	"context"
	"math/big"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// ChainSource is the read-only chain data dependency of the analytics
// services. All lookups are idempotent and safe to cache briefly.
type ChainSource interface {
	// Tip returns the current chain tip
	Tip(ctx context.Context) (entities.BlockRef, error)

	// BlockAt returns the block at a height, erroring beyond the tip
	BlockAt(ctx context.Context, height int64) (entities.BlockRef, error)

	// RecentBlocks returns the n most recent blocks, oldest first
	RecentBlocks(ctx context.Context, n int) ([]entities.BlockRef, error)

	// NativeBalance returns the current native-coin balance in wei
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
}
