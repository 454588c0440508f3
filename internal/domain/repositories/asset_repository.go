package repositories

import (
	"context"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// AssetRepository defines the interface for asset metadata operations
type AssetRepository interface {
	// GetByAddress retrieves an asset by its address
	GetByAddress(ctx context.Context, address string) (*entities.Asset, error)

	// GetByAddresses retrieves assets for all given addresses in one query
	GetByAddresses(ctx context.Context, addresses []string) (map[string]entities.Asset, error)

	// Upsert creates or updates an asset
	Upsert(ctx context.Context, asset *entities.Asset) error
}
