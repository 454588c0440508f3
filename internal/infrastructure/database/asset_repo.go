package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
	"github.com/bimakw/curve-analytics/internal/domain/repositories"
)

// Ensure AssetRepo implements AssetRepository
var _ repositories.AssetRepository = (*AssetRepo)(nil)

// AssetRepo implements AssetRepository using PostgreSQL
type AssetRepo struct {
	db *sqlx.DB
}

// NewAssetRepo creates a new asset repository
func NewAssetRepo(db *sqlx.DB) *AssetRepo {
	return &AssetRepo{db: db}
}

// GetByAddress retrieves an asset by its address
func (r *AssetRepo) GetByAddress(ctx context.Context, address string) (*entities.Asset, error) {
	var asset entities.Asset
	query := `SELECT * FROM assets WHERE address = $1`

	if err := r.db.GetContext(ctx, &asset, query, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}

// GetByAddresses retrieves assets for all given addresses in one query
func (r *AssetRepo) GetByAddresses(ctx context.Context, addresses []string) (map[string]entities.Asset, error) {
	result := make(map[string]entities.Asset, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	var assets []entities.Asset
	query := `SELECT * FROM assets WHERE address = ANY($1)`

	if err := r.db.SelectContext(ctx, &assets, query, pq.Array(addresses)); err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}

	for _, a := range assets {
		result[a.Address] = a
	}

	return result, nil
}

// Upsert creates or updates an asset
func (r *AssetRepo) Upsert(ctx context.Context, asset *entities.Asset) error {
	query := `
		INSERT INTO assets (address, name, symbol, decimals, creator, created_block)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		asset.Address,
		asset.Name,
		asset.Symbol,
		asset.Decimals,
		asset.Creator,
		asset.CreatedBlock,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}

	return nil
}
