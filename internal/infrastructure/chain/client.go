package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/config"
	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// Client wraps the chain RPC client with retry logic. It exposes the
// three read-only lookups the analytics engine needs (tip, block at
// height, recent blocks) plus live native balances.
type Client struct {
	client  *ethclient.Client
	config  config.ChainConfig
	logger  *zap.Logger
	chainID *big.Int
}

// NewClient creates a new chain client
func NewClient(cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain node: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}

	logger.Info("Connected to chain node",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int64("chain_id", chainID.Int64()),
	)

	return &Client{
		client:  client,
		config:  cfg,
		logger:  logger,
		chainID: chainID,
	}, nil
}

// Close closes the chain client connection
func (c *Client) Close() {
	c.client.Close()
}

// HealthCheck verifies the node still answers RPC calls
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("chain node unreachable: %w", err)
	}
	return nil
}

// Tip returns the current chain tip as a (height, time) pair
func (c *Client) Tip(ctx context.Context) (entities.BlockRef, error) {
	header, err := c.headerWithRetry(ctx, nil)
	if err != nil {
		return entities.BlockRef{}, fmt.Errorf("failed to get chain tip: %w", err)
	}
	return refFromHeader(header), nil
}

// BlockAt returns the (height, time) pair for a single block. Heights
// beyond the tip error.
func (c *Client) BlockAt(ctx context.Context, height int64) (entities.BlockRef, error) {
	header, err := c.headerWithRetry(ctx, big.NewInt(height))
	if err != nil {
		return entities.BlockRef{}, fmt.Errorf("failed to get block %d: %w", height, err)
	}
	return refFromHeader(header), nil
}

// RecentBlocks returns the n most recent blocks, oldest first. Used for
// median inter-block interval estimation.
func (c *Client) RecentBlocks(ctx context.Context, n int) ([]entities.BlockRef, error) {
	tip, err := c.Tip(ctx)
	if err != nil {
		return nil, err
	}

	if int64(n) > tip.Height {
		n = int(tip.Height)
	}

	refs := make([]entities.BlockRef, 0, n)
	for h := tip.Height - int64(n) + 1; h < tip.Height; h++ {
		ref, err := c.BlockAt(ctx, h)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	refs = append(refs, tip)

	return refs, nil
}

// NativeBalance returns the current live native-coin balance for an
// address, in wei.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance *big.Int
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		balance, err = c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err == nil {
			return balance, nil
		}

		c.logger.Warn("Failed to get native balance, retrying",
			zap.String("address", address),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			time.Sleep(c.config.RetryDelay)
		}
	}

	return nil, fmt.Errorf("failed to get native balance for %s after %d retries: %w", address, c.config.MaxRetries, err)
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// headerWithRetry fetches a block header (nil = latest) with bounded retries
func (c *Client) headerWithRetry(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		header, err = c.client.HeaderByNumber(ctx, number)
		if err == nil {
			return header, nil
		}

		c.logger.Warn("Failed to get header, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			time.Sleep(c.config.RetryDelay)
		}
	}

	return nil, fmt.Errorf("failed to get header after %d retries: %w", c.config.MaxRetries, err)
}

func refFromHeader(h *types.Header) entities.BlockRef {
	return entities.BlockRef{
		Height: h.Number.Int64(),
		Time:   time.Unix(int64(h.Time), 0).UTC(),
	}
}
