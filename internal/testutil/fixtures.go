package testutil

import (
	"fmt"
	"time"

	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// Common test addresses
const (
	AliceAddress = "0x1111111111111111111111111111111111111111"
	BobAddress   = "0x2222222222222222222222222222222222222222"
	CharlieAddr  = "0x3333333333333333333333333333333333333333"

	AssetAlpha = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	AssetBeta  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// GenesisTime anchors fixture timestamps so tests can reason about
// offsets instead of absolute dates
var GenesisTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// CreateTestTrade creates a test trade with default values
func CreateTestTrade(opts ...TradeOption) entities.Trade {
	t := entities.Trade{
		TxHash:         "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Address:        AliceAddress,
		AssetAddress:   AssetAlpha,
		Action:         entities.ActionBuy,
		BlockNumber:    12345678,
		BlockTimestamp: GenesisTime,
		UnitVolume:     "100000000000000000000", // 100 units at 18 decimals
		CoinAmount:     "1000000000000000000",   // 1 coin
		PriceCoin:      0.01,
		PriceUSD:       0.02,
		Supply:         "1000000000000000000000000",
		Decimals:       18,
		Verified:       true,
		CreatedAt:      time.Now(),
	}

	for _, opt := range opts {
		opt(&t)
	}

	return t
}

type TradeOption func(*entities.Trade)

func WithTxHash(hash string) TradeOption {
	return func(t *entities.Trade) {
		t.TxHash = hash
	}
}

func WithAddress(addr string) TradeOption {
	return func(t *entities.Trade) {
		t.Address = addr
	}
}

func WithAssetAddress(addr string) TradeOption {
	return func(t *entities.Trade) {
		t.AssetAddress = addr
	}
}

func WithAction(action entities.TradeAction) TradeOption {
	return func(t *entities.Trade) {
		t.Action = action
	}
}

func WithBlockNumber(num int64) TradeOption {
	return func(t *entities.Trade) {
		t.BlockNumber = num
	}
}

func WithBlockTimestamp(ts time.Time) TradeOption {
	return func(t *entities.Trade) {
		t.BlockTimestamp = ts
	}
}

func WithUnitVolume(volume string) TradeOption {
	return func(t *entities.Trade) {
		t.UnitVolume = volume
	}
}

func WithCoinAmount(amount string) TradeOption {
	return func(t *entities.Trade) {
		t.CoinAmount = amount
	}
}

func WithPriceCoin(price float64) TradeOption {
	return func(t *entities.Trade) {
		t.PriceCoin = price
	}
}

func WithPriceUSD(price float64) TradeOption {
	return func(t *entities.Trade) {
		t.PriceUSD = price
	}
}

// Units renders a whole-unit amount as a raw 18-decimal string
func Units(n int64) string {
	return fmt.Sprintf("%d000000000000000000", n)
}

// CreateTestAsset creates a test asset with default values
func CreateTestAsset(address string) entities.Asset {
	return entities.Asset{
		Address:      address,
		Name:         "Test Asset",
		Symbol:       "TST",
		Decimals:     18,
		Creator:      AliceAddress,
		CreatedBlock: 12345600,
		CreatedAt:    GenesisTime,
		UpdatedAt:    GenesisTime,
	}
}

// CreateTestRow creates a persisted leaderboard row with default values
func CreateTestRow(window entities.Window, rank int, address string, pnl float64) entities.LeaderboardRow {
	return entities.LeaderboardRow{
		Window:         window,
		Rank:           rank,
		Address:        address,
		AUM:            100,
		Pnl:            pnl,
		RoiPct:         10,
		MaxDrawdownPct: 5,
		BuyCount:       3,
		SellCount:      1,
		TokensCreated:  0,
		HoldingsCount:  2,
		ValueSeries:    []float64{90, 95, 100},
		ComputedAt:     GenesisTime,
	}
}
