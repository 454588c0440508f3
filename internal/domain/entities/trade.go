package entities

import (
	"math/big"
	"time"
)

// TradeAction is the kind of on-chain action a ledger entry records.
type TradeAction string

const (
	ActionCreate TradeAction = "create"
	ActionBuy    TradeAction = "buy"
	ActionSell   TradeAction = "sell"
)

// Trade is one immutable ledger entry: a single bonding-curve action
// for one address and one asset. Entries are append-only; the ingestion
// pipeline may deliver them out of order, so downstream replay never
// assumes per-entry balance consistency.
type Trade struct {
	ID             int64       `db:"id" json:"id"`
	TxHash         string      `db:"tx_hash" json:"tx_hash"`
	Address        string      `db:"address" json:"address"`
	AssetAddress   string      `db:"asset_address" json:"asset_address"`
	Action         TradeAction `db:"action" json:"action"`
	BlockNumber    int64       `db:"block_number" json:"block_number"`
	BlockTimestamp time.Time   `db:"block_timestamp" json:"block_timestamp"`
	UnitVolume     string      `db:"unit_volume" json:"unit_volume"` // raw asset base units
	CoinAmount     string      `db:"coin_amount" json:"coin_amount"` // raw native coin (wei)
	PriceCoin      float64     `db:"price_coin" json:"price_coin"`   // coin per unit at trade time
	PriceUSD       float64     `db:"price_usd" json:"price_usd"`     // USD per unit at trade time
	Supply         string      `db:"supply" json:"supply"`           // asset supply after the trade
	Decimals       int         `db:"decimals" json:"decimals"`
	Verified       bool        `db:"verified" json:"verified"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// IsAcquisition reports whether the entry adds to the actor's holdings.
// Creating an asset mints the creator's initial allocation.
func (t *Trade) IsAcquisition() bool {
	return t.Action == ActionBuy || t.Action == ActionCreate
}

// UnitVolumeFloat parses the raw unit volume and normalizes it by the
// asset's decimal precision. Returns false when the stored value is not
// a valid number.
func (t *Trade) UnitVolumeFloat() (float64, bool) {
	return normalizeUnits(t.UnitVolume, t.Decimals)
}

// CoinAmountFloat parses the raw coin amount and normalizes it to
// whole-coin scale. Returns false when the stored value is not a valid
// number.
func (t *Trade) CoinAmountFloat() (float64, bool) {
	return normalizeUnits(t.CoinAmount, CoinDecimals)
}

// CoinDecimals is the native coin's decimal precision.
const CoinDecimals = 18

func normalizeUnits(raw string, decimals int) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0, false
	}
	if decimals > 0 {
		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		v.Quo(v, scale)
	}
	f, _ := v.Float64()
	return f, true
}

// TradeFilter describes a ledger query. Zero values mean "no constraint";
// Limit 0 means unbounded.
type TradeFilter struct {
	Address      *string
	AssetAddress *string
	Action       *TradeAction
	FromBlock    *int64
	ToBlock      *int64
	FromTime     *time.Time
	ToTime       *time.Time
	Ascending    bool
	Limit        int
	Offset       int
}
