package entities

import "time"

// Asset represents one bonding-curve token observed on chain
type Asset struct {
	Address      string    `db:"address" json:"address"`
	Name         string    `db:"name" json:"name"`
	Symbol       string    `db:"symbol" json:"symbol"`
	Decimals     int       `db:"decimals" json:"decimals"`
	Creator      string    `db:"creator" json:"creator"`
	CreatedBlock int64     `db:"created_block" json:"created_block"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
