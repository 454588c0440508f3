package entities

import "time"

// BlockRef is a (height, time) pair sourced from the chain. Both fields
// are monotonically increasing and treated as authoritative.
type BlockRef struct {
	Height int64     `json:"height"`
	Time   time.Time `json:"time"`
}
