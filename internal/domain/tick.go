package domain

import (
	"context"
	"time"
)

// PriceTick is a pushed last-price update for one pair.
type PriceTick struct {
	Pair      string    `json:"pair"`
	LastPrice float64   `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceSource returns the current price for a pair on demand.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, pair string) (float64, error)
}

// HistRow is one row of a historical dataset. Signals are nil when the
// column was absent, "NaN" or not a number.
type HistRow struct {
	Close      float64
	CloseOK    bool
	Time       string
	LongCross  *float64
	ShortCross *float64
}
