package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position is a single simulated trade owned by one bot. Close fields are
// zero while Status is OPEN and are set exactly once by Close.
type Position struct {
	ID           string         `json:"id"`
	Side         Side           `json:"side"`
	Amount       float64        `json:"amount"`
	OpenPrice    float64        `json:"open_price"`
	EquityAtOpen float64        `json:"equity_at_open"`
	Leverage     float64        `json:"leverage"`
	OpenTime     string         `json:"open_time,omitempty"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosePrice   float64        `json:"close_price,omitempty"`
	CloseTime    string         `json:"close_time,omitempty"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	PnL          float64        `json:"pnl"`
	Status       PositionStatus `json:"status"`
}

// OpenPosition creates a new OPEN position. Callers guarantee amount > 0 and
// price > 0. openTime is the replay timestamp and may be empty in live mode.
func OpenPosition(side Side, amount, price, equityAtOpen, leverage float64, openTime string, at time.Time) *Position {
	return &Position{
		ID:           uuid.New().String(),
		Side:         side,
		Amount:       amount,
		OpenPrice:    price,
		EquityAtOpen: equityAtOpen,
		Leverage:     leverage,
		OpenTime:     openTime,
		OpenedAt:     at,
		Status:       PositionStatusOpen,
	}
}

// IsOpen reports whether the position has not been closed yet.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// Close settles the position at price and returns the realized PnL.
func (p *Position) Close(price float64, closeTime string, at time.Time) (float64, error) {
	if p.Status != PositionStatusOpen {
		return 0, ErrPositionClosed
	}
	p.ClosePrice = price
	p.CloseTime = closeTime
	p.ClosedAt = &at
	p.PnL = PnLAt(p.Side, p.Amount, p.Leverage, p.OpenPrice, price)
	p.Status = PositionStatusClosed
	return p.PnL, nil
}

// UnrealizedPnL marks an open position to price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Status != PositionStatusOpen {
		return 0
	}
	return PnLAt(p.Side, p.Amount, p.Leverage, p.OpenPrice, price)
}

// PnLAt is amount × leverage × (close − open) / open, sign-inverted for SHORT.
// Leverage scales the notional, so a 1x position of 100 that moves 11% earns 11.
func PnLAt(side Side, amount, leverage, open, close float64) float64 {
	if open == 0 {
		return 0
	}
	return side.Sign() * amount * leverage * (close - open) / open
}
