// Package sltp decides when a position must be closed by its stop-loss or
// take-profit bound. It is used by both live triggers and backtest replay.
package sltp

import (
	"math"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// Thresholds are fractional distances from the open price. A nil fraction
// disables its bound.
type Thresholds struct {
	SL *float64
	TP *float64
}

// FromConfig extracts thresholds from a bot's SL/TP settings.
func FromConfig(c domain.SLTP) Thresholds {
	return Thresholds{SL: c.SL, TP: c.TP}
}

// Configured reports whether at least one bound is set.
func (t Thresholds) Configured() bool {
	return t.SL != nil || t.TP != nil
}

// Bounds returns the stop and take prices for a position. Absent fractions
// yield an infinite bound on the side that can never be crossed.
func Bounds(side domain.Side, openPrice float64, t Thresholds) (stop, take float64) {
	switch side {
	case domain.SideShort:
		stop, take = math.Inf(1), math.Inf(-1)
		if t.SL != nil {
			stop = openPrice * (1 + *t.SL)
		}
		if t.TP != nil {
			take = openPrice * (1 - *t.TP)
		}
	default:
		stop, take = math.Inf(-1), math.Inf(1)
		if t.SL != nil {
			stop = openPrice * (1 - *t.SL)
		}
		if t.TP != nil {
			take = openPrice * (1 + *t.TP)
		}
	}
	return stop, take
}

// ShouldClose reports whether price has strictly crossed either bound.
func ShouldClose(side domain.Side, openPrice float64, t Thresholds, price float64) bool {
	stop, take := Bounds(side, openPrice, t)
	if side == domain.SideShort {
		return price > stop || price < take
	}
	return price < stop || price > take
}
