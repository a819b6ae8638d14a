package bot

import (
	"context"
	"strings"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/sltp"
)

// trigger guards one open position. Its fields are fixed when the position
// opens, so Handle can run on any publisher goroutine without touching
// engine state; a crossing only asks the owning engine to close.
type trigger struct {
	positionID string
	pair       string
	side       domain.Side
	openPrice  float64
	thresholds sltp.Thresholds
	owner      *Engine
}

func newTrigger(e *Engine, pos domain.Position) *trigger {
	return &trigger{
		positionID: pos.ID,
		pair:       e.cfg.Pair,
		side:       pos.Side,
		openPrice:  pos.OpenPrice,
		thresholds: e.th,
		owner:      e,
	}
}

// Handle implements bus.Handler for domain.PriceTick payloads.
func (t *trigger) Handle(_ context.Context, payload any) {
	tick, ok := payload.(domain.PriceTick)
	if !ok || !strings.EqualFold(tick.Pair, t.pair) || tick.LastPrice <= 0 {
		return
	}
	if !sltp.ShouldClose(t.side, t.openPrice, t.thresholds, tick.LastPrice) {
		return
	}
	t.owner.requestClose(closeRequest{
		positionID: t.positionID,
		price:      tick.LastPrice,
	})
}
