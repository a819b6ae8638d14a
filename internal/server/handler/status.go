package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// BotLister lists the running bots.
type BotLister interface {
	List() []domain.BotSummary
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	bots      BotLister
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, bots BotLister) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, bots: bots}
}

// GetStatus reports mode, uptime and bot counts.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var live, backtest, open int
	var pnl float64
	for _, b := range h.bots.List() {
		if b.Mode == domain.BotModeBacktest {
			backtest++
		} else {
			live++
		}
		if b.Position != nil {
			open++
		}
		pnl += b.PnL
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"live_bots":      live,
		"backtest_bots":  backtest,
		"open_positions": open,
		"total_pnl":      pnl,
	})
}
