package bot

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/sltp"
)

// Entry levels for the crossing signals of a replayed row.
const (
	LongEntryLevel  = -60.0
	ShortEntryLevel = 60.0
)

// replay walks the dataset in order. Cancellation is honoured at row
// boundaries. A position still open when the data runs out stays open.
func (e *Engine) replay(ctx context.Context) error {
	e.logger.InfoContext(ctx, "backtest started", slog.Int("rows", len(e.rows)))

	for _, row := range e.rows {
		if err := e.deps.Sleep(ctx, e.deps.Pacing); err != nil {
			e.logger.InfoContext(ctx, "backtest cancelled")
			return err
		}
		e.step(ctx, row)
	}

	e.finish(ctx)
	return nil
}

// step applies one historical row.
func (e *Engine) step(ctx context.Context, row domain.HistRow) {
	if !row.CloseOK {
		return
	}

	pos := e.currentPosition()
	if pos == nil {
		if side, ok := entrySignal(row); ok {
			e.open(ctx, side, row.Close, row.Time)
		}
		return
	}

	if !sltp.ShouldClose(pos.Side, pos.OpenPrice, e.th, row.Close) {
		return
	}
	if closed, h, ok := e.closeAt(pos.ID, row.Close, row.Time); ok {
		e.afterClose(ctx, closed, h)
	}
}

// entrySignal checks LONG first so a row qualifying both ways opens LONG.
func entrySignal(row domain.HistRow) (domain.Side, bool) {
	if row.LongCross != nil && *row.LongCross < LongEntryLevel {
		return domain.SideLong, true
	}
	if row.ShortCross != nil && *row.ShortCross > ShortEntryLevel {
		return domain.SideShort, true
	}
	return "", false
}

func (e *Engine) finish(ctx context.Context) {
	summary := e.Summary()
	e.record(ctx, domain.LogSuccess, "Backtest finished", map[string]any{
		"rows":         len(e.rows),
		"txs":          summary.TradeCount,
		"equity":       summary.Equity,
		"pnl":          summary.PnL,
		"openPosition": summary.Position != nil,
	})
	if e.deps.Listener != nil {
		e.deps.Listener.BacktestFinished(ctx, e.Summary(), e.Trades())
	}
}
