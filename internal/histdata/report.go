package histdata

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

var reportHeader = []string{
	"position_id", "side", "amount", "leverage", "open_price", "open_time",
	"close_price", "close_time", "pnl", "equity_at_open", "equity_after",
}

// TradesCSV renders closed positions as CSV with a running equity column
// starting from initial.
func TradesCSV(trades []domain.Position, initial float64) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(reportHeader); err != nil {
		return nil, fmt.Errorf("histdata: write report header: %w", err)
	}

	equity := initial
	for _, p := range trades {
		equity += p.PnL
		row := []string{
			p.ID,
			string(p.Side),
			formatF(p.Amount),
			formatF(p.Leverage),
			formatF(p.OpenPrice),
			timeOr(p.OpenTime, p.OpenedAt),
			formatF(p.ClosePrice),
			closeTime(p),
			formatF(p.PnL),
			formatF(p.EquityAtOpen),
			formatF(equity),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("histdata: write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("histdata: flush report: %w", err)
	}
	return buf.Bytes(), nil
}

func closeTime(p domain.Position) string {
	if p.ClosedAt == nil {
		return p.CloseTime
	}
	return timeOr(p.CloseTime, *p.ClosedAt)
}

func timeOr(replay string, wall time.Time) string {
	if replay != "" {
		return replay
	}
	return wall.UTC().Format(time.RFC3339)
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
