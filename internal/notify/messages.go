package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// PositionClosedMessage formats a closed position for chat.
func PositionClosedMessage(bot domain.BotSummary, pos domain.Position) (title, message string) {
	title = fmt.Sprintf("%s closed %s %s", domain.LogSource(bot.Pair, bot.ID), pos.Side, bot.Pair)
	var b strings.Builder
	fmt.Fprintf(&b, "open %s  close %s\n", formatPrice(pos.OpenPrice), formatPrice(pos.ClosePrice))
	fmt.Fprintf(&b, "pnl %+.2f  equity %.2f  trades %d", pos.PnL, bot.Equity, bot.TradeCount)
	if bot.Mode == domain.BotModeBacktest {
		b.WriteString("\n(backtest)")
	}
	return title, b.String()
}

// BacktestFinishedMessage summarizes a finished replay.
func BacktestFinishedMessage(bot domain.BotSummary, trades []domain.Position) (title, message string) {
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	title = fmt.Sprintf("Backtest %s finished", domain.LogSource(bot.Pair, bot.ID))
	message = fmt.Sprintf("trades %d (won %d)  pnl %+.2f  equity %.2f", len(trades), wins, bot.PnL, bot.Equity)
	if bot.Position != nil {
		message += fmt.Sprintf("\nleft open: %s @ %s", bot.Position.Side, formatPrice(bot.Position.OpenPrice))
	}
	return title, message
}

func formatPrice(p float64) string {
	s := fmt.Sprintf("%.8f", p)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
