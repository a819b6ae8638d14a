package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// RosterPublisher pushes the full bot list to the "bots" channel whenever
// the registry changes or a position closes.
type RosterPublisher struct {
	signals domain.SignalBus
	logger  *slog.Logger
}

// NewRosterPublisher creates a RosterPublisher.
func NewRosterPublisher(signals domain.SignalBus, logger *slog.Logger) *RosterPublisher {
	return &RosterPublisher{
		signals: signals,
		logger:  logger.With(slog.String("component", "roster")),
	}
}

// BroadcastRoster implements bot.RosterBroadcaster.
func (p *RosterPublisher) BroadcastRoster(ctx context.Context, bots []domain.BotSummary) {
	if bots == nil {
		bots = []domain.BotSummary{}
	}
	data, err := json.Marshal(bots)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal roster failed", slog.String("error", err.Error()))
		return
	}
	if err := p.signals.Publish(context.WithoutCancel(ctx), domain.ChannelBots, data); err != nil {
		p.logger.WarnContext(ctx, "publish roster failed",
			slog.Int("bots", len(bots)),
			slog.String("error", err.Error()),
		)
	}
}
