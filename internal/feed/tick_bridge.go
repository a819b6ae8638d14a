package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/alertbot/internal/bus"
	"github.com/alanyoungcy/alertbot/internal/domain"
)

// TickPublisher is the in-process side of the bridge.
type TickPublisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// TickBridge subscribes to the "prices" Redis channel and republishes every
// decoded tick on the in-process bus, where live bots' SL/TP triggers listen.
type TickBridge struct {
	signals domain.SignalBus
	local   TickPublisher
	logger  *slog.Logger
}

// NewTickBridge creates a TickBridge.
func NewTickBridge(signals domain.SignalBus, local TickPublisher, logger *slog.Logger) *TickBridge {
	return &TickBridge{
		signals: signals,
		local:   local,
		logger:  logger.With(slog.String("component", "tick_bridge")),
	}
}

// Run forwards ticks until ctx is cancelled or the subscription closes.
func (b *TickBridge) Run(ctx context.Context) error {
	ch, err := b.signals.Subscribe(ctx, domain.ChannelPrices)
	if err != nil {
		return err
	}
	b.logger.Info("tick bridge started")
	defer b.logger.Info("tick bridge stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.handleMessage(ctx, data); err != nil {
				b.logger.Debug("tick bridge handle message failed",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

func (b *TickBridge) handleMessage(ctx context.Context, data []byte) error {
	var tick domain.PriceTick
	if err := json.Unmarshal(data, &tick); err != nil {
		return err
	}
	tick.Pair = strings.TrimSpace(tick.Pair)
	if tick.Pair == "" || tick.LastPrice <= 0 {
		return nil
	}
	b.local.Publish(ctx, bus.TopicPriceTick, tick)
	return nil
}
