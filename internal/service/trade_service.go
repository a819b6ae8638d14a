package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/notify"
)

// Notifier is the subset of notify.Notifier the services use.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradeService persists closed positions, audits them, publishes them on
// the "positions" channel and notifies operators.
type TradeService struct {
	trades   domain.TradeStore
	audit    domain.AuditStore
	signals  domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. Any dependency may be nil.
func NewTradeService(
	trades domain.TradeStore,
	audit domain.AuditStore,
	signals domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		audit:    audit,
		signals:  signals,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// RecordClose implements bot.TradeRecorder. It runs on the engine's
// goroutine, so every failure is logged rather than returned.
func (s *TradeService) RecordClose(ctx context.Context, bot domain.BotSummary, pos domain.Position) {
	ctx = context.WithoutCancel(ctx)
	rec := domain.TradeRecord{BotID: bot.ID, Pair: bot.Pair, Mode: bot.Mode, Position: pos}

	if s.trades != nil {
		if err := s.trades.Insert(ctx, rec); err != nil {
			s.logger.ErrorContext(ctx, "insert trade failed",
				slog.Int64("bot_id", bot.ID),
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "position_closed", map[string]any{
			"bot_id":      bot.ID,
			"pair":        bot.Pair,
			"position_id": pos.ID,
			"side":        string(pos.Side),
			"pnl":         pos.PnL,
			"equity":      bot.Equity,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.signals != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":    "position_closed",
			"bot_id":   bot.ID,
			"pair":     bot.Pair,
			"mode":     bot.Mode,
			"position": pos,
		})
		if err := s.signals.Publish(ctx, domain.ChannelPositions, evt); err != nil {
			s.logger.WarnContext(ctx, "publish position failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Only live closes are announced.
	if s.notifier != nil && bot.Mode == domain.BotModeLive {
		title, msg := notify.PositionClosedMessage(bot, pos)
		_ = s.notifier.Notify(ctx, notify.EventPositionClosed, title, msg)
	}
}

// ListByBot returns persisted trades for a bot, newest first.
func (s *TradeService) ListByBot(ctx context.Context, botID int64, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if s.trades == nil {
		return nil, fmt.Errorf("trade_service: %w: no trade store", domain.ErrNotFound)
	}
	recs, err := s.trades.ListByBot(ctx, botID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades for bot %d: %w", botID, err)
	}
	return recs, nil
}
