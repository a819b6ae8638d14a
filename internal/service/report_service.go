package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/histdata"
	"github.com/alanyoungcy/alertbot/internal/notify"
)

// ReportService stores a finished backtest's trades as CSV in object
// storage and announces the result.
type ReportService struct {
	writer   domain.BlobWriter
	prefix   string
	audit    domain.AuditStore
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewReportService creates a ReportService. writer may be nil, in which
// case only the summary is logged.
func NewReportService(
	writer domain.BlobWriter,
	prefix string,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *ReportService {
	return &ReportService{
		writer:   writer,
		prefix:   prefix,
		audit:    audit,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "report_service")),
	}
}

// ReportPath is the object key for a bot's report.
func (s *ReportService) ReportPath(bot domain.BotSummary) string {
	name := fmt.Sprintf("%s-%d.csv", domain.LogSource(bot.Pair, bot.ID), s.now().Unix())
	return path.Join(s.prefix, name)
}

// ReportBacktest implements bot.BacktestReporter.
func (s *ReportService) ReportBacktest(ctx context.Context, bot domain.BotSummary, trades []domain.Position) {
	ctx = context.WithoutCancel(ctx)
	s.logger.InfoContext(ctx, "backtest finished",
		slog.Int64("bot_id", bot.ID),
		slog.String("pair", bot.Pair),
		slog.Int("trades", len(trades)),
		slog.Float64("pnl", bot.PnL),
		slog.Float64("equity", bot.Equity),
	)

	key := ""
	if s.writer != nil {
		var err error
		key, err = s.write(ctx, bot, trades)
		if err != nil {
			s.logger.ErrorContext(ctx, "write report failed",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", err.Error()),
			)
			key = ""
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "backtest_finished", map[string]any{
			"bot_id": bot.ID,
			"pair":   bot.Pair,
			"trades": len(trades),
			"pnl":    bot.PnL,
			"report": key,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		title, msg := notify.BacktestFinishedMessage(bot, trades)
		if key != "" {
			msg += "\nreport: " + key
		}
		_ = s.notifier.Notify(ctx, notify.EventBacktestFinished, title, msg)
	}
}

func (s *ReportService) write(ctx context.Context, bot domain.BotSummary, trades []domain.Position) (string, error) {
	data, err := histdata.TradesCSV(trades, bot.InitAmount)
	if err != nil {
		return "", err
	}
	key := s.ReportPath(bot)
	if err := s.writer.Put(ctx, key, bytes.NewReader(data), "text/csv"); err != nil {
		return "", fmt.Errorf("report_service: put %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "report written", slog.String("key", key), slog.Int("bytes", len(data)))
	return key, nil
}
