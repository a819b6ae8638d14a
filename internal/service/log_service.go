package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

const logWriteTimeout = 3 * time.Second

// LogService is the external log sink for bot engines. Every entry goes to
// the Postgres bot_logs table, the Redis bot_logs stream and the bot_logs
// pub/sub channel. Failures are logged and swallowed so a storage outage
// never stalls an engine.
type LogService struct {
	store   domain.LogStore
	signals domain.SignalBus
	logger  *slog.Logger
}

// NewLogService creates a LogService. Either backend may be nil.
func NewLogService(store domain.LogStore, signals domain.SignalBus, logger *slog.Logger) *LogService {
	return &LogService{
		store:   store,
		signals: signals,
		logger:  logger.With(slog.String("component", "log_service")),
	}
}

// Append implements bot.LogSink.
func (s *LogService) Append(ctx context.Context, entry domain.LogEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.Append(ctx, entry); err != nil {
			s.warn(ctx, "store append failed", entry, err)
		}
	}
	if s.signals == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.warn(ctx, "marshal entry failed", entry, err)
		return
	}
	if err := s.signals.StreamAppend(ctx, domain.StreamBotLogs, data); err != nil {
		s.warn(ctx, "stream append failed", entry, err)
	}
	if err := s.signals.Publish(ctx, domain.ChannelBotLogs, data); err != nil {
		s.warn(ctx, "publish failed", entry, err)
	}
}

// History returns persisted entries for one "<pair>-<id>" source, newest
// first.
func (s *LogService) History(ctx context.Context, source string, opts domain.ListOpts) ([]domain.LogEntry, error) {
	if s.store == nil {
		return nil, fmt.Errorf("log_service: %w: no log store", domain.ErrNotFound)
	}
	entries, err := s.store.ListBySource(ctx, source, opts)
	if err != nil {
		return nil, fmt.Errorf("log_service: list %s: %w", source, err)
	}
	return entries, nil
}

// Recent reads up to count entries from the bot_logs stream after lastID
// ("0" for the beginning).
func (s *LogService) Recent(ctx context.Context, lastID string, count int) ([]domain.LogEntry, string, error) {
	if s.signals == nil {
		return nil, lastID, nil
	}
	msgs, err := s.signals.StreamRead(ctx, domain.StreamBotLogs, lastID, count)
	if err != nil {
		return nil, lastID, fmt.Errorf("log_service: read stream: %w", err)
	}
	out := make([]domain.LogEntry, 0, len(msgs))
	for _, m := range msgs {
		var e domain.LogEntry
		if err := json.Unmarshal(m.Payload, &e); err != nil {
			continue
		}
		out = append(out, e)
		lastID = m.ID
	}
	return out, lastID, nil
}

func (s *LogService) warn(ctx context.Context, msg string, entry domain.LogEntry, err error) {
	s.logger.WarnContext(ctx, msg,
		slog.String("source", entry.Source),
		slog.String("error", err.Error()),
	)
}
