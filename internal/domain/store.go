package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LogStore is the external append-only sink for bot log entries.
type LogStore interface {
	Append(ctx context.Context, entry LogEntry) error
	ListBySource(ctx context.Context, source string, opts ListOpts) ([]LogEntry, error)
}

// TradeRecord is a closed position persisted with its owning bot.
type TradeRecord struct {
	BotID    int64    `json:"bot_id"`
	Pair     string   `json:"pair"`
	Mode     BotMode  `json:"mode"`
	Position Position `json:"position"`
}

// TradeStore persists closed positions.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListByBot(ctx context.Context, botID int64, opts ListOpts) ([]TradeRecord, error)
}

// AuditEntry is an immutable audit log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists audit events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
