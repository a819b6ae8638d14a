package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// LogStore implements domain.LogStore on the bot_logs table.
type LogStore struct {
	pool *pgxpool.Pool
}

// NewLogStore creates a LogStore.
func NewLogStore(pool *pgxpool.Pool) *LogStore {
	return &LogStore{pool: pool}
}

// Append inserts one entry. Entries without an ID get a fresh one; a
// repeated ID is ignored.
func (s *LogStore) Append(ctx context.Context, e domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	var payload []byte
	if len(e.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("postgres: marshal log payload: %w", err)
		}
	}

	const query = `
		INSERT INTO bot_logs (id, bot_id, source, kind, message, payload, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query,
		e.ID, e.BotID, e.Source, string(e.Kind), e.Message, payload, e.Time,
	); err != nil {
		return fmt.Errorf("postgres: append log %s: %w", e.Source, err)
	}
	return nil
}

// ListBySource returns entries for one "<pair>-<id>" source, newest first.
func (s *LogStore) ListBySource(ctx context.Context, source string, opts domain.ListOpts) ([]domain.LogEntry, error) {
	q := newListQuery(`SELECT id, bot_id, source, kind, message, payload, logged_at
		FROM bot_logs WHERE source = $1`, source)
	q.apply("logged_at", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list logs %s: %w", source, err)
	}
	defer rows.Close()

	var out []domain.LogEntry
	for rows.Next() {
		var (
			e       domain.LogEntry
			id      uuid.UUID
			kind    string
			payload []byte
		)
		if err := rows.Scan(&id, &e.BotID, &e.Source, &kind, &e.Message, &payload, &e.Time); err != nil {
			return nil, fmt.Errorf("postgres: scan log: %w", err)
		}
		e.ID = id.String()
		e.Kind = domain.LogKind(kind)
		if payload != nil {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal log payload: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list logs rows: %w", err)
	}
	return out, nil
}
