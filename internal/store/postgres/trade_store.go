package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// TradeStore implements domain.TradeStore on the trades table.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert stores a closed position. Re-inserting the same position is a
// no-op.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	p := rec.Position
	if p.Status != domain.PositionStatusClosed {
		return fmt.Errorf("postgres: insert trade %s: position is %s", p.ID, p.Status)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("postgres: insert trade %s: unknown side %q", p.ID, p.Side)
	}
	closedAt := time.Now().UTC()
	if p.ClosedAt != nil {
		closedAt = *p.ClosedAt
	}

	const query = `
		INSERT INTO trades (
			position_id, bot_id, pair, mode, side, amount, leverage,
			open_price, close_price, equity_at_open, pnl,
			open_time, close_time, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (position_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query,
		p.ID, rec.BotID, rec.Pair, string(rec.Mode), string(p.Side), p.Amount, p.Leverage,
		p.OpenPrice, p.ClosePrice, p.EquityAtOpen, p.PnL,
		nullable(p.OpenTime), nullable(p.CloseTime), p.OpenedAt, closedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", p.ID, err)
	}
	return nil
}

// ListByBot returns a bot's closed positions, most recently closed first.
func (s *TradeStore) ListByBot(ctx context.Context, botID int64, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	q := newListQuery(`SELECT position_id, bot_id, pair, mode, side, amount, leverage,
			open_price, close_price, equity_at_open, pnl,
			open_time, close_time, opened_at, closed_at
		FROM trades WHERE bot_id = $1`, botID)
	q.apply("closed_at", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for bot %d: %w", botID, err)
	}
	defer rows.Close()

	recs, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return recs, nil
}

func scanTrades(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var (
			rec                 domain.TradeRecord
			id                  uuid.UUID
			mode, side          string
			openTime, closeTime *string
			closedAt            time.Time
		)
		p := &rec.Position
		if err := rows.Scan(
			&id, &rec.BotID, &rec.Pair, &mode, &side, &p.Amount, &p.Leverage,
			&p.OpenPrice, &p.ClosePrice, &p.EquityAtOpen, &p.PnL,
			&openTime, &closeTime, &p.OpenedAt, &closedAt,
		); err != nil {
			return nil, err
		}
		p.ID = id.String()
		rec.Mode = domain.BotMode(mode)
		p.Side = domain.Side(side)
		if !p.Side.Valid() {
			return nil, fmt.Errorf("trade %s: unknown side %q", p.ID, side)
		}
		p.Status = domain.PositionStatusClosed
		p.ClosedAt = &closedAt
		if openTime != nil {
			p.OpenTime = *openTime
		}
		if closeTime != nil {
			p.CloseTime = *closeTime
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
