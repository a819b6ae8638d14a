// Package bot runs the position lifecycle of alert-driven trading bots.
//
// Each Engine owns at most one open position. In LIVE mode it opens on
// external alerts and closes when a trigger subscribed to the price-tick
// topic sees the stop-loss or take-profit bound crossed. In BACKTEST mode it
// replays a historical dataset row by row using the same SL/TP evaluator.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/alertbot/internal/bus"
	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/sltp"
)

const defaultInboxSize = 64

// ErrStopped is returned when an event is sent to an engine that has exited.
var ErrStopped = errors.New("bot: engine stopped")

// Listener is notified after state changes have been committed.
type Listener interface {
	PositionClosed(ctx context.Context, bot domain.BotSummary, pos domain.Position)
	BacktestFinished(ctx context.Context, bot domain.BotSummary, trades []domain.Position)
}

// LogSink receives every log entry a bot writes. Implementations must not
// block for long and must not call back into the engine.
type LogSink interface {
	Append(ctx context.Context, entry domain.LogEntry)
}

// TriggerBus is the subset of the tick bus an engine needs.
type TriggerBus interface {
	Subscribe(topic string, h bus.Handler) bus.Handle
	Unsubscribe(h bus.Handle) bool
}

// Deps are the collaborators shared by engines.
type Deps struct {
	Prices   domain.PriceSource
	Bus      TriggerBus
	Sink     LogSink
	Listener Listener
	Logger   *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	// Pacing is the delay between replayed rows.
	Pacing time.Duration

	InboxSize int
	// LogLimit bounds the in-memory log; zero keeps everything.
	LogLimit int
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = sleepContext
	}
	if d.InboxSize <= 0 {
		d.InboxSize = defaultInboxSize
	}
	return d
}

type event func(ctx context.Context)

// Engine is a single bot. All state mutations happen on the goroutine running
// Run; the mutex only guards readers on other goroutines.
type Engine struct {
	id        int64
	cfg       domain.BotConfig
	mode      domain.BotMode
	th        sltp.Thresholds
	rows      []domain.HistRow
	deps      Deps
	logger    *slog.Logger
	createdAt time.Time

	inbox chan event
	done  chan struct{}

	mu       sync.RWMutex
	equity   float64
	trades   int
	position *domain.Position
	sub      bus.Handle
	closed   []domain.Position
	log      []domain.LogEntry // oldest first
}

// NewEngine builds an engine. Supplying rows selects BACKTEST mode. The
// config is validated here so a bad config never produces a running bot.
func NewEngine(ctx context.Context, id int64, cfg domain.BotConfig, rows []domain.HistRow, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps = deps.withDefaults()

	mode := domain.BotModeLive
	if rows != nil || cfg.Backtest() {
		mode = domain.BotModeBacktest
	}
	if mode == domain.BotModeLive && (deps.Prices == nil || deps.Bus == nil) {
		return nil, fmt.Errorf("bot: live engine needs a price source and a tick bus")
	}

	e := &Engine{
		id:        id,
		cfg:       cfg,
		mode:      mode,
		th:        sltp.FromConfig(cfg.SLTP),
		rows:      rows,
		deps:      deps,
		createdAt: deps.Now(),
		inbox:     make(chan event, deps.InboxSize),
		done:      make(chan struct{}),
		equity:    cfg.InitAmount,
	}
	e.logger = deps.Logger.With(
		slog.String("component", "bot"),
		slog.Int64("bot_id", id),
		slog.String("pair", cfg.Pair),
		slog.String("mode", string(mode)),
	)

	e.record(ctx, domain.LogSuccess, "Bot Started!", map[string]any{
		"id":                  id,
		"pair":                cfg.Pair,
		"initAmount":          cfg.InitAmount,
		"percentForEachTrade": cfg.PercentForEachTrade,
		"leverage":            cfg.Leverage,
		"strategy":            cfg.Strategy,
		"yx":                  cfg.YXBD.YX,
		"bd":                  cfg.YXBD.BD,
		"sl":                  cfg.SLTP.SL,
		"tp":                  cfg.SLTP.TP,
		"isHist":              mode == domain.BotModeBacktest,
	})
	return e, nil
}

// ID returns the bot identifier.
func (e *Engine) ID() int64 { return e.id }

// Pair returns the traded pair.
func (e *Engine) Pair() string { return e.cfg.Pair }

// Mode returns LIVE or BACKTEST.
func (e *Engine) Mode() domain.BotMode { return e.mode }

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Run processes events until ctx is cancelled. A BACKTEST engine replays its
// dataset and returns when the data is exhausted.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	defer e.dropSubscription()

	if e.mode == domain.BotModeBacktest {
		return e.replay(ctx)
	}

	e.logger.InfoContext(ctx, "engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "engine stopped")
			return nil
		case ev := <-e.inbox:
			ev(ctx)
		}
	}
}

// Alert queues an external alert. Alerts are ignored by BACKTEST engines.
func (e *Engine) Alert(ctx context.Context, kind domain.AlertKind) error {
	if _, ok := kind.Side(); !ok {
		return domain.ErrUnknownAlert
	}
	if e.mode == domain.BotModeBacktest {
		return nil
	}
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	ev := func(ctx context.Context) { e.handleAlert(ctx, kind) }
	select {
	case e.inbox <- ev:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleAlert opens a position for the alert's side if the bot is idle.
func (e *Engine) handleAlert(ctx context.Context, kind domain.AlertKind) {
	e.record(ctx, domain.LogSuccess, "New Alert: "+string(kind), map[string]any{"alert": string(kind)})

	side, ok := kind.Side()
	if !ok || e.currentPosition() != nil {
		return
	}

	price, err := e.deps.Prices.GetCurrentPrice(ctx, e.cfg.Pair)
	if err == nil && (price <= 0 || math.IsNaN(price) || math.IsInf(price, 0)) {
		err = domain.ErrPriceUnavailable
	}
	if err != nil {
		e.record(ctx, domain.LogError, "Error with getting Price", map[string]any{
			"pair":  e.cfg.Pair,
			"error": err.Error(),
		})
		return
	}

	e.open(ctx, side, price, "")
}

// open creates the position and, for live engines with SL/TP configured,
// subscribes a trigger that guards it.
func (e *Engine) open(ctx context.Context, side domain.Side, price float64, openTime string) {
	e.mu.Lock()
	if e.position != nil {
		e.mu.Unlock()
		return
	}
	amount := e.cfg.PercentForEachTrade * math.Max(e.equity, e.cfg.InitAmount)
	pos := domain.OpenPosition(side, amount, price, e.equity, e.cfg.Leverage, openTime, e.deps.Now())
	e.position = pos
	snapshot := *pos
	e.mu.Unlock()

	if e.mode == domain.BotModeLive && e.th.Configured() {
		h := e.deps.Bus.Subscribe(bus.TopicPriceTick, newTrigger(e, snapshot))
		e.mu.Lock()
		e.sub = h
		e.mu.Unlock()
	}

	e.record(ctx, domain.LogSuccess, fmt.Sprintf("New %s Position opened!", side), positionPayload(snapshot))
}

type closeRequest struct {
	positionID string
	price      float64
	closeTime  string
}

// requestClose queues a close without blocking the caller. It runs on the
// publisher's goroutine; if the inbox is full the request is dropped and the
// next crossing tick asks again.
func (e *Engine) requestClose(req closeRequest) {
	select {
	case e.inbox <- func(ctx context.Context) { e.handleClose(ctx, req) }:
	default:
		e.logger.Warn("inbox full, close request dropped",
			slog.String("position_id", req.positionID),
			slog.Float64("price", req.price),
		)
	}
}

func (e *Engine) handleClose(ctx context.Context, req closeRequest) {
	pos, h, ok := e.closeAt(req.positionID, req.price, req.closeTime)
	if !ok {
		return
	}
	e.afterClose(ctx, pos, h)
}

// closeAt settles the current position and applies equity and trade count in
// one step. A request for a position that is no longer current is a no-op.
func (e *Engine) closeAt(positionID string, price float64, closeTime string) (domain.Position, bus.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.position
	if pos == nil || pos.ID != positionID {
		return domain.Position{}, 0, false
	}
	pnl, err := pos.Close(price, closeTime, e.deps.Now())
	if err != nil {
		return domain.Position{}, 0, false
	}
	e.equity += pnl
	e.trades++
	e.position = nil
	e.closed = append(e.closed, *pos)

	h := e.sub
	e.sub = 0
	return *pos, h, true
}

func (e *Engine) afterClose(ctx context.Context, pos domain.Position, h bus.Handle) {
	if h != 0 {
		e.deps.Bus.Unsubscribe(h)
	}
	e.record(ctx, domain.LogSuccess, fmt.Sprintf("Closed %s position!", pos.Side), positionPayload(pos))
	if e.deps.Listener != nil {
		e.deps.Listener.PositionClosed(ctx, e.Summary(), pos)
	}
}

func (e *Engine) dropSubscription() {
	e.mu.Lock()
	h := e.sub
	e.sub = 0
	e.mu.Unlock()
	if h != 0 {
		e.deps.Bus.Unsubscribe(h)
	}
}

// record appends to the in-memory log and forwards to the external sink.
func (e *Engine) record(ctx context.Context, kind domain.LogKind, msg string, payload map[string]any) {
	entry := domain.LogEntry{
		ID:      uuid.New().String(),
		BotID:   e.id,
		Source:  domain.LogSource(e.cfg.Pair, e.id),
		Kind:    kind,
		Message: msg,
		Payload: payload,
		Time:    e.deps.Now(),
	}

	e.mu.Lock()
	e.log = append(e.log, entry)
	if limit := e.deps.LogLimit; limit > 0 && len(e.log) > limit {
		e.log = append(e.log[:0:0], e.log[len(e.log)-limit:]...)
	}
	e.mu.Unlock()

	if kind == domain.LogError {
		e.logger.ErrorContext(ctx, msg, slog.Any("payload", payload))
	} else {
		e.logger.InfoContext(ctx, msg)
	}
	if e.deps.Sink != nil {
		e.deps.Sink.Append(ctx, entry)
	}
}

func (e *Engine) currentPosition() *domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

// Summary returns a consistent snapshot of the bot.
func (e *Engine) Summary() domain.BotSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := domain.BotSummary{
		ID:                  e.id,
		Pair:                e.cfg.Pair,
		Strategy:            e.cfg.Strategy,
		YXBD:                e.cfg.YXBD,
		Mode:                e.mode,
		InitAmount:          e.cfg.InitAmount,
		PercentForEachTrade: e.cfg.PercentForEachTrade,
		Leverage:            e.cfg.Leverage,
		SLTP:                e.cfg.SLTP,
		Trailing:            e.cfg.Trailing,
		Equity:              e.equity,
		PnL:                 e.equity - e.cfg.InitAmount,
		TradeCount:          e.trades,
		Log:                 e.logsLocked(),
		CreatedAt:           e.createdAt,
	}
	if e.position != nil {
		p := *e.position
		s.Position = &p
	}
	return s
}

// Logs returns the in-memory log, most recent first.
func (e *Engine) Logs() []domain.LogEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.logsLocked()
}

func (e *Engine) logsLocked() []domain.LogEntry {
	out := make([]domain.LogEntry, len(e.log))
	for i, entry := range e.log {
		out[len(e.log)-1-i] = entry
	}
	return out
}

// Trades returns closed positions in close order.
func (e *Engine) Trades() []domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Position, len(e.closed))
	copy(out, e.closed)
	return out
}

func positionPayload(p domain.Position) map[string]any {
	m := map[string]any{
		"id":           p.ID,
		"positionType": string(p.Side),
		"amount":       p.Amount,
		"openPrice":    p.OpenPrice,
		"equity":       p.EquityAtOpen,
		"leverage":     p.Leverage,
		"status":       string(p.Status),
	}
	if p.OpenTime != "" {
		m["openTime"] = p.OpenTime
	}
	if p.Status == domain.PositionStatusClosed {
		m["closePrice"] = p.ClosePrice
		m["pnlAmount"] = p.PnL
		if p.CloseTime != "" {
			m["closeTime"] = p.CloseTime
		}
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
