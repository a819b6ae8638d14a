package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/histdata"
)

// HistoryLoader fetches a stored dataset by key.
type HistoryLoader interface {
	Load(ctx context.Context, key string) ([]domain.HistRow, error)
}

// PairWatcher is told about pairs that live bots need ticks for, and about
// pairs no live bot trades any more.
type PairWatcher interface {
	Watch(pair string)
	Unwatch(pair string)
}

// RosterBroadcaster pushes the full bot list to external listeners.
type RosterBroadcaster interface {
	BroadcastRoster(ctx context.Context, bots []domain.BotSummary)
}

// TradeRecorder persists closed positions.
type TradeRecorder interface {
	RecordClose(ctx context.Context, bot domain.BotSummary, pos domain.Position)
}

// BacktestReporter receives the result of a finished replay.
type BacktestReporter interface {
	ReportBacktest(ctx context.Context, bot domain.BotSummary, trades []domain.Position)
}

// Hooks are the optional collaborators of a Registry.
type Hooks struct {
	History HistoryLoader
	Watcher PairWatcher
	Roster  RosterBroadcaster
	Trades  TradeRecorder
	Reports BacktestReporter
	Audit   domain.AuditStore
}

type managed struct {
	engine *Engine
	cancel context.CancelFunc
}

// Registry creates, tracks and removes engines. IDs start at 1 and are
// never reused within a process.
type Registry struct {
	deps   Deps
	hooks  Hooks
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int64
	bots   map[int64]*managed

	// watchMu orders Watch and Unwatch calls against the bot set.
	watchMu sync.Mutex

	wg sync.WaitGroup
}

// NewRegistry returns an empty registry. deps is the template for every
// engine it creates; its Listener is replaced by the registry itself.
func NewRegistry(deps Deps, hooks Hooks) *Registry {
	deps = deps.withDefaults()
	return &Registry{
		deps:   deps,
		hooks:  hooks,
		logger: deps.Logger.With(slog.String("component", "registry")),
		bots:   make(map[int64]*managed),
	}
}

// Create validates cfg, starts a new engine and returns its ID. Engines
// outlive ctx; they stop on Remove or Shutdown.
func (r *Registry) Create(ctx context.Context, cfg domain.BotConfig) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	rows, err := r.loadHistory(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("%w: load history: %w", domain.ErrInvalidConfig, err)
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	deps := r.deps
	deps.Listener = r
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	eng, err := NewEngine(runCtx, id, cfg, rows, deps)
	if err != nil {
		cancel()
		return 0, err
	}

	r.mu.Lock()
	r.bots[id] = &managed{engine: eng, cancel: cancel}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("engine exited", slog.Int64("bot_id", id), slog.String("error", err.Error()))
		}
	}()

	if eng.Mode() == domain.BotModeLive && r.hooks.Watcher != nil {
		r.watchMu.Lock()
		r.hooks.Watcher.Watch(cfg.Pair)
		r.watchMu.Unlock()
	}

	r.logger.InfoContext(ctx, "bot created",
		slog.Int64("bot_id", id),
		slog.String("pair", cfg.Pair),
		slog.String("mode", string(eng.Mode())),
	)
	r.audit(ctx, "bot_created", map[string]any{"bot_id": id, "pair": cfg.Pair, "mode": string(eng.Mode())})
	r.broadcast(ctx)
	return id, nil
}

func (r *Registry) loadHistory(ctx context.Context, cfg domain.BotConfig) ([]domain.HistRow, error) {
	switch {
	case cfg.HistData != "":
		return histdata.ParseString(cfg.HistData)
	case cfg.HistKey != "":
		if r.hooks.History == nil {
			return nil, errors.New("no dataset store configured")
		}
		return r.hooks.History.Load(ctx, cfg.HistKey)
	default:
		return nil, nil
	}
}

// Remove stops and forgets a bot.
func (r *Registry) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	m, ok := r.bots[id]
	if ok {
		delete(r.bots, id)
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrBotNotFound
	}

	m.cancel()
	<-m.engine.Done()

	if m.engine.Mode() == domain.BotModeLive && r.hooks.Watcher != nil {
		r.watchMu.Lock()
		if !r.livePair(m.engine.Pair()) {
			r.hooks.Watcher.Unwatch(m.engine.Pair())
		}
		r.watchMu.Unlock()
	}

	r.logger.InfoContext(ctx, "bot removed", slog.Int64("bot_id", id))
	r.audit(ctx, "bot_removed", map[string]any{"bot_id": id, "pair": m.engine.Pair()})
	r.broadcast(ctx)
	return nil
}

// livePair reports whether a registered live bot trades pair.
func (r *Registry) livePair(pair string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.bots {
		if m.engine.Mode() == domain.BotModeLive && strings.EqualFold(m.engine.Pair(), pair) {
			return true
		}
	}
	return false
}

// Get returns the engine for id.
func (r *Registry) Get(id int64) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.bots[id]
	if !ok {
		return nil, domain.ErrBotNotFound
	}
	return m.engine, nil
}

// List returns bot summaries in ascending ID order.
func (r *Registry) List() []domain.BotSummary {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.bots))
	for _, m := range r.bots {
		engines = append(engines, m.engine)
	}
	r.mu.RUnlock()

	sort.Slice(engines, func(i, j int) bool { return engines[i].ID() < engines[j].ID() })
	out := make([]domain.BotSummary, len(engines))
	for i, e := range engines {
		out[i] = e.Summary()
	}
	return out
}

// Alert routes an alert to one bot.
func (r *Registry) Alert(ctx context.Context, id int64, kind domain.AlertKind) error {
	eng, err := r.Get(id)
	if err != nil {
		return err
	}
	return eng.Alert(ctx, kind)
}

// WaitBacktests blocks until every BACKTEST engine has finished replaying.
func (r *Registry) WaitBacktests(ctx context.Context) error {
	r.mu.RLock()
	var pending []*Engine
	for _, m := range r.bots {
		if m.engine.Mode() == domain.BotModeBacktest {
			pending = append(pending, m.engine)
		}
	}
	r.mu.RUnlock()

	for _, e := range pending {
		select {
		case <-e.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown stops every engine and waits for them to exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for _, m := range r.bots {
		m.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// PositionClosed implements Listener.
func (r *Registry) PositionClosed(ctx context.Context, bot domain.BotSummary, pos domain.Position) {
	r.broadcast(ctx)
	if r.hooks.Trades != nil {
		r.hooks.Trades.RecordClose(ctx, bot, pos)
	}
}

// BacktestFinished implements Listener.
func (r *Registry) BacktestFinished(ctx context.Context, bot domain.BotSummary, trades []domain.Position) {
	r.broadcast(ctx)
	if r.hooks.Reports != nil {
		r.hooks.Reports.ReportBacktest(ctx, bot, trades)
	}
}

func (r *Registry) broadcast(ctx context.Context) {
	if r.hooks.Roster == nil {
		return
	}
	r.hooks.Roster.BroadcastRoster(ctx, r.List())
}

func (r *Registry) audit(ctx context.Context, event string, detail map[string]any) {
	if r.hooks.Audit == nil {
		return
	}
	if err := r.hooks.Audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
