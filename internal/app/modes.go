package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/alertbot/internal/bot"
	"github.com/alanyoungcy/alertbot/internal/bus"
	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/feed"
	"github.com/alanyoungcy/alertbot/internal/metrics"
	"github.com/alanyoungcy/alertbot/internal/platform/binance"
	"github.com/alanyoungcy/alertbot/internal/server"
	"github.com/alanyoungcy/alertbot/internal/server/handler"
	"github.com/alanyoungcy/alertbot/internal/server/middleware"
	"github.com/alanyoungcy/alertbot/internal/server/ws"
	"github.com/alanyoungcy/alertbot/internal/service"
)

const shutdownTimeout = 10 * time.Second

// core is the service graph shared by both modes.
type core struct {
	ticks    *bus.Bus
	prices   *service.PriceService
	logs     *service.LogService
	trades   *service.TradeService
	history  *service.HistoryService
	registry *bot.Registry
	// metrics is nil when disabled.
	metrics *metrics.Metrics
}

func (a *App) buildCore(deps *Dependencies, watcher bot.PairWatcher) *core {
	c := &core{ticks: bus.New()}
	if a.cfg.Server.MetricsEnabled {
		c.metrics = metrics.New()
	}
	c.prices = service.NewPriceService(deps.PriceCache, deps.Exchange, deps.SignalBus, a.cfg.Exchange.PriceMaxAge.Duration, a.logger)
	c.logs = service.NewLogService(deps.LogStore, deps.SignalBus, a.logger)
	c.trades = service.NewTradeService(deps.TradeStore, deps.AuditStore, deps.SignalBus, deps.Notifier, a.logger)
	reports := service.NewReportService(deps.BlobWriter, a.cfg.Backtest.ReportPrefix, deps.AuditStore, deps.Notifier, a.logger)

	var trades bot.TradeRecorder = c.trades
	if c.metrics != nil {
		trades = c.metrics.Trades(trades)
	}
	hooks := bot.Hooks{
		Watcher: watcher,
		Roster:  service.NewRosterPublisher(deps.SignalBus, a.logger),
		Trades:  trades,
		Reports: reports,
		Audit:   deps.AuditStore,
	}
	if deps.BlobReader != nil {
		c.history = service.NewHistoryService(deps.BlobReader)
		hooks.History = c.history
	}

	c.registry = bot.NewRegistry(bot.Deps{
		Prices:    c.prices,
		Bus:       c.ticks,
		Sink:      c.logs,
		Logger:    a.logger,
		Pacing:    a.cfg.Backtest.Pacing.Duration,
		InboxSize: a.cfg.Engine.InboxSize,
		LogLimit:  a.cfg.Engine.LogLimit,
	}, hooks)
	if c.metrics != nil {
		c.metrics.WatchBots(c.registry)
	}
	return c
}

// ServerMode streams prices, runs the configured bots and serves the HTTP
// and WebSocket API until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	startedAt := time.Now()

	// The feed is built before the registry so live bots can register their
	// pair with it. Ticks only flow once Run starts, after c is assigned.
	var (
		c           *core
		watcher     bot.PairWatcher
		binanceFeed *feed.BinanceFeed
	)
	if a.cfg.Exchange.FeedEnabled {
		stream := binance.NewStreamClient(a.cfg.Exchange.WsURL, a.logger)
		stream.SetReconnectDelay(a.cfg.Exchange.ReconnectDelay.Duration)
		binanceFeed = feed.NewBinanceFeed(stream, a.cfg.Exchange.WatchPairs, func(ctx context.Context, tick domain.PriceTick) {
			if c.metrics != nil {
				c.metrics.ObserveTick("stream")
			}
			if err := c.prices.HandleTick(ctx, tick); err != nil {
				a.logger.DebugContext(ctx, "tick dropped", slog.String("pair", tick.Pair), slog.String("error", err.Error()))
			}
		}, a.logger)
		watcher = binanceFeed
	}
	c = a.buildCore(deps, watcher)
	defer c.registry.Shutdown()

	g, gctx := errgroup.WithContext(ctx)

	if binanceFeed != nil {
		g.Go(func() error { return binanceFeed.Run(gctx) })
	}

	bridge := feed.NewTickBridge(deps.SignalBus, c.ticks, a.logger)
	g.Go(func() error { return bridge.Run(gctx) })

	for i, cfg := range a.cfg.Bots {
		id, err := c.registry.Create(ctx, cfg)
		if err != nil {
			a.logger.ErrorContext(ctx, "configured bot not started",
				slog.Int("index", i),
				slog.String("pair", cfg.Pair),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "configured bot started", slog.Int64("bot_id", id), slog.String("pair", cfg.Pair))
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, c, startedAt)
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core, startedAt time.Time) {
	hub := ws.NewHub(deps.SignalBus, c.registry, a.cfg.Mode, a.logger)
	alerts := service.NewAlertService(c.registry, deps.LockManager, deps.WebhookSecret, a.cfg.Webhook.DedupTTL.Duration, a.logger)

	var datasets handler.DatasetLister
	if c.history != nil {
		datasets = c.history
	}
	var (
		deliverer handler.AlertDeliverer = alerts
		ticks     handler.TickIngester   = c.prices
		observer  middleware.Observer
		metricsH  http.Handler
	)
	if c.metrics != nil {
		deliverer = c.metrics.Alerts(deliverer)
		ticks = c.metrics.Ticks(ticks)
		observer = c.metrics
		metricsH = c.metrics.Handler()
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		AlertRateLimit:  a.cfg.Server.AlertRateLimit,
		AlertRateWindow: a.cfg.Server.AlertRateWindow.Duration,
		Observer:        observer,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, startedAt, c.registry),
		Bots:     handler.NewBotHandler(c.registry, c.logs, c.trades, c.prices, a.logger),
		Alerts:   handler.NewAlertHandler(deliverer, a.logger),
		Prices:   handler.NewPriceHandler(ticks),
		Datasets: handler.NewDatasetHandler(datasets),
		Activity: handler.NewActivityHandler(c.logs, deps.AuditStore),
		Metrics:  metricsH,
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// BacktestMode replays every configured backtest bot, waits for all of them
// to finish and exits. Live bots in the config are skipped.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode")

	c := a.buildCore(deps, nil)
	defer c.registry.Shutdown()

	var ids []int64
	for i, cfg := range a.cfg.Bots {
		if !cfg.Backtest() {
			a.logger.WarnContext(ctx, "skipping live bot in backtest mode", slog.Int("index", i), slog.String("pair", cfg.Pair))
			continue
		}
		id, err := c.registry.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("app: backtest bot %d (%s): %w", i, cfg.Pair, err)
		}
		ids = append(ids, id)
	}

	waitCtx := ctx
	if t := a.cfg.Backtest.Timeout.Duration; t > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if err := c.registry.WaitBacktests(waitCtx); err != nil {
		return fmt.Errorf("app: wait for backtests: %w", err)
	}

	for _, id := range ids {
		eng, err := c.registry.Get(id)
		if err != nil {
			continue
		}
		s := eng.Summary()
		a.logger.InfoContext(ctx, "backtest result",
			slog.Int64("bot_id", s.ID),
			slog.String("pair", s.Pair),
			slog.Float64("equity", s.Equity),
			slog.Float64("pnl", s.PnL),
			slog.Int("trades", s.TradeCount),
			slog.Bool("position_open", s.Position != nil),
		)
	}
	return nil
}
