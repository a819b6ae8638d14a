// Package metrics exposes Prometheus counters for alerts, position closes,
// price ticks and HTTP traffic.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/alertbot/internal/bot"
	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/server/handler"
	"github.com/alanyoungcy/alertbot/internal/service"
)

const namespace = "alertbot"

// BotLister is the registry view used for the bot gauges.
type BotLister interface {
	List() []domain.BotSummary
}

// Metrics owns a private Prometheus registry.
type Metrics struct {
	reg *prometheus.Registry

	alerts   *prometheus.CounterVec
	closes   *prometheus.CounterVec
	realized *prometheus.GaugeVec
	ticks    *prometheus.CounterVec
	requests *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert webhooks by outcome.",
		}, []string{"result"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Closed positions by bot mode and side.",
		}, []string{"mode", "side"}),
		realized: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl",
			Help:      "Sum of realized P&L of closed positions by bot mode.",
		}, []string{"mode"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_ticks_total",
			Help:      "Price ticks ingested by source.",
		}, []string{"source"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.alerts, m.closes, m.realized, m.ticks, m.requests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WatchBots registers gauges computed from the bot list at scrape time.
func (m *Metrics) WatchBots(bots BotLister) {
	count := func(match func(domain.BotSummary) bool) func() float64 {
		return func() float64 {
			n := 0
			for _, b := range bots.List() {
				if match(b) {
					n++
				}
			}
			return float64(n)
		}
	}
	for _, mode := range []domain.BotMode{domain.BotModeLive, domain.BotModeBacktest} {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "bots",
			Help:        "Registered bots by mode.",
			ConstLabels: prometheus.Labels{"mode": string(mode)},
		}, count(func(b domain.BotSummary) bool { return b.Mode == mode })))
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_positions",
		Help:      "Bots currently holding a position.",
	}, count(func(b domain.BotSummary) bool { return b.Position != nil })))
}

// ObserveTick counts one ingested tick.
func (m *Metrics) ObserveTick(source string) {
	m.ticks.WithLabelValues(source).Inc()
}

// ObserveHTTP implements middleware.Observer.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// AlertResult labels a Deliver outcome.
func AlertResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrDuplicateAlert):
		return "duplicate"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrUnknownAlert):
		return "unknown_kind"
	case errors.Is(err, domain.ErrBotNotFound):
		return "bot_not_found"
	default:
		return "error"
	}
}

// Alerts wraps an alert deliverer and counts outcomes.
func (m *Metrics) Alerts(next handler.AlertDeliverer) handler.AlertDeliverer {
	return alertCounter{next: next, m: m}
}

type alertCounter struct {
	next handler.AlertDeliverer
	m    *Metrics
}

func (a alertCounter) Deliver(ctx context.Context, d service.Delivery) error {
	err := a.next.Deliver(ctx, d)
	a.m.alerts.WithLabelValues(AlertResult(err)).Inc()
	return err
}

// Trades wraps a trade recorder and counts closes and realized P&L.
func (m *Metrics) Trades(next bot.TradeRecorder) bot.TradeRecorder {
	return tradeCounter{next: next, m: m}
}

type tradeCounter struct {
	next bot.TradeRecorder
	m    *Metrics
}

func (t tradeCounter) RecordClose(ctx context.Context, b domain.BotSummary, pos domain.Position) {
	t.m.closes.WithLabelValues(string(b.Mode), string(pos.Side)).Inc()
	t.m.realized.WithLabelValues(string(b.Mode)).Add(pos.PnL)
	t.next.RecordClose(ctx, b, pos)
}

// Ticks wraps a tick ingester and counts ticks pushed over HTTP.
func (m *Metrics) Ticks(next handler.TickIngester) handler.TickIngester {
	return tickCounter{TickIngester: next, m: m}
}

type tickCounter struct {
	handler.TickIngester
	m *Metrics
}

func (t tickCounter) HandleTick(ctx context.Context, tick domain.PriceTick) error {
	t.m.ObserveTick("http")
	return t.TickIngester.HandleTick(ctx, tick)
}
