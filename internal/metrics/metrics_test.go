package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/service"
)

type stubDeliverer struct{ err error }

func (s stubDeliverer) Deliver(context.Context, service.Delivery) error { return s.err }

type stubTrades struct{ n int }

func (s *stubTrades) RecordClose(context.Context, domain.BotSummary, domain.Position) { s.n++ }

type stubBots []domain.BotSummary

func (s stubBots) List() []domain.BotSummary { return s }

func TestAlertResult(t *testing.T) {
	cases := map[string]error{
		"accepted":      nil,
		"duplicate":     domain.ErrDuplicateAlert,
		"unauthorized":  domain.ErrUnauthorized,
		"unknown_kind":  domain.ErrUnknownAlert,
		"bot_not_found": domain.ErrBotNotFound,
		"error":         errors.New("x"),
	}
	for want, err := range cases {
		if got := AlertResult(err); got != want {
			t.Errorf("AlertResult(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.Alerts(stubDeliverer{}).Deliver(ctx, service.Delivery{})
	m.Alerts(stubDeliverer{err: domain.ErrDuplicateAlert}).Deliver(ctx, service.Delivery{})
	if got := testutil.ToFloat64(m.alerts.WithLabelValues("accepted")); got != 1 {
		t.Fatalf("accepted = %v", got)
	}
	if got := testutil.ToFloat64(m.alerts.WithLabelValues("duplicate")); got != 1 {
		t.Fatalf("duplicate = %v", got)
	}

	next := &stubTrades{}
	rec := m.Trades(next)
	bot := domain.BotSummary{Mode: domain.BotModeLive}
	rec.RecordClose(ctx, bot, domain.Position{Side: domain.SideLong, PnL: 11})
	rec.RecordClose(ctx, bot, domain.Position{Side: domain.SideLong, PnL: -5})
	if next.n != 2 {
		t.Fatalf("forwarded = %d", next.n)
	}
	if got := testutil.ToFloat64(m.closes.WithLabelValues("LIVE", "LONG")); got != 2 {
		t.Fatalf("closes = %v", got)
	}
	if got := testutil.ToFloat64(m.realized.WithLabelValues("LIVE")); got != 6 {
		t.Fatalf("realized = %v", got)
	}

	m.ObserveTick("stream")
	m.ObserveHTTP("GET", "GET /api/bots", 200, 10*time.Millisecond)
	if got := testutil.ToFloat64(m.ticks.WithLabelValues("stream")); got != 1 {
		t.Fatalf("ticks = %v", got)
	}
}

func TestHandlerExposesBotGauges(t *testing.T) {
	m := New()
	m.WatchBots(stubBots{
		{Mode: domain.BotModeLive, Position: &domain.Position{}},
		{Mode: domain.BotModeLive},
		{Mode: domain.BotModeBacktest},
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`alertbot_bots{mode="LIVE"} 2`,
		`alertbot_bots{mode="BACKTEST"} 1`,
		`alertbot_open_positions 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q", want)
		}
	}
}
