package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/alertbot/internal/bus"
	"github.com/alanyoungcy/alertbot/internal/domain"
)

type liveFixture struct {
	engine   *Engine
	bus      *bus.Bus
	prices   *fakePrices
	sink     *memSink
	listener *chanListener
}

func newLive(t *testing.T, cfg domain.BotConfig) *liveFixture {
	t.Helper()
	f := &liveFixture{
		bus:      bus.New(),
		prices:   &fakePrices{price: 100},
		sink:     &memSink{},
		listener: newChanListener(),
	}
	e, err := NewEngine(context.Background(), 1, cfg, nil, Deps{
		Prices:   f.prices,
		Bus:      f.bus,
		Sink:     f.sink,
		Listener: f.listener,
		Now:      fixedNow,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.Mode() != domain.BotModeLive {
		t.Fatalf("mode = %s, want LIVE", e.Mode())
	}
	f.engine = e
	return f
}

func (f *liveFixture) tick(price float64) {
	f.bus.Publish(context.Background(), bus.TopicPriceTick, domain.PriceTick{Pair: "X", LastPrice: price})
}

func TestAlertThenTakeProfitTick(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.05), ptr(0.10)))

	f.engine.handleAlert(ctx, domain.AlertGreenBottom)

	s := f.engine.Summary()
	if s.Position == nil || s.Position.Side != domain.SideLong {
		t.Fatalf("expected open LONG, got %+v", s.Position)
	}
	if !near(s.Position.Amount, 100) || s.Equity != 1000 || s.TradeCount != 0 {
		t.Fatalf("after open: amount=%v equity=%v txs=%d", s.Position.Amount, s.Equity, s.TradeCount)
	}
	if f.bus.Len(bus.TopicPriceTick) != 1 {
		t.Fatalf("subscriptions = %d, want 1", f.bus.Len(bus.TopicPriceTick))
	}

	f.tick(105)
	if n := drain(t, ctx, f.engine); n != 0 {
		t.Fatalf("tick inside bounds queued %d events", n)
	}

	f.tick(111)
	drain(t, ctx, f.engine)

	s = f.engine.Summary()
	if s.Position != nil {
		t.Fatalf("position still open: %+v", s.Position)
	}
	if !near(s.Equity, 1011) || !near(s.PnL, 11) || s.TradeCount != 1 {
		t.Fatalf("after close: equity=%v pnl=%v txs=%d", s.Equity, s.PnL, s.TradeCount)
	}
	if f.bus.Len(bus.TopicPriceTick) != 0 {
		t.Fatal("trigger still subscribed after close")
	}

	select {
	case pos := <-f.listener.closed:
		if !near(pos.PnL, 11) || pos.ClosePrice != 111 {
			t.Fatalf("closed position = %+v", pos)
		}
	default:
		t.Fatal("listener not notified")
	}

	logs := f.engine.Logs()
	if logs[0].Message != "Closed LONG position!" || logs[0].Kind != domain.LogSuccess {
		t.Fatalf("latest log = %+v", logs[0])
	}
	if logs[len(logs)-1].Message != "Bot Started!" {
		t.Fatalf("oldest log = %+v", logs[len(logs)-1])
	}
	if logs[0].Source != "X-1" {
		t.Fatalf("log source = %q", logs[0].Source)
	}
}

func TestRunEndToEnd(t *testing.T) {
	f := newLive(t, liveConfig(ptr(0.05), ptr(0.10)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = f.engine.Run(ctx) }()

	if err := f.engine.Alert(ctx, domain.AlertGreenBottom); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.bus.Len(bus.TopicPriceTick) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("position never opened")
		}
		time.Sleep(time.Millisecond)
	}

	f.tick(111)

	select {
	case pos := <-f.listener.closed:
		if !near(pos.PnL, 11) {
			t.Fatalf("pnl = %v, want 11", pos.PnL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("position never closed")
	}
	if s := f.engine.Summary(); !near(s.Equity, 1011) || s.TradeCount != 1 {
		t.Fatalf("equity=%v txs=%d", s.Equity, s.TradeCount)
	}

	cancel()
	<-f.engine.Done()
	if err := f.engine.Alert(context.Background(), domain.AlertRedPeak); !errors.Is(err, ErrStopped) {
		t.Fatalf("alert after stop: %v", err)
	}
}

func TestShortStopLoss(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.05), ptr(0.10)))

	f.engine.handleAlert(ctx, domain.AlertRedPeak)
	f.tick(106)
	drain(t, ctx, f.engine)

	s := f.engine.Summary()
	if s.TradeCount != 1 || !near(s.Equity, 994) {
		t.Fatalf("equity=%v txs=%d, want 994/1", s.Equity, s.TradeCount)
	}
}

func TestDuplicateCloseIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.05), ptr(0.10)))
	f.engine.handleAlert(ctx, domain.AlertGreenBottom)

	f.tick(111)
	f.tick(120)
	if n := drain(t, ctx, f.engine); n != 2 {
		t.Fatalf("queued %d close requests, want 2", n)
	}

	s := f.engine.Summary()
	if s.TradeCount != 1 || !near(s.Equity, 1011) {
		t.Fatalf("equity=%v txs=%d", s.Equity, s.TradeCount)
	}
	if len(f.listener.closed) != 1 {
		t.Fatalf("listener notified %d times", len(f.listener.closed))
	}

	pos := f.engine.Trades()[0]
	f.engine.handleClose(ctx, closeRequest{positionID: pos.ID, price: 50})
	if s := f.engine.Summary(); s.TradeCount != 1 {
		t.Fatalf("repeat close changed txs to %d", s.TradeCount)
	}
}

func TestAlertWhilePositionedIgnored(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.05), nil))

	f.engine.handleAlert(ctx, domain.AlertGreenBottom)
	first := f.engine.Summary().Position
	f.engine.handleAlert(ctx, domain.AlertRedPeak)

	s := f.engine.Summary()
	if s.Position == nil || s.Position.ID != first.ID || s.Position.Side != domain.SideLong {
		t.Fatalf("position replaced: %+v", s.Position)
	}
	if f.prices.calls != 1 {
		t.Fatalf("price fetched %d times, want 1", f.prices.calls)
	}
	if f.bus.Len(bus.TopicPriceTick) != 1 {
		t.Fatalf("subscriptions = %d, want 1", f.bus.Len(bus.TopicPriceTick))
	}
}

func TestPriceUnavailable(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		price float64
		err   error
	}{
		{"fetch error", 0, errors.New("boom")},
		{"zero price", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLive(t, liveConfig(ptr(0.05), ptr(0.1)))
			f.prices.set(tt.price, tt.err)

			f.engine.handleAlert(ctx, domain.AlertGreenBottom)

			s := f.engine.Summary()
			if s.Position != nil || s.Equity != 1000 {
				t.Fatalf("state changed: %+v", s)
			}
			if s.Log[0].Kind != domain.LogError || s.Log[0].Message != "Error with getting Price" {
				t.Fatalf("latest log = %+v", s.Log[0])
			}

			f.prices.set(100, nil)
			f.engine.handleAlert(ctx, domain.AlertGreenBottom)
			if f.engine.Summary().Position == nil {
				t.Fatal("retry on next alert did not open")
			}
		})
	}
}

func TestNoThresholdsNoSubscription(t *testing.T) {
	f := newLive(t, liveConfig(nil, nil))
	f.engine.handleAlert(context.Background(), domain.AlertGreenBottom)
	if f.engine.Summary().Position == nil {
		t.Fatal("position not opened")
	}
	if f.bus.Len(bus.TopicPriceTick) != 0 {
		t.Fatal("subscribed without SL/TP")
	}
}

func TestTickForOtherPairIgnored(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.05), ptr(0.1)))
	f.engine.handleAlert(ctx, domain.AlertGreenBottom)

	f.bus.Publish(ctx, bus.TopicPriceTick, domain.PriceTick{Pair: "Y", LastPrice: 1})
	if n := drain(t, ctx, f.engine); n != 0 {
		t.Fatalf("other pair queued %d events", n)
	}
}

func TestTradeSizeUsesMaxOfEquityAndInitial(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.05), ptr(0.10)))

	// Losing trade: equity drops below initial capital.
	f.engine.handleAlert(ctx, domain.AlertGreenBottom)
	f.tick(94)
	drain(t, ctx, f.engine)
	if s := f.engine.Summary(); !near(s.Equity, 994) {
		t.Fatalf("equity = %v, want 994", s.Equity)
	}

	f.engine.handleAlert(ctx, domain.AlertGreenBottom)
	if amt := f.engine.Summary().Position.Amount; !near(amt, 100) {
		t.Fatalf("amount after loss = %v, want 100", amt)
	}
	f.tick(120)
	drain(t, ctx, f.engine)

	// 994 + 100*0.2 = 1014 → next size 101.4.
	f.engine.handleAlert(ctx, domain.AlertGreenBottom)
	if amt := f.engine.Summary().Position.Amount; !near(amt, 101.4) {
		t.Fatalf("amount after win = %v, want 101.4", amt)
	}
}

func TestEquityEqualsInitialPlusRealized(t *testing.T) {
	ctx := context.Background()
	f := newLive(t, liveConfig(ptr(0.03), ptr(0.04)))
	prices := []struct {
		open, close float64
		alert       domain.AlertKind
	}{
		{100, 105, domain.AlertGreenBottom},
		{200, 190, domain.AlertRedPeak},
		{50, 48, domain.AlertGreenBottom},
		{80, 83, domain.AlertRedPeak},
	}
	for _, p := range prices {
		f.prices.set(p.open, nil)
		f.engine.handleAlert(ctx, p.alert)
		if f.engine.Summary().Equity != f.engine.Summary().Position.EquityAtOpen {
			t.Fatal("equity changed on open")
		}
		f.tick(p.close)
		drain(t, ctx, f.engine)
	}

	s := f.engine.Summary()
	sum := 0.0
	for _, tr := range f.engine.Trades() {
		sum += tr.PnL
	}
	if s.TradeCount != len(prices) {
		t.Fatalf("txs = %d, want %d", s.TradeCount, len(prices))
	}
	if !near(s.Equity, 1000+sum) || !near(s.PnL, sum) {
		t.Fatalf("equity=%v pnl=%v sum=%v", s.Equity, s.PnL, sum)
	}
}

func TestUnknownAlertRejected(t *testing.T) {
	f := newLive(t, liveConfig(nil, nil))
	if err := f.engine.Alert(context.Background(), "purple"); !errors.Is(err, domain.ErrUnknownAlert) {
		t.Fatalf("err = %v", err)
	}
}

func TestLogLimit(t *testing.T) {
	e, err := NewEngine(context.Background(), 7, liveConfig(nil, nil), nil, Deps{
		Prices:   &fakePrices{err: errors.New("down")},
		Bus:      bus.New(),
		LogLimit: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		e.handleAlert(context.Background(), domain.AlertGreenBottom)
	}
	logs := e.Logs()
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
	if logs[0].Kind != domain.LogError {
		t.Fatalf("newest entry = %+v", logs[0])
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := NewEngine(context.Background(), 1, domain.BotConfig{Pair: "X"}, nil, Deps{})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
