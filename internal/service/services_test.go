package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/alertbot/internal/crypto"
	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/notify"
)

func TestLogServiceFansOut(t *testing.T) {
	store := &fakeLogStore{}
	signals := &fakeSignals{}
	s := NewLogService(store, signals, quietLogger())

	entry := domain.LogEntry{ID: "1", BotID: 1, Source: "BTCUSDT-1", Kind: domain.LogSuccess, Message: "Bot Started!"}
	s.Append(context.Background(), entry)

	if len(store.entries) != 1 {
		t.Fatalf("stored %d", len(store.entries))
	}
	if len(signals.streamed) != 1 || signals.streamed[0].channel != domain.StreamBotLogs {
		t.Fatalf("streamed = %v", signals.streamed)
	}
	if len(signals.on(domain.ChannelBotLogs)) != 1 {
		t.Fatal("not published")
	}

	recent, last, err := s.Recent(context.Background(), "0", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Message != "Bot Started!" || last == "0" {
		t.Fatalf("recent = %v, last = %q", recent, last)
	}
}

func TestLogServiceSwallowsFailures(t *testing.T) {
	store := &fakeLogStore{err: errors.New("db down")}
	signals := &fakeSignals{err: errors.New("redis down")}
	s := NewLogService(store, signals, quietLogger())
	s.Append(context.Background(), domain.LogEntry{Source: "X-1"})
}

func TestRosterPublisher(t *testing.T) {
	signals := &fakeSignals{}
	NewRosterPublisher(signals, quietLogger()).BroadcastRoster(context.Background(), nil)
	msgs := signals.on(domain.ChannelBots)
	if len(msgs) != 1 || string(msgs[0]) != "[]" {
		t.Fatalf("msgs = %q", msgs)
	}
}

func TestTradeServiceRecordClose(t *testing.T) {
	trades := &fakeTradeStore{}
	audit := &fakeAudit{}
	signals := &fakeSignals{}
	notifier := &fakeNotifier{}
	s := NewTradeService(trades, audit, signals, notifier, quietLogger())

	bot := domain.BotSummary{ID: 2, Pair: "BTCUSDT", Mode: domain.BotModeLive, Equity: 1011}
	pos := domain.Position{ID: "p1", Side: domain.SideLong, OpenPrice: 100, ClosePrice: 111, PnL: 11}
	s.RecordClose(context.Background(), bot, pos)

	if len(trades.recs) != 1 || trades.recs[0].Position.ID != "p1" {
		t.Fatalf("trades = %v", trades.recs)
	}
	if len(audit.events) != 1 || audit.events[0] != "position_closed" {
		t.Fatalf("audit = %v", audit.events)
	}
	if len(signals.on(domain.ChannelPositions)) != 1 {
		t.Fatal("position not published")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].event != notify.EventPositionClosed {
		t.Fatalf("notified = %v", notifier.sent)
	}

	recs, err := s.ListByBot(context.Background(), 2, domain.ListOpts{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("list = %v, %v", recs, err)
	}
}

func TestTradeServiceSkipsBacktestNotifications(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewTradeService(nil, nil, nil, notifier, quietLogger())
	s.RecordClose(context.Background(), domain.BotSummary{Mode: domain.BotModeBacktest}, domain.Position{})
	if len(notifier.sent) != 0 {
		t.Fatal("backtest close announced")
	}
	if _, err := s.ListByBot(context.Background(), 1, domain.ListOpts{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestReportServiceWritesCSV(t *testing.T) {
	blobs := newFakeBlobs()
	notifier := &fakeNotifier{}
	s := NewReportService(blobs, "backtests", &fakeAudit{}, notifier, quietLogger())
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	bot := domain.BotSummary{ID: 4, Pair: "ETHUSDT", InitAmount: 1000, Equity: 1010, PnL: 10}
	trades := []domain.Position{{ID: "a", Side: domain.SideShort, Amount: 100, OpenPrice: 100, ClosePrice: 90, PnL: 10, Status: domain.PositionStatusClosed}}
	s.ReportBacktest(context.Background(), bot, trades)

	key := "backtests/ETHUSDT-4-1700000000.csv"
	data, ok := blobs.objects[key]
	if !ok {
		t.Fatalf("objects = %v", blobs.objects)
	}
	if blobs.types[key] != "text/csv" {
		t.Fatalf("content type = %q", blobs.types[key])
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Fatalf("csv = %q", data)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0].message, key) {
		t.Fatalf("notified = %v", notifier.sent)
	}
}

func TestHistoryServiceLoad(t *testing.T) {
	blobs := newFakeBlobs()
	blobs.objects["data/btc.csv"] = []byte("time,close,Blue Wave Crossing UP,Blue Wave Crossing Down\n1,100,-70,NaN\n")
	s := NewHistoryService(blobs)

	rows, err := s.Load(context.Background(), "data/btc.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Close != 100 || rows[0].LongCross == nil || rows[0].ShortCross != nil {
		t.Fatalf("rows = %+v", rows)
	}
	if _, err := s.Load(context.Background(), "missing.csv"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	infos, _ := s.Datasets(context.Background(), "data/")
	if len(infos) != 1 {
		t.Fatalf("datasets = %v", infos)
	}
}

func TestParseAlertBody(t *testing.T) {
	cases := []struct {
		body string
		want domain.AlertKind
		ok   bool
	}{
		{"green1_bottom_60", domain.AlertGreenBottom, true},
		{"  red1_peak_60\n", domain.AlertRedPeak, true},
		{`{"alert":"red1_peak_60"}`, domain.AlertRedPeak, true},
		{`{"alert":`, "", false},
		{"blue_moon", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAlertBody([]byte(tc.body))
		if tc.ok != (err == nil) || got != tc.want {
			t.Errorf("ParseAlertBody(%q) = %q, %v", tc.body, got, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrUnknownAlert) {
			t.Errorf("ParseAlertBody(%q) err = %v, want ErrUnknownAlert", tc.body, err)
		}
	}
}

func TestAlertServiceDeliver(t *testing.T) {
	target := &fakeTarget{}
	s := NewAlertService(target, &fakeLocks{}, nil, time.Minute, quietLogger())
	ctx := context.Background()

	if err := s.Deliver(ctx, Delivery{BotID: 1, Body: []byte("green1_bottom_60"), DeliveryID: "d1"}); err != nil {
		t.Fatal(err)
	}
	err := s.Deliver(ctx, Delivery{BotID: 1, Body: []byte("green1_bottom_60"), DeliveryID: "d1"})
	if !errors.Is(err, domain.ErrDuplicateAlert) {
		t.Fatalf("err = %v", err)
	}
	// Same delivery ID on another bot is a different claim.
	if err := s.Deliver(ctx, Delivery{BotID: 2, Body: []byte("red1_peak_60"), DeliveryID: "d1"}); err != nil {
		t.Fatal(err)
	}
	if len(target.calls) != 2 || target.calls[1] != (alertCall{2, domain.AlertRedPeak}) {
		t.Fatalf("calls = %v", target.calls)
	}
}

func TestAlertServiceFailedDeliveryCanBeRetried(t *testing.T) {
	target := &fakeTarget{err: context.DeadlineExceeded}
	s := NewAlertService(target, &fakeLocks{}, nil, time.Minute, quietLogger())
	ctx := context.Background()
	d := Delivery{BotID: 1, Body: []byte("green1_bottom_60"), DeliveryID: "d1"}

	if err := s.Deliver(ctx, d); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first err = %v", err)
	}
	target.err = nil
	if err := s.Deliver(ctx, d); err != nil {
		t.Fatalf("retry err = %v", err)
	}
	if err := s.Deliver(ctx, d); !errors.Is(err, domain.ErrDuplicateAlert) {
		t.Fatalf("redelivery after success err = %v", err)
	}
	if len(target.calls) != 2 {
		t.Fatalf("calls = %v", target.calls)
	}
}

func TestAlertServiceSignature(t *testing.T) {
	target := &fakeTarget{}
	secret := []byte("s3cret")
	s := NewAlertService(target, nil, secret, 0, quietLogger())
	body := []byte(`{"alert":"green1_bottom_60"}`)

	err := s.Deliver(context.Background(), Delivery{BotID: 1, Body: body, Signature: "deadbeef"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	sig := "sha256=" + crypto.SignBody(secret, body)
	if err := s.Deliver(context.Background(), Delivery{BotID: 1, Body: body, Signature: sig}); err != nil {
		t.Fatal(err)
	}
	if len(target.calls) != 1 {
		t.Fatalf("calls = %v", target.calls)
	}
}

func TestAlertServicePropagatesTargetErrors(t *testing.T) {
	s := NewAlertService(&fakeTarget{err: domain.ErrBotNotFound}, nil, nil, 0, quietLogger())
	err := s.Deliver(context.Background(), Delivery{BotID: 9, Body: []byte("red1_peak_60")})
	if !errors.Is(err, domain.ErrBotNotFound) {
		t.Fatalf("err = %v", err)
	}
}
