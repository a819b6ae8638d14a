package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/alertbot/internal/bus"
	"github.com/alanyoungcy/alertbot/internal/domain"
)

type rosterRecorder struct {
	mu     sync.Mutex
	counts []int
}

func (r *rosterRecorder) BroadcastRoster(_ context.Context, bots []domain.BotSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, len(bots))
}

func (r *rosterRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counts)
}

type reportRecorder struct {
	done chan []domain.Position
}

func (r *reportRecorder) ReportBacktest(_ context.Context, _ domain.BotSummary, trades []domain.Position) {
	r.done <- trades
}

type watchRecorder struct {
	mu        sync.Mutex
	pairs     []string
	unwatched []string
}

func (w *watchRecorder) Watch(pair string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pairs = append(w.pairs, pair)
}

func (w *watchRecorder) Unwatch(pair string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatched = append(w.unwatched, pair)
}

func (w *watchRecorder) Unwatched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.unwatched...)
}

type memHistory map[string][]domain.HistRow

func (m memHistory) Load(_ context.Context, key string) ([]domain.HistRow, error) {
	rows, ok := m[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rows, nil
}

func newTestRegistry(hooks Hooks) *Registry {
	return NewRegistry(Deps{
		Prices: &fakePrices{price: 100},
		Bus:    bus.New(),
		Now:    fixedNow,
	}, hooks)
}

func TestRegistryIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	roster := &rosterRecorder{}
	r := newTestRegistry(Hooks{Roster: roster})
	defer r.Shutdown()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := r.Create(ctx, liveConfig(nil, nil))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("ids = %v", ids)
	}

	if err := r.Remove(ctx, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Create(ctx, domain.BotConfig{Pair: "X"}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("invalid create err = %v", err)
	}
	id, err := r.Create(ctx, liveConfig(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if id != 4 {
		t.Fatalf("id after remove = %d, want 4", id)
	}

	list := r.List()
	if len(list) != 3 || list[0].ID != 1 || list[1].ID != 3 || list[2].ID != 4 {
		t.Fatalf("list ids = %+v", list)
	}
	// three creates, one remove, one create
	if roster.calls() != 5 {
		t.Fatalf("roster broadcasts = %d, want 5", roster.calls())
	}
}

func TestRegistryRemoveUnknown(t *testing.T) {
	r := newTestRegistry(Hooks{})
	if err := r.Remove(context.Background(), 42); !errors.Is(err, domain.ErrBotNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := r.Alert(context.Background(), 42, domain.AlertGreenBottom); !errors.Is(err, domain.ErrBotNotFound) {
		t.Fatalf("alert err = %v", err)
	}
}

func TestRegistryAlertClosesAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	roster := &rosterRecorder{}
	watcher := &watchRecorder{}
	b := bus.New()
	r := NewRegistry(Deps{Prices: &fakePrices{price: 100}, Bus: b}, Hooks{Roster: roster, Watcher: watcher})
	defer r.Shutdown()

	id, err := r.Create(ctx, liveConfig(ptr(0.05), ptr(0.10)))
	if err != nil {
		t.Fatal(err)
	}
	if len(watcher.pairs) != 1 || watcher.pairs[0] != "X" {
		t.Fatalf("watched pairs = %v", watcher.pairs)
	}
	if err := r.Alert(ctx, id, domain.AlertGreenBottom); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return b.Len(bus.TopicPriceTick) == 1 })
	b.Publish(ctx, bus.TopicPriceTick, domain.PriceTick{Pair: "X", LastPrice: 111})
	waitFor(t, func() bool { return r.List()[0].TradeCount == 1 })

	s := r.List()[0]
	if !near(s.Equity, 1011) {
		t.Fatalf("equity = %v", s.Equity)
	}
	// create + close
	waitFor(t, func() bool { return roster.calls() == 2 })
}

func TestRegistryRemoveUnwatchesIdlePair(t *testing.T) {
	ctx := context.Background()
	watcher := &watchRecorder{}
	r := newTestRegistry(Hooks{Watcher: watcher})
	defer r.Shutdown()

	first, err := r.Create(ctx, liveConfig(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Create(ctx, liveConfig(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	backtest := liveConfig(nil, nil)
	backtest.HistData = "time,close\nt1,100\n"
	replay, err := r.Create(ctx, backtest)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Remove(ctx, first); err != nil {
		t.Fatal(err)
	}
	if got := watcher.Unwatched(); len(got) != 0 {
		t.Fatalf("pair still traded by bot %d but unwatched: %v", second, got)
	}
	if err := r.Remove(ctx, replay); err != nil {
		t.Fatal(err)
	}
	if got := watcher.Unwatched(); len(got) != 0 {
		t.Fatalf("removing a backtest bot unwatched %v", got)
	}
	if err := r.Remove(ctx, second); err != nil {
		t.Fatal(err)
	}
	if got := watcher.Unwatched(); len(got) != 1 || got[0] != "X" {
		t.Fatalf("unwatched = %v", got)
	}
}

func TestRegistryBacktestFromStore(t *testing.T) {
	ctx := context.Background()
	reports := &reportRecorder{done: make(chan []domain.Position, 1)}
	history := memHistory{"data/x.csv": {
		row(100, "t1", ptr(-61), nil),
		row(111, "t2", nil, nil),
	}}
	r := newTestRegistry(Hooks{History: history, Reports: reports})
	defer r.Shutdown()

	cfg := liveConfig(ptr(0.05), ptr(0.10))
	cfg.HistKey = "data/x.csv"
	id, err := r.Create(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.WaitBacktests(waitCtx); err != nil {
		t.Fatalf("WaitBacktests: %v", err)
	}

	select {
	case trades := <-reports.done:
		if len(trades) != 1 || !near(trades[0].PnL, 11) {
			t.Fatalf("trades = %+v", trades)
		}
	case <-time.After(time.Second):
		t.Fatal("report not produced")
	}

	eng, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if eng.Mode() != domain.BotModeBacktest {
		t.Fatalf("mode = %s", eng.Mode())
	}

	cfg.HistKey = "missing.csv"
	if _, err := r.Create(ctx, cfg); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("missing dataset err = %v", err)
	}
}

func TestRegistryInlineCSV(t *testing.T) {
	r := newTestRegistry(Hooks{})
	defer r.Shutdown()

	cfg := liveConfig(nil, nil)
	cfg.HistData = "time,close,Blue Wave Crossing UP\nt1,100,-75\n"
	id, err := r.Create(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.WaitBacktests(context.Background()); err != nil {
		t.Fatal(err)
	}
	eng, _ := r.Get(id)
	if eng.Summary().Position == nil {
		t.Fatal("inline dataset did not open a position")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
