package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

type fakePrices struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
}

func (f *fakePrices) GetCurrentPrice(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.price, f.err
}

func (f *fakePrices) set(price float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.err = price, err
}

type memSink struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (s *memSink) Append(_ context.Context, e domain.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *memSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Message
	}
	return out
}

type finished struct {
	bot    domain.BotSummary
	trades []domain.Position
}

type chanListener struct {
	closed   chan domain.Position
	finished chan finished
}

func newChanListener() *chanListener {
	return &chanListener{
		closed:   make(chan domain.Position, 16),
		finished: make(chan finished, 4),
	}
}

func (l *chanListener) PositionClosed(_ context.Context, _ domain.BotSummary, pos domain.Position) {
	l.closed <- pos
}

func (l *chanListener) BacktestFinished(_ context.Context, bot domain.BotSummary, trades []domain.Position) {
	l.finished <- finished{bot: bot, trades: trades}
}

func ptr(v float64) *float64 { return &v }

func liveConfig(sl, tp *float64) domain.BotConfig {
	return domain.BotConfig{
		Pair:                "X",
		InitAmount:          1000,
		PercentForEachTrade: 0.1,
		Leverage:            1,
		Strategy:            "bluewave",
		SLTP:                domain.SLTP{SL: sl, TP: tp},
	}
}

func fixedNow() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

// drain runs every queued event on the calling goroutine.
func drain(t *testing.T, ctx context.Context, e *Engine) int {
	t.Helper()
	n := 0
	for {
		select {
		case ev := <-e.inbox:
			ev(ctx)
			n++
		default:
			return n
		}
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
