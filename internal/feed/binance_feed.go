// Package feed connects market data sources to the price service and the
// in-process trigger bus.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/platform/binance"
)

// TickHandler is called for each tick received from the exchange.
type TickHandler func(ctx context.Context, tick domain.PriceTick)

// TickStream is the exchange stream the feed drives.
type TickStream interface {
	OnTick(binance.TickHandler)
	Watch(ctx context.Context, pair string) error
	Unwatch(ctx context.Context, pair string) error
	Run(ctx context.Context) error
}

// BinanceFeed streams mini-ticker events for every watched pair and hands
// them to onTick. Pairs can be added and dropped at runtime.
type BinanceFeed struct {
	stream TickStream
	onTick TickHandler
	logger *slog.Logger

	mu  sync.Mutex
	ctx context.Context
	// pinned pairs come from configuration and are never unwatched.
	pinned map[string]struct{}
}

// NewBinanceFeed creates a feed over stream. initial pairs are watched
// before the first connection and stay watched.
func NewBinanceFeed(stream TickStream, initial []string, onTick TickHandler, logger *slog.Logger) *BinanceFeed {
	f := &BinanceFeed{
		stream: stream,
		onTick: onTick,
		logger: logger.With(slog.String("component", "binance_feed")),
		ctx:    context.Background(),
		pinned: make(map[string]struct{}, len(initial)),
	}
	for _, p := range initial {
		f.pinned[strings.ToUpper(p)] = struct{}{}
		f.Watch(p)
	}
	return f
}

// Watch adds a pair to the stream. It satisfies the registry's pair watcher.
func (f *BinanceFeed) Watch(pair string) {
	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	if err := f.stream.Watch(ctx, pair); err != nil {
		f.logger.Warn("watch pair failed",
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
	}
}

// Unwatch drops a pair that no live bot trades any more. Pinned pairs are
// kept.
func (f *BinanceFeed) Unwatch(pair string) {
	f.mu.Lock()
	ctx := f.ctx
	_, pinned := f.pinned[strings.ToUpper(pair)]
	f.mu.Unlock()
	if pinned {
		return
	}
	if err := f.stream.Unwatch(ctx, pair); err != nil {
		f.logger.Warn("unwatch pair failed",
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
	}
}

// Run streams until ctx is cancelled.
func (f *BinanceFeed) Run(ctx context.Context) error {
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()

	f.stream.OnTick(func(tick domain.PriceTick) {
		f.onTick(ctx, tick)
	})
	f.logger.Info("binance feed started")
	defer f.logger.Info("binance feed stopped")
	return f.stream.Run(ctx)
}
