// Package service holds the application services that sit between the bot
// engines and the storage, cache and exchange adapters.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// QuoteSource fetches a price from the exchange on demand.
type QuoteSource interface {
	GetPrice(ctx context.Context, pair string) (float64, error)
}

const defaultFetchTimeout = 10 * time.Second

// PriceService implements domain.PriceSource. It answers from the Redis
// price cache while the cached value is younger than maxAge and otherwise
// asks the exchange, coalescing concurrent requests for the same pair.
type PriceService struct {
	cache   domain.PriceCache
	quotes  QuoteSource
	signals domain.SignalBus
	maxAge  time.Duration
	now     func() time.Time
	group   singleflight.Group
	// fetchTimeout bounds one coalesced exchange request.
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// NewPriceService creates a PriceService. cache and signals may be nil.
func NewPriceService(
	cache domain.PriceCache,
	quotes QuoteSource,
	signals domain.SignalBus,
	maxAge time.Duration,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		cache:   cache,
		quotes:  quotes,
		signals: signals,
		maxAge:  maxAge,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "price_service")),

		fetchTimeout: defaultFetchTimeout,
	}
}

// GetCurrentPrice returns the latest price for pair.
func (s *PriceService) GetCurrentPrice(ctx context.Context, pair string) (float64, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if price, ok := s.cached(ctx, pair); ok {
		return price, nil
	}

	// The shared fetch outlives any single caller; each caller waits on its
	// own ctx.
	ch := s.group.DoChan(pair, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		price, err := s.quotes.GetPrice(fetchCtx, pair)
		if err != nil {
			return 0.0, err
		}
		if s.cache != nil {
			if cerr := s.cache.SetPrice(fetchCtx, pair, price, s.now()); cerr != nil {
				s.logger.WarnContext(ctx, "cache price failed",
					slog.String("pair", pair),
					slog.String("error", cerr.Error()),
				)
			}
		}
		return price, nil
	})
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("price_service: get price %s: %w", pair, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return 0, fmt.Errorf("price_service: get price %s: %w", pair, res.Err)
		}
		return res.Val.(float64), nil
	}
}

func (s *PriceService) cached(ctx context.Context, pair string) (float64, bool) {
	if s.cache == nil || s.maxAge <= 0 {
		return 0, false
	}
	price, ts, err := s.cache.GetPrice(ctx, pair)
	if err != nil || price <= 0 {
		return 0, false
	}
	if s.now().Sub(ts) > s.maxAge {
		return 0, false
	}
	return price, true
}

// HandleTick stores a pushed tick in the cache and publishes it on the
// "prices" channel, from which the tick bridge feeds live triggers.
func (s *PriceService) HandleTick(ctx context.Context, tick domain.PriceTick) error {
	tick.Pair = strings.ToUpper(strings.TrimSpace(tick.Pair))
	if tick.Pair == "" {
		return fmt.Errorf("price_service: %w: empty pair", domain.ErrInvalidConfig)
	}
	if tick.LastPrice <= 0 || math.IsNaN(tick.LastPrice) || math.IsInf(tick.LastPrice, 0) {
		return fmt.Errorf("price_service: %w: price %v", domain.ErrPriceUnavailable, tick.LastPrice)
	}
	if tick.Timestamp.IsZero() {
		tick.Timestamp = s.now()
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, tick.Pair, tick.LastPrice, tick.Timestamp); err != nil {
			return fmt.Errorf("price_service: set price for %q: %w", tick.Pair, err)
		}
	}
	if s.signals == nil {
		return nil
	}

	evt, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("price_service: marshal tick: %w", err)
	}
	if err := s.signals.Publish(ctx, domain.ChannelPrices, evt); err != nil {
		s.logger.WarnContext(ctx, "publish tick failed",
			slog.String("pair", tick.Pair),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// LatestPrices returns cached prices for pairs; missing pairs are omitted.
func (s *PriceService) LatestPrices(ctx context.Context, pairs []string) (map[string]float64, error) {
	if s.cache == nil {
		return map[string]float64{}, nil
	}
	prices, err := s.cache.GetPrices(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}
