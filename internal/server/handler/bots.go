package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/alertbot/internal/bot"
	"github.com/alanyoungcy/alertbot/internal/domain"
)

// maxBotBody bounds POST /api/bots; inline datasets can be large.
const maxBotBody = 16 << 20

// BotRegistry is the part of bot.Registry the handlers use.
type BotRegistry interface {
	Create(ctx context.Context, cfg domain.BotConfig) (int64, error)
	Remove(ctx context.Context, id int64) error
	Get(id int64) (*bot.Engine, error)
	List() []domain.BotSummary
}

// LogHistory reads persisted bot logs.
type LogHistory interface {
	History(ctx context.Context, source string, opts domain.ListOpts) ([]domain.LogEntry, error)
}

// TradeHistory reads persisted closed positions.
type TradeHistory interface {
	ListByBot(ctx context.Context, botID int64, opts domain.ListOpts) ([]domain.TradeRecord, error)
}

// PriceMarker returns the last cached price per pair.
type PriceMarker interface {
	LatestPrices(ctx context.Context, pairs []string) (map[string]float64, error)
}

// BotHandler serves the /api/bots endpoints.
type BotHandler struct {
	bots   BotRegistry
	logs   LogHistory
	trades TradeHistory
	marks  PriceMarker
	logger *slog.Logger
}

// NewBotHandler creates a BotHandler. logs and trades may be nil, in which
// case only the in-memory views are served. marks may be nil, in which case
// open positions are reported without unrealized PnL.
func NewBotHandler(bots BotRegistry, logs LogHistory, trades TradeHistory, marks PriceMarker, logger *slog.Logger) *BotHandler {
	return &BotHandler{bots: bots, logs: logs, trades: trades, marks: marks, logger: logger}
}

// ListBots returns every bot in ascending ID order.
// GET /api/bots
func (h *BotHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	bots := h.bots.List()
	h.markToMarket(r.Context(), bots)
	writeJSON(w, http.StatusOK, bots)
}

// markToMarket fills UnrealizedPnL for bots holding an open position.
func (h *BotHandler) markToMarket(ctx context.Context, bots []domain.BotSummary) {
	if h.marks == nil {
		return
	}
	var pairs []string
	for _, b := range bots {
		if b.Position != nil && b.Position.IsOpen() {
			pairs = append(pairs, strings.ToUpper(b.Pair))
		}
	}
	if len(pairs) == 0 {
		return
	}
	prices, err := h.marks.LatestPrices(ctx, pairs)
	if err != nil {
		h.logger.WarnContext(ctx, "handler: mark positions failed", slog.String("error", err.Error()))
		return
	}
	for i := range bots {
		b := &bots[i]
		if b.Position == nil || !b.Position.IsOpen() {
			continue
		}
		price, ok := prices[strings.ToUpper(b.Pair)]
		if !ok || price <= 0 {
			continue
		}
		pnl := b.Position.UnrealizedPnL(price)
		b.MarkPrice = price
		b.UnrealizedPnL = &pnl
	}
}

// CreateBot starts a bot from a JSON BotConfig.
// POST /api/bots
func (h *BotHandler) CreateBot(w http.ResponseWriter, r *http.Request) {
	var cfg domain.BotConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBotBody))
	if err := dec.Decode(&cfg); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty request body")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	id, err := h.bots.Create(r.Context(), cfg)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create bot failed", slog.String("error", err.Error()))
		}
		writeDomainError(w, err)
		return
	}
	eng, err := h.bots.Get(id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, eng.Summary())
}

// GetBot returns one bot summary.
// GET /api/bots/{id}
func (h *BotHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	bots := []domain.BotSummary{eng.Summary()}
	h.markToMarket(r.Context(), bots)
	writeJSON(w, http.StatusOK, bots[0])
}

// DeleteBot stops and removes a bot.
// DELETE /api/bots/{id}
func (h *BotHandler) DeleteBot(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	if err := h.bots.Remove(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLogs returns a bot's log, newest first. With ?persisted=true the
// external store is queried instead of the in-memory log.
// GET /api/bots/{id}/logs
func (h *BotHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	opts := parseListOpts(r)

	if r.URL.Query().Get("persisted") == "true" && h.logs != nil {
		entries, err := h.logs.History(r.Context(), domain.LogSource(eng.Pair(), eng.ID()), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list logs failed", slog.String("error", err.Error()))
			writeDomainError(w, err)
			return
		}
		if entries == nil {
			entries = []domain.LogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}
	writeJSON(w, http.StatusOK, page(eng.Logs(), opts))
}

// ListTrades returns a bot's closed positions. With ?persisted=true the
// trade store is queried instead.
// GET /api/bots/{id}/trades
func (h *BotHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	opts := parseListOpts(r)

	if r.URL.Query().Get("persisted") == "true" && h.trades != nil {
		recs, err := h.trades.ListByBot(r.Context(), eng.ID(), opts)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list trades failed", slog.String("error", err.Error()))
			writeDomainError(w, err)
			return
		}
		trades := make([]domain.Position, len(recs))
		for i, rec := range recs {
			trades[i] = rec.Position
		}
		writeJSON(w, http.StatusOK, trades)
		return
	}

	trades := eng.Trades()
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	writeJSON(w, http.StatusOK, page(trades, opts))
}

func (h *BotHandler) engine(w http.ResponseWriter, r *http.Request) (*bot.Engine, bool) {
	id, ok := botID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return nil, false
	}
	eng, err := h.bots.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return eng, true
}
