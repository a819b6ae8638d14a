package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// TickIngester accepts pushed ticks and serves cached prices.
type TickIngester interface {
	HandleTick(ctx context.Context, tick domain.PriceTick) error
	LatestPrices(ctx context.Context, pairs []string) (map[string]float64, error)
}

// PriceHandler serves the price endpoints.
type PriceHandler struct {
	prices TickIngester
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices TickIngester) *PriceHandler {
	return &PriceHandler{prices: prices}
}

// PostTicks ingests one tick object or an array of them. It lets an
// external feed drive SL/TP triggers instead of the built-in stream.
// POST /api/ticks
func (h *PriceHandler) PostTicks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var ticks []domain.PriceTick
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &ticks)
	} else {
		var t domain.PriceTick
		err = json.Unmarshal(body, &t)
		ticks = []domain.PriceTick{t}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	for _, t := range ticks {
		if err := h.prices.HandleTick(r.Context(), t); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(ticks)})
}

// GetPrices returns cached prices for ?pairs=A,B.
// GET /api/prices
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	var pairs []string
	for _, p := range strings.Split(r.URL.Query().Get("pairs"), ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		writeError(w, http.StatusBadRequest, "pairs query parameter required")
		return
	}
	prices, err := h.prices.LatestPrices(r.Context(), pairs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}
