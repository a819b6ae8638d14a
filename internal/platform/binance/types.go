// Package binance is a small client for the Binance spot market data API:
// the REST ticker price endpoint and the mini-ticker WebSocket stream.
package binance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// TickerPrice is the body of GET /api/v3/ticker/price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// APIError is the error body Binance returns on 4xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: api error %d: %s", e.Code, e.Msg)
}

// MiniTicker is a <symbol>@miniTicker stream event.
type MiniTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
}

// ToTick converts the event into a domain price tick.
func (m MiniTicker) ToTick() (domain.PriceTick, error) {
	price, err := strconv.ParseFloat(m.Close, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("binance: parse close %q: %w", m.Close, err)
	}
	return domain.PriceTick{
		Pair:      m.Symbol,
		LastPrice: price,
		Timestamp: time.UnixMilli(m.EventTime),
	}, nil
}

// wsCommand is a SUBSCRIBE / UNSUBSCRIBE request on the raw stream socket.
type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Symbol normalizes a pair to the upper-case form used by the REST API.
func Symbol(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

func streamName(pair string) string {
	return strings.ToLower(strings.TrimSpace(pair)) + "@miniTicker"
}
