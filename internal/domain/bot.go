package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BotMode is fixed for a bot's lifetime.
type BotMode string

const (
	BotModeLive     BotMode = "LIVE"
	BotModeBacktest BotMode = "BACKTEST"
)

// SLTP holds optional stop-loss and take-profit fractions.
type SLTP struct {
	SL *float64 `json:"sl,omitempty" toml:"sl"`
	TP *float64 `json:"tp,omitempty" toml:"tp"`
}

// Indicators labels the chart signals a strategy listens to.
type Indicators struct {
	YX string `json:"yx,omitempty" toml:"yx"`
	BD string `json:"bd,omitempty" toml:"bd"`
}

// TrailingStop is carried on the config and reported, but not evaluated.
type TrailingStop struct {
	Activation   *float64 `json:"tslActivation,omitempty" toml:"tsl_activation"`
	CallbackRate *float64 `json:"tslCallbackRate,omitempty" toml:"tsl_callback_rate"`
}

// BotConfig is the immutable construction input for a bot.
type BotConfig struct {
	Pair                string       `json:"pair" toml:"pair"`
	InitAmount          float64      `json:"initAmount" toml:"init_amount"`
	PercentForEachTrade float64      `json:"percentForEachTrade" toml:"percent_for_each_trade"`
	Leverage            float64      `json:"leverage" toml:"leverage"`
	Strategy            string       `json:"strategy" toml:"strategy"`
	YXBD                Indicators   `json:"yxbd" toml:"yxbd"`
	SLTP                SLTP         `json:"sltp" toml:"sltp"`
	Trailing            TrailingStop `json:"trailing" toml:"trailing"`
	// HistData is a raw CSV dataset. HistKey names a dataset in blob storage.
	HistData string `json:"histData,omitempty" toml:"hist_data"`
	HistKey  string `json:"histKey,omitempty" toml:"hist_key"`
}

// Backtest reports whether the config selects BACKTEST mode.
func (c BotConfig) Backtest() bool {
	return strings.TrimSpace(c.HistData) != "" || strings.TrimSpace(c.HistKey) != ""
}

// Validate checks required fields. The returned error wraps ErrInvalidConfig.
func (c BotConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Pair) == "" {
		errs = append(errs, errors.New("pair is required"))
	}
	if c.InitAmount <= 0 {
		errs = append(errs, fmt.Errorf("initAmount must be > 0, got %v", c.InitAmount))
	}
	if c.PercentForEachTrade <= 0 || c.PercentForEachTrade > 1 {
		errs = append(errs, fmt.Errorf("percentForEachTrade must be in (0, 1], got %v", c.PercentForEachTrade))
	}
	if c.Leverage <= 0 {
		errs = append(errs, fmt.Errorf("leverage must be > 0, got %v", c.Leverage))
	}
	if c.SLTP.SL != nil && *c.SLTP.SL <= 0 {
		errs = append(errs, fmt.Errorf("sl must be > 0 when set, got %v", *c.SLTP.SL))
	}
	if c.SLTP.TP != nil && *c.SLTP.TP <= 0 {
		errs = append(errs, fmt.Errorf("tp must be > 0 when set, got %v", *c.SLTP.TP))
	}
	if c.HistData != "" && c.HistKey != "" {
		errs = append(errs, errors.New("histData and histKey are mutually exclusive"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// BotSummary is the read model pushed to roster listeners.
type BotSummary struct {
	ID                  int64        `json:"id"`
	Pair                string       `json:"pair"`
	Strategy            string       `json:"strategy"`
	YXBD                Indicators   `json:"yxbd"`
	Mode                BotMode      `json:"mode"`
	InitAmount          float64      `json:"initAmount"`
	PercentForEachTrade float64      `json:"percentForEachTrade"`
	Leverage            float64      `json:"leverage"`
	SLTP                SLTP         `json:"sltp"`
	Trailing            TrailingStop `json:"trailing"`
	Equity              float64      `json:"equity"`
	PnL                 float64      `json:"pnl"`
	TradeCount          int          `json:"txs"`
	Position            *Position    `json:"position,omitempty"`
	// MarkPrice and UnrealizedPnL are filled from the price cache when the
	// position is open and a price is known.
	MarkPrice     float64    `json:"mark_price,omitempty"`
	UnrealizedPnL *float64   `json:"unrealized_pnl,omitempty"`
	Log           []LogEntry `json:"log"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LogKind classifies a bot log entry.
type LogKind string

const (
	LogSuccess LogKind = "SUCCESS"
	LogError   LogKind = "ERROR"
)

// LogEntry is one append-only bot event. Source is "<pair>-<id>".
type LogEntry struct {
	ID      string         `json:"id"`
	BotID   int64          `json:"bot_id"`
	Source  string         `json:"source"`
	Kind    LogKind        `json:"kind"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
	Time    time.Time      `json:"time"`
}

// LogSource builds the external store key for a bot.
func LogSource(pair string, id int64) string {
	return fmt.Sprintf("%s-%d", pair, id)
}
