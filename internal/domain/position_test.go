package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestPositionCloseLong(t *testing.T) {
	p := OpenPosition(SideLong, 100, 100, 1000, 1, "", time.Unix(0, 0))
	pnl, err := p.Close(111, "t1", time.Unix(10, 0))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if math.Abs(pnl-11) > 1e-9 {
		t.Fatalf("pnl = %v, want 11", pnl)
	}
	if p.Status != PositionStatusClosed || p.ClosePrice != 111 || p.CloseTime != "t1" || p.ClosedAt == nil {
		t.Fatalf("close fields not set: %+v", p)
	}
}

func TestPositionCloseShortInvertsSign(t *testing.T) {
	p := OpenPosition(SideShort, 200, 50, 1000, 2, "", time.Now())
	pnl, err := p.Close(45, "", time.Now())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// 200 * 2 * (45-50)/50 = -40, inverted for SHORT.
	if math.Abs(pnl-40) > 1e-9 {
		t.Fatalf("pnl = %v, want 40", pnl)
	}
}

func TestPositionCloseTwiceFails(t *testing.T) {
	p := OpenPosition(SideLong, 100, 100, 1000, 1, "", time.Now())
	if _, err := p.Close(90, "", time.Now()); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := p.Close(120, "", time.Now()); !errors.Is(err, ErrPositionClosed) {
		t.Fatalf("second close err = %v, want ErrPositionClosed", err)
	}
	if p.ClosePrice != 90 {
		t.Fatalf("close price mutated to %v", p.ClosePrice)
	}
}

func TestOpenPositionLeavesCloseFieldsUnset(t *testing.T) {
	p := OpenPosition(SideLong, 100, 100, 1000, 1, "2024-01-01", time.Now())
	if !p.IsOpen() || p.ClosePrice != 0 || p.CloseTime != "" || p.ClosedAt != nil || p.PnL != 0 {
		t.Fatalf("open position has close fields: %+v", p)
	}
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
}

func TestAlertKindSide(t *testing.T) {
	tests := []struct {
		raw  string
		side Side
		err  error
	}{
		{"green1_bottom_60", SideLong, nil},
		{"red1_peak_60", SideShort, nil},
		{"blue", "", ErrUnknownAlert},
	}
	for _, tt := range tests {
		k, err := ParseAlertKind(tt.raw)
		if !errors.Is(err, tt.err) {
			t.Fatalf("%s: err = %v, want %v", tt.raw, err, tt.err)
		}
		if err != nil {
			continue
		}
		if side, _ := k.Side(); side != tt.side {
			t.Fatalf("%s: side = %s, want %s", tt.raw, side, tt.side)
		}
	}
}

func TestBotConfigValidate(t *testing.T) {
	zero := 0.0
	good := BotConfig{Pair: "BTCUSDT", InitAmount: 1000, PercentForEachTrade: 0.1, Leverage: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	bad := []BotConfig{
		{InitAmount: 1000, PercentForEachTrade: 0.1, Leverage: 1},
		{Pair: "X", PercentForEachTrade: 0.1, Leverage: 1},
		{Pair: "X", InitAmount: 1000, PercentForEachTrade: 1.5, Leverage: 1},
		{Pair: "X", InitAmount: 1000, PercentForEachTrade: 0.1},
		{Pair: "X", InitAmount: 1000, PercentForEachTrade: 0.1, Leverage: 1, SLTP: SLTP{SL: &zero}},
		{Pair: "X", InitAmount: 1000, PercentForEachTrade: 0.1, Leverage: 1, HistData: "a", HistKey: "b"},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: err = %v, want ErrInvalidConfig", i, err)
		}
	}
}
