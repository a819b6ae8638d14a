package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

const sampleTOML = `
mode = "backtest"
log_level = "debug"

[exchange]
request_timeout = "3s"
watch_pairs = ["BTCUSDT"]

[postgres]
enabled = false

[backtest]
pacing = "0s"

[[bots]]
pair = "BTCUSDT"
init_amount = 1000.0
percent_for_each_trade = 0.1
leverage = 2.0
strategy = "bluewave"
hist_data = """
time,close,Blue Wave Crossing UP
t1,100,-70
"""

[bots.sltp]
sl = 0.05
tp = 0.1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alertbot.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Mode != "backtest" || cfg.LogLevel != "debug" {
		t.Fatalf("mode=%q level=%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Exchange.RequestTimeout.Duration != 3*time.Second {
		t.Fatalf("request_timeout = %v", cfg.Exchange.RequestTimeout.Duration)
	}
	if cfg.Exchange.RestURL != "https://api.binance.com" {
		t.Fatalf("default rest_url lost: %q", cfg.Exchange.RestURL)
	}
	if cfg.Backtest.Pacing.Duration != 0 {
		t.Fatalf("pacing = %v", cfg.Backtest.Pacing.Duration)
	}
	if len(cfg.Bots) != 1 {
		t.Fatalf("bots = %d", len(cfg.Bots))
	}
	b := cfg.Bots[0]
	if b.Leverage != 2 || b.SLTP.SL == nil || *b.SLTP.SL != 0.05 || !b.Backtest() {
		t.Fatalf("bot = %+v", b)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ALERTBOT_MODE", "server")
	t.Setenv("ALERTBOT_SERVER_PORT", "9100")
	t.Setenv("ALERTBOT_EXCHANGE_WATCH_PAIRS", "ethusdt, solusdt ,")
	t.Setenv("ALERTBOT_BACKTEST_PACING", "1ms")

	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "server" || cfg.Server.Port != 9100 {
		t.Fatalf("mode=%q port=%d", cfg.Mode, cfg.Server.Port)
	}
	if got := strings.Join(cfg.Exchange.WatchPairs, ","); got != "ethusdt,solusdt" {
		t.Fatalf("watch_pairs = %q", got)
	}
	if cfg.Backtest.Pacing.Duration != time.Millisecond {
		t.Fatalf("pacing = %v", cfg.Backtest.Pacing.Duration)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Redis.Addr = ""
	cfg.Webhook.EncryptedSecretPath = "/secret.enc"
	cfg.Bots = []domain.BotConfig{{Pair: "X"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "redis: addr", "webhook: secret_password", "bots[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestDefaultsValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Webhook.Secret = "s3cret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	if out.Postgres.Password != redacted || out.Webhook.Secret != redacted || out.Server.APIKey != redacted {
		t.Fatalf("secrets not redacted: %+v", out)
	}
	if cfg.Webhook.Secret != "s3cret" {
		t.Fatal("original mutated")
	}
	if out.Redis.Password != "" {
		t.Fatal("empty secret should stay empty")
	}
}
