package postgres

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "alerts"})
	if got != "postgres://u:p@db:5432/alerts?sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN = %q", got)
	}
}

func TestListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	q := newListQuery("SELECT * FROM trades WHERE bot_id = $1", int64(7))
	q.apply("closed_at", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	want := "SELECT * FROM trades WHERE bot_id = $1 AND closed_at >= $2 ORDER BY closed_at DESC LIMIT $3 OFFSET $4"
	if q.String() != want {
		t.Fatalf("query = %q", q.String())
	}
	if !reflect.DeepEqual(q.args, []any{int64(7), since, 10, 20}) {
		t.Fatalf("args = %v", q.args)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"bot_logs", "trades", "audit_log"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("missing table %s", table)
		}
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatal("empty string should be NULL")
	}
	if v := nullable("2024-01-01"); v == nil || *v != "2024-01-01" {
		t.Fatalf("nullable = %v", v)
	}
}

func TestTradeInsertRejectsBadPositions(t *testing.T) {
	// Both checks run before the pool is touched.
	s := NewTradeStore(nil)
	ctx := context.Background()

	open := domain.TradeRecord{BotID: 1, Position: domain.Position{ID: "p1", Side: domain.SideLong, Status: domain.PositionStatusOpen}}
	if err := s.Insert(ctx, open); err == nil || !strings.Contains(err.Error(), "OPEN") {
		t.Fatalf("open position err = %v", err)
	}
	sideless := domain.TradeRecord{BotID: 1, Position: domain.Position{ID: "p2", Side: "UP", Status: domain.PositionStatusClosed}}
	if err := s.Insert(ctx, sideless); err == nil || !strings.Contains(err.Error(), "unknown side") {
		t.Fatalf("unknown side err = %v", err)
	}
}
