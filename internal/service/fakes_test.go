package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type cachedPrice struct {
	price float64
	ts    time.Time
}

type fakeCache struct {
	mu     sync.Mutex
	prices map[string]cachedPrice
}

func newFakeCache() *fakeCache { return &fakeCache{prices: map[string]cachedPrice{}} }

func (c *fakeCache) SetPrice(_ context.Context, pair string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[strings.ToUpper(pair)] = cachedPrice{price, ts}
	return nil
}

func (c *fakeCache) GetPrice(_ context.Context, pair string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[strings.ToUpper(pair)]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

func (c *fakeCache) GetPrices(_ context.Context, pairs []string) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]float64{}
	for _, p := range pairs {
		if v, ok := c.prices[strings.ToUpper(p)]; ok {
			out[p] = v.price
		}
	}
	return out, nil
}

type fakeQuotes struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
	gate  chan struct{}
}

func (q *fakeQuotes) GetPrice(ctx context.Context, _ string) (float64, error) {
	if q.gate != nil {
		<-q.gate
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.price, q.err
}

func (q *fakeQuotes) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type published struct {
	channel string
	data    []byte
}

type fakeSignals struct {
	mu        sync.Mutex
	published []published
	streamed  []published
	err       error
}

func (s *fakeSignals) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, published{channel, payload})
	return s.err
}

func (s *fakeSignals) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (s *fakeSignals) StreamAppend(_ context.Context, stream string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamed = append(s.streamed, published{stream, payload})
	return s.err
}

func (s *fakeSignals) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StreamMessage
	for i, m := range s.streamed {
		out = append(out, domain.StreamMessage{ID: string(rune('a' + i)), Payload: m.data})
	}
	return out, nil
}

func (s *fakeSignals) on(channel string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, p := range s.published {
		if p.channel == channel {
			out = append(out, p.data)
		}
	}
	return out
}

type fakeLogStore struct {
	entries []domain.LogEntry
	err     error
}

func (f *fakeLogStore) Append(_ context.Context, e domain.LogEntry) error {
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeLogStore) ListBySource(_ context.Context, source string, _ domain.ListOpts) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	for _, e := range f.entries {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTradeStore struct {
	recs []domain.TradeRecord
}

func (f *fakeTradeStore) Insert(_ context.Context, rec domain.TradeRecord) error {
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeTradeStore) ListByBot(_ context.Context, id int64, _ domain.ListOpts) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for _, r := range f.recs {
		if r.BotID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type notification struct {
	event, title, message string
}

type fakeNotifier struct {
	sent []notification
}

func (f *fakeNotifier) Notify(_ context.Context, event, title, message string) error {
	f.sent = append(f.sent, notification{event, title, message})
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *fakeBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	b.types[path] = contentType
	return nil
}

func (b *fakeBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *fakeBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (b *fakeBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type alertCall struct {
	id   int64
	kind domain.AlertKind
}

type fakeTarget struct {
	calls []alertCall
	err   error
}

func (t *fakeTarget) Alert(_ context.Context, id int64, kind domain.AlertKind) error {
	t.calls = append(t.calls, alertCall{id, kind})
	return t.err
}
