package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TickHandler is called for every mini-ticker event received.
type TickHandler func(domain.PriceTick)

// StreamClient keeps a mini-ticker WebSocket subscription alive for every
// watched pair. Subscriptions are restored after a reconnect.
type StreamClient struct {
	wsURL  string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	watched map[string]struct{}
	nextID  atomic.Int64

	handlerMu sync.RWMutex
	handlers  []TickHandler

	reconnect time.Duration
}

// NewStreamClient creates a client for the raw stream endpoint, e.g.
// "wss://stream.binance.com:9443/ws".
func NewStreamClient(wsURL string, logger *slog.Logger) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamClient{
		wsURL:     wsURL,
		logger:    logger.With(slog.String("component", "binance_ws")),
		watched:   make(map[string]struct{}),
		reconnect: reconnectDelay,
	}
}

// SetReconnectDelay sets the first backoff delay. It doubles per failed
// attempt up to one minute.
func (s *StreamClient) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		s.reconnect = d
	}
}

// OnTick registers a handler for decoded ticks.
func (s *StreamClient) OnTick(h TickHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Watch adds a pair to the subscription set. If a connection is open the
// SUBSCRIBE command is sent immediately; otherwise it is sent on connect.
func (s *StreamClient) Watch(ctx context.Context, pair string) error {
	name := streamName(pair)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[name]; ok {
		return nil
	}
	s.watched[name] = struct{}{}
	if s.conn == nil {
		return nil
	}
	if err := s.send(wsCommand{Method: "SUBSCRIBE", Params: []string{name}, ID: s.nextID.Add(1)}); err != nil {
		return fmt.Errorf("binance/ws: subscribe %s: %w", pair, err)
	}
	return nil
}

// Unwatch removes a pair from the subscription set.
func (s *StreamClient) Unwatch(ctx context.Context, pair string) error {
	name := streamName(pair)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[name]; !ok {
		return nil
	}
	delete(s.watched, name)
	if s.conn == nil {
		return nil
	}
	if err := s.send(wsCommand{Method: "UNSUBSCRIBE", Params: []string{name}, ID: s.nextID.Add(1)}); err != nil {
		return fmt.Errorf("binance/ws: unsubscribe %s: %w", pair, err)
	}
	return nil
}

// Watched returns the number of pairs in the subscription set.
func (s *StreamClient) Watched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched)
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff on failure.
func (s *StreamClient) Run(ctx context.Context) error {
	delay := s.reconnect
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// session runs one connection until it fails or ctx is done.
func (s *StreamClient) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	s.conn = conn
	if len(s.watched) > 0 {
		params := make([]string, 0, len(s.watched))
		for name := range s.watched {
			params = append(params, name)
		}
		if err := s.send(wsCommand{Method: "SUBSCRIBE", Params: params, ID: s.nextID.Add(1)}); err != nil {
			s.conn = nil
			s.mu.Unlock()
			conn.Close()
			return fmt.Errorf("binance/ws: restore subscriptions: %w", err)
		}
	}
	s.mu.Unlock()
	s.logger.Info("stream connected", slog.String("url", s.wsURL))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(sessCtx, conn)
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
		}
		s.dispatch(data)
	}
}

func (s *StreamClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// dispatch decodes one frame. Command acks ({"result":null,"id":N}) and
// other event types are ignored.
func (s *StreamClient) dispatch(data []byte) {
	var ev MiniTicker
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Debug("undecodable frame", slog.String("error", err.Error()))
		return
	}
	if ev.EventType != "24hrMiniTicker" {
		return
	}
	tick, err := ev.ToTick()
	if err != nil {
		s.logger.Debug("bad tick", slog.String("error", err.Error()))
		return
	}

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()
	for _, h := range handlers {
		h(tick)
	}
}

// send writes a command. Caller must hold s.mu.
func (s *StreamClient) send(cmd wsCommand) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(cmd)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
