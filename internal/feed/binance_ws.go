// Package feed streams live market prices into the round engine.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/monarena/monarena/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// staleAfter marks the feed unhealthy when no message arrives for this long.
	staleAfter = 30 * time.Second

	// maxReconnectAttempts bounds reconnection tries per drop. Past the cap
	// the feed reports unavailable until a later cycle reconnects.
	maxReconnectAttempts = 3

	// reconnectStep is multiplied by the attempt number for linear backoff.
	reconnectStep = time.Second
)

// TickHandler is called for every price observation. Handlers must not block.
type TickHandler func(domain.PriceTick)

// TickerFeed consumes a Binance-style miniTicker WebSocket stream for one
// symbol. It keeps the latest tick, fans ticks out to registered handlers,
// and reconnects on disconnect or staleness.
type TickerFeed struct {
	wsURL  string
	symbol string
	logger *slog.Logger

	mu       sync.RWMutex
	lastTick domain.PriceTick
	hasTick  bool
	healthy  bool

	handlerMu sync.RWMutex
	handlers  []TickHandler

	closeOnce sync.Once
	done      chan struct{}
}

// tickerMessage is the subset of the Binance miniTicker payload we consume.
type tickerMessage struct {
	Symbol     string `json:"s"`
	ClosePrice string `json:"c"`
	EventTime  int64  `json:"E"`
}

// NewTickerFeed creates a feed for one symbol. wsURL is the full stream
// endpoint, e.g. "wss://stream.binance.com:9443/ws/monusdt@miniTicker".
func NewTickerFeed(wsURL, symbol string, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:  wsURL,
		symbol: symbol,
		logger: logger.With(slog.String("component", "ticker_feed")),
		done:   make(chan struct{}),
	}
}

// OnTick registers a handler invoked for every parsed price tick.
func (f *TickerFeed) OnTick(h TickHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.handlers = append(f.handlers, h)
}

// Current returns the latest observed tick. It returns
// domain.ErrFeedUnavailable when disconnected or when the last tick is
// older than the staleness window.
func (f *TickerFeed) Current() (domain.PriceTick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.healthy || !f.hasTick {
		return domain.PriceTick{}, domain.ErrFeedUnavailable
	}
	if time.Since(f.lastTick.Timestamp) > staleAfter {
		return domain.PriceTick{}, domain.ErrFeedUnavailable
	}
	return f.lastTick, nil
}

// Healthy reports whether the feed currently has a live, fresh connection.
func (f *TickerFeed) Healthy() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.healthy && f.hasTick && time.Since(f.lastTick.Timestamp) <= staleAfter
}

// Run connects and consumes the stream until ctx is cancelled or Close is
// called. Each connection drop is retried up to maxReconnectAttempts with
// linear backoff; when the cap is exhausted the feed goes unhealthy and Run
// keeps cycling so a later attempt can bring it back.
func (f *TickerFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.setHealthy(false)
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			f.logger.Warn("feed disconnected, reconnecting",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			case <-time.After(time.Duration(attempt) * reconnectStep):
			}

			if err = f.runConnection(ctx); err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.setHealthy(false)
		}

		// Cap exhausted. Stay unhealthy for a cooling-off period so callers
		// see ErrFeedUnavailable, then start a fresh attempt cycle.
		f.logger.Error("feed reconnect attempts exhausted, backing off",
			slog.Duration("pause", staleAfter),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(staleAfter):
		}
	}
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *TickerFeed) setHealthy(ok bool) {
	f.mu.Lock()
	f.healthy = ok
	f.mu.Unlock()
}

// runConnection dials the stream and reads until an error, cancellation, or
// staleness. A nil return means the feed was shut down on purpose.
func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	// The server pings; answering pongs is enough to keep the stream open.
	// The read deadline doubles as the staleness check.
	conn.SetReadDeadline(time.Now().Add(staleAfter))
	conn.SetPingHandler(func(appData string) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	f.setHealthy(true)
	f.logger.Info("feed connected", slog.String("symbol", f.symbol))

	// Unblock the read when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		conn.SetReadDeadline(time.Now())
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(staleAfter))
		f.handleMessage(message)
	}
}

func (f *TickerFeed) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // drop unparseable messages
	}
	price, err := strconv.ParseFloat(msg.ClosePrice, 64)
	if err != nil || price <= 0 {
		return
	}

	ts := time.Now()
	if msg.EventTime > 0 {
		ts = time.UnixMilli(msg.EventTime)
	}
	tick := domain.PriceTick{Price: price, Timestamp: ts}

	f.mu.Lock()
	f.lastTick = tick
	f.hasTick = true
	f.healthy = true
	f.mu.Unlock()

	f.handlerMu.RLock()
	handlers := f.handlers
	f.handlerMu.RUnlock()
	for _, h := range handlers {
		h(tick)
	}
}

// Compile-time interface check.
var _ domain.PriceFeed = (*TickerFeed)(nil)
