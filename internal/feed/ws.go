package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfeed/arbscope/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// wsCommand is the subscribe message sent after connecting.
type wsCommand struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

// wsBookMessage is the book snapshot envelope pushed by the venue. Levels are
// [price, size] string pairs; prices stay strings until normalization.
type wsBookMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
	Timestamp int64       `json:"ts"` // venue event time, unix milliseconds
}

// WSFeed streams orderbook snapshots for one venue over a WebSocket. It
// subscribes to the book channel for its configured symbols and reconnects
// with exponential backoff on disconnect.
type WSFeed struct {
	venue   string
	wsURL   string
	symbols []string
	logger  *slog.Logger
}

// NewWSFeed creates a feed for one venue. symbols are venue-local names, sent
// verbatim in the subscribe command.
func NewWSFeed(venue, wsURL string, symbols []string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		venue:   venue,
		wsURL:   wsURL,
		symbols: symbols,
		logger: logger.With(
			slog.String("component", "ws_feed"),
			slog.String("venue", venue)),
	}
}

func (f *WSFeed) Venue() string { return f.venue }

// Run connects, subscribes, and pumps snapshots to h until ctx is cancelled.
// Each disconnect marks the venue down, waits out the backoff, and dials
// again; the backoff resets after a healthy session.
func (f *WSFeed) Run(ctx context.Context, h Handler) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	delay := reconnectDelay
	for {
		start := time.Now()
		err := f.runConnection(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.OnDisconnected(f.venue)
		if time.Since(start) > time.Minute {
			delay = reconnectDelay
		}
		f.logger.Warn("ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials and serves one WebSocket session. It always returns a
// non-nil error unless ctx ended.
func (f *WSFeed) runConnection(ctx context.Context, h Handler) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: %s: connect: %w", f.venue, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	cmd := wsCommand{Op: "subscribe", Channel: "book", Symbols: f.symbols}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: %s: marshal subscribe: %w", f.venue, err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed: %s: subscribe: %w", f.venue, err)
	}
	f.logger.Info("ws subscribed", slog.Int("symbols", len(f.symbols)))
	h.OnConnected(f.venue)

	// Close the connection when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go f.pingLoop(conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: %s: read: %w: %s", f.venue, domain.ErrWSDisconnect, err)
		}
		f.handleMessage(ctx, h, message)
	}
}

func (f *WSFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *WSFeed) handleMessage(ctx context.Context, h Handler, raw []byte) {
	var msg wsBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // drop unparseable frames, the next snapshot supersedes them
	}
	if msg.Type != "book" || msg.Symbol == "" {
		return
	}
	snap := domain.RawSnapshot{
		Venue:  f.venue,
		Symbol: msg.Symbol,
		Bids:   toRawLevels(msg.Bids),
		Asks:   toRawLevels(msg.Asks),
	}
	if msg.Timestamp > 0 {
		snap.Timestamp = time.UnixMilli(msg.Timestamp).UTC()
	}
	h.OnSnapshot(ctx, snap, time.Now().UTC())
}

func toRawLevels(pairs [][2]string) []domain.RawLevel {
	out := make([]domain.RawLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.RawLevel{Price: p[0], Size: p[1]})
	}
	return out
}
