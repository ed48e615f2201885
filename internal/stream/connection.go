package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendBuffer   = 1024
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	helloTimeout = 10 * time.Second
	minBackoff   = 500 * time.Millisecond
	maxBackoff   = 30 * time.Second
)

// feed owns one WebSocket connection at a time. A single goroutine writes
// to it; a redial repeats the hello handshake before anything else is sent.
type feed struct {
	url    string
	hello  []byte
	dialer *ws.Dialer
	logger *slog.Logger

	out       chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	started   atomic.Bool

	sent      atomic.Int64
	dropped   atomic.Int64
	connected atomic.Bool
}

// feedURL adds the shared secret as a query parameter.
func feedURL(rawURL, secret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", rawURL)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func newFeed(rawURL, secret string, hello []byte, logger *slog.Logger) (*feed, error) {
	u, err := feedURL(rawURL, secret)
	if err != nil {
		return nil, err
	}
	return &feed{
		url:     u,
		hello:   hello,
		dialer:  &ws.Dialer{HandshakeTimeout: writeWait},
		logger:  logger,
		out:     make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// start connects once, so a bad address or secret fails Init, then hands
// the connection to the run loop.
func (f *feed) start() error {
	conn, err := f.connect()
	if err != nil {
		return err
	}
	f.started.Store(true)
	go f.run(conn)
	return nil
}

func (f *feed) connect() (*ws.Conn, error) {
	conn, _, err := f.dialer.Dial(f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if err := f.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// handshake sends hello and reads until the server acknowledges it.
func (f *feed) handshake(conn *ws.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(ws.TextMessage, f.hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return err
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("waiting for hello ack: %w", err)
		}
		var ack AckMessage
		if json.Unmarshal(msg, &ack) == nil && ack.Type == "ack" && ack.For == TypeHello {
			return nil
		}
	}
}

func (f *feed) run(conn *ws.Conn) {
	defer close(f.stopped)

	var retry []byte
	for {
		f.connected.Store(true)
		retry = f.pump(conn, retry)
		f.connected.Store(false)
		_ = conn.Close()

		if conn = f.redial(); conn == nil {
			if retry != nil {
				f.dropped.Add(1)
			}
			f.discard()
			return
		}
	}
}

// pump writes queued messages and keeps the connection alive until it
// fails or the feed closes. It returns a message whose write failed so the
// next connection sends it first.
func (f *feed) pump(conn *ws.Conn, retry []byte) []byte {
	readErr := make(chan error, 1)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		for {
			// battle acks carry nothing the engine needs
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if retry != nil {
		if err := f.write(conn, retry); err != nil {
			f.logger.Warn("WebSocket write error", "error", err)
			return retry
		}
	}

	for {
		select {
		case <-f.done:
			f.drain(conn)
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case err := <-readErr:
			f.logger.Warn("WebSocket read error", "error", err)
			return nil
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				f.logger.Warn("WebSocket ping failed", "error", err)
				return nil
			}
		case data := <-f.out:
			if err := f.write(conn, data); err != nil {
				f.logger.Warn("WebSocket write error", "error", err)
				return data
			}
		}
	}
}

// drain writes whatever is still buffered when the feed closes.
func (f *feed) drain(conn *ws.Conn) {
	for {
		select {
		case data := <-f.out:
			if err := f.write(conn, data); err != nil {
				f.dropped.Add(int64(1 + len(f.out)))
				return
			}
		default:
			return
		}
	}
}

// discard counts everything still buffered as dropped. It runs when the
// feed closes with no connection to drain into.
func (f *feed) discard() {
	for {
		select {
		case <-f.out:
			f.dropped.Add(1)
		default:
			return
		}
	}
}

func (f *feed) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
		return err
	}
	f.sent.Add(1)
	return nil
}

// redial retries with exponential backoff until it connects or the feed
// closes. Messages keep buffering meanwhile.
func (f *feed) redial() *ws.Conn {
	backoff := minBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-f.done:
			return nil
		case <-time.After(backoff):
		}

		conn, err := f.connect()
		if err == nil {
			f.logger.Info("WebSocket reconnected", "attempt", attempt)
			return conn
		}
		f.logger.Warn("Reconnect failed", "attempt", attempt, "backoff", backoff, "error", err)
		backoff = min(backoff*2, maxBackoff)
	}
}

// send queues data without blocking. Messages that do not fit, or arrive
// after close, are counted as dropped.
func (f *feed) send(data []byte) {
	select {
	case <-f.done:
		f.dropped.Add(1)
		return
	default:
	}
	select {
	case f.out <- data:
	default:
		f.dropped.Add(1)
		f.logger.Warn("WebSocket send buffer full, dropping message")
	}
}

// close stops the run loop after it flushes the buffer, waiting at most
// writeWait.
func (f *feed) close() {
	f.closeOnce.Do(func() { close(f.done) })
	if !f.started.Load() {
		return
	}
	select {
	case <-f.stopped:
	case <-time.After(writeWait):
		f.logger.Warn("WebSocket feed did not stop in time")
	}
}
