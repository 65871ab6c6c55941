package adapter

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// BaseWSClient keeps one websocket subscription alive. Every failed or
// dropped connection is retried against the next URL after an exponential
// delay; a successful connection resets the delay.
type BaseWSClient struct {
	Name string
	URLs []string

	// Configuration
	Dialer       *websocket.Dialer
	ReadTimeout  time.Duration
	PingInterval time.Duration
	Backoff      *backoff.Backoff

	logger    *zap.Logger
	connected atomic.Bool
}

func NewBaseWSClient(name string, urls []string, logger *zap.Logger) *BaseWSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseWSClient{
		Name:         name,
		URLs:         urls,
		Dialer:       websocket.DefaultDialer,
		ReadTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
		Backoff: &backoff.Backoff{
			Min:    time.Second,
			Max:    60 * time.Second,
			Factor: 2,
		},
		logger: logger.With(zap.String("client", name)),
	}
}

// Connected reports whether a connection is currently open.
func (c *BaseWSClient) Connected() bool {
	return c.connected.Load()
}

// Run delivers every received message to handle until ctx is cancelled.
// handle runs on the read goroutine and must not block for long.
func (c *BaseWSClient) Run(ctx context.Context, handle func([]byte)) error {
	if len(c.URLs) == 0 {
		return errors.New("adapter: no websocket urls")
	}
	idx := 0
	for {
		url := c.URLs[idx]
		err := c.session(ctx, url, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.Backoff.Duration()
		c.logger.Warn("websocket disconnected, reconnecting",
			zap.String("url", url),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		idx = (idx + 1) % len(c.URLs)
	}
}

func (c *BaseWSClient) session(ctx context.Context, url string, handle func([]byte)) error {
	c.logger.Info("connecting", zap.String("url", url))
	conn, _, err := c.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	c.Backoff.Reset()
	c.connected.Store(true)
	c.logger.Info("connected", zap.String("url", url))

	done := make(chan struct{})
	defer func() {
		close(done)
		c.connected.Store(false)
		conn.Close()
	}()

	// ctx cancellation and keepalive pings
	go func() {
		ticker := time.NewTicker(c.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(c.ReadTimeout / 6)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		handle(message)
	}
}
