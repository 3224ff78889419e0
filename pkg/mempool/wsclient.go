package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient follows new blocks on the mempool.space websocket and hands each
// one to the block handler.
type WSClient struct {
	url     string
	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(Block)
	logger  *zap.Logger
	retry   time.Duration
}

func NewWSClient(url string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:    url,
		logger: logger,
		retry:  3 * time.Second,
	}
}

func (c *WSClient) SetBlockHandler(h func(Block)) {
	c.handler = h
}

// Connect dials the server and asks for block announcements. It does not
// start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	if err := conn.WriteJSON(wantMessage{Action: "want", Data: []string{"blocks"}}); err != nil {
		conn.Close()
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("WebSocket connected", zap.String("url", c.url))
	return nil
}

// Listen reads until ctx is done, reconnecting after read errors.
func (c *WSClient) Listen(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("WebSocket read error", zap.Error(err))

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.retry):
				}
				if err := c.Connect(ctx); err != nil {
					c.logger.Warn("Retrying reconnect...")
					continue
				}
				c.logger.Info("Reconnected successfully")
				break
			}
			continue
		}

		c.handle(msg)
	}
}

func (c *WSClient) handle(msg []byte) {
	var ev blockEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		c.logger.Debug("ignoring websocket message", zap.Error(err))
		return
	}
	if ev.Block == nil || c.handler == nil {
		return // conversion rates, initial block list, ...
	}
	c.logger.Debug("new block", zap.Int64("height", ev.Block.Height), zap.String("hash", ev.Block.ID))
	c.handler(*ev.Block)
}
