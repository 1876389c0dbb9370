package exchange

import (
	"context"
	"time"

	"dodo/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = 16 * time.Second
)

// stream describes how to subscribe to and decode one ticker feed.
type stream struct {
	name      string
	url       string
	subscribe func(c *websocket.Conn) error
	parse     func(message []byte) (model.PriceTick, bool)
}

// runStream connects to the feed and pushes ticks to priceChan until ctx is cancelled,
// reconnecting with exponential backoff.
func runStream(ctx context.Context, logger *zap.SugaredLogger, dialer *websocket.Dialer, s stream, priceChan chan<- model.PriceTick) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			logger.Infow("context cancelled, shutting down stream", "exchange", s.name)
			return nil
		}

		logger.Infow("connecting to WebSocket", "exchange", s.name, "url", s.url, "backoff", backoff)
		c, _, err := dialer.DialContext(ctx, s.url, nil)
		if err == nil && s.subscribe != nil {
			if err = s.subscribe(c); err != nil {
				c.Close()
			}
		}
		if err != nil {
			logger.Errorw("WebSocket connection failed", "exchange", s.name, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}

		// Reset backoff on successful connection
		backoff = minBackoff
		logger.Infow("connected successfully", "exchange", s.name)

		if err := consume(ctx, logger, c, s, priceChan); err != nil {
			logger.Errorw("failed to read message, reconnecting", "exchange", s.name, "error", err)
		}
	}
}

// consume reads from c until the connection fails or ctx is cancelled.
func consume(ctx context.Context, logger *zap.SugaredLogger, c *websocket.Conn, s stream, priceChan chan<- model.PriceTick) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	defer c.Close()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		tick, ok := s.parse(message)
		if !ok {
			continue
		}

		select {
		case priceChan <- tick:
			logger.Debugw("sent price tick", "exchange", s.name, "bid", tick.Bid, "ask", tick.Ask)
		case <-ctx.Done():
			return nil
		}
	}
}
