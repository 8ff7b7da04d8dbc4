package mq

import (
	"context"
	"time"
)

// reconnectLoop drives automatic reconnection on a fixed period: a ticker
// fires every ReconnectPeriod, and after a disconnect each tick makes one
// attempt until one succeeds. The first attempt runs at the next tick, up to
// one period after the disconnect; a failed attempt is retried one period
// later. No exponential backoff.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	period := c.opts.ReconnectPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	pending := false

	for {
		select {
		case <-c.disconnected:
			pending = true

		case <-ticker.C:
			if !pending {
				continue
			}

			c.reconnectCount.Add(1)

			ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
			err := c.connect(ctx)
			cancel()

			if err != nil {
				c.opts.Logger.Warn("reconnect attempt failed", "error", err)
				// Stay pending; the next tick retries after exactly one
				// more period, no backoff.
				continue
			}

			pending = false

			if c.opts.CleanSession {
				c.internalResetState()
			}

			c.resubscribeAll()

		case <-c.stop:
			c.opts.Logger.Debug("reconnectLoop stopped")
			return
		}
	}
}
