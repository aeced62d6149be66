package heos

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/luma/maestro/protocol"
)

// watchdogLoop periodically probes the device's liveness while connected.
// It is armed on connect success and disarmed by closing stop.
func (c *Conn) watchdogLoop(stop chan struct{}) {
	log := c.log.Named("watchdog")

	ticker := time.NewTicker(c.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			c.probe(log)
		}
	}
}

// probe issues one liveness command through the dispatch queue. A failed
// probe is recovered locally by triggering a reconnect cycle; it is surfaced
// to subscribers only as a watchdog_error event.
func (c *Conn) probe(log *zap.Logger) {
	c.mu.Lock()
	if c.probing || c.state != Connected {
		// Skip while a probe is already in flight or a transition is
		// under way.
		c.mu.Unlock()
		return
	}
	c.probing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.probing = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CommandTimeout)
	defer cancel()

	if _, err := c.Submit(ctx, protocol.GetPlayers, nil); err != nil {
		log.Warn("Liveness probe failed, reconnecting", zap.Error(err))
		c.events.emitEvent(EventWatchdogError, map[string]string{"error": err.Error()})

		if rerr := c.Reconnect(context.Background()); rerr != nil {
			log.Warn("Reconnect failed", zap.Error(rerr))
		}
	}
}
