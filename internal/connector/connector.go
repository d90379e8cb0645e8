// Package connector runs one or more exchange adapters, each maintaining a
// set of reconnecting WebSocket connections, and funnels every decoded trade
// onto a single shared, bounded channel.
package connector

import (
	"context"
	"sync"
	"time"

	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ratelimit"
	"github.com/Pantilei/crypto-converter/internal/ticker"
	"github.com/Pantilei/crypto-converter/internal/wsconn"
)

// ConnectionPlan is one WebSocket connection's share of the subscription
// work: the batched wire-ready SUBSCRIBE frames to send after connecting,
// paced by PerMessageDelay to respect the exchange's rate limit.
type ConnectionPlan struct {
	Messages        [][]byte
	PerMessageDelay time.Duration
}

// Adapter is implemented once per supported exchange.
type Adapter interface {
	// Name identifies the adapter in logs and metrics.
	Name() string
	// WSURL is the WebSocket endpoint every connection dials.
	WSURL() string
	// SubscriptionPlan fetches the symbol universe and splits it into one
	// ConnectionPlan per connection the adapter wants to maintain.
	SubscriptionPlan(ctx context.Context) ([]ConnectionPlan, error)
	// ParseFrame decodes a raw frame into a Trade. A non-trade frame
	// (heartbeat, subscription ack) is an expected, non-fatal error.
	ParseFrame(data []byte) (*ticker.Trade, error)
	// RetryPeriod is the fixed backoff between failed connection attempts.
	RetryPeriod() time.Duration
}

// StaggerDefault is the pause between launching successive connections to
// the same host, to avoid burst-from-same-IP throttling, when the adapter's
// plan has no per-message delay; otherwise Run waits 5x that delay.
const StaggerDefault = 200 * time.Millisecond

// Connector owns every adapter's connections and exposes a single shared
// trade channel.
type Connector struct {
	adapters []Adapter
	log      logger.LoggerInterface
	trades   chan ticker.Trade

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Connector. bufferSize is the shared trade channel's
// capacity (spec default 1000).
func New(log logger.LoggerInterface, bufferSize int, adapters ...Adapter) *Connector {
	return &Connector{
		adapters: adapters,
		log:      log,
		trades:   make(chan ticker.Trade, bufferSize),
	}
}

// Run builds every adapter's subscription plan and launches one goroutine
// per connection, staggered to avoid connecting in a burst. It returns the
// shared trade channel; Run itself does not block.
func (c *Connector) Run(ctx context.Context) (<-chan ticker.Trade, error) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for _, adapter := range c.adapters {
		plans, err := adapter.SubscriptionPlan(ctx)
		if err != nil {
			cancel()
			return nil, err
		}

		stagger := StaggerDefault
		if len(plans) > 0 && plans[0].PerMessageDelay > 0 {
			stagger = 5 * plans[0].PerMessageDelay
		}

		for i, plan := range plans {
			c.wg.Add(1)
			go c.runConnection(ctx, adapter, plan)

			if i < len(plans)-1 {
				select {
				case <-ctx.Done():
					return c.trades, nil
				case <-time.After(stagger):
				}
			}
		}
	}

	return c.trades, nil
}

// Stop cancels every connection's loop and closes its socket.
func (c *Connector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Connector) runConnection(ctx context.Context, adapter Adapter, plan ConnectionPlan) {
	defer c.wg.Done()

	name := adapter.Name()
	wsCfg := wsconn.DefaultConfig(adapter.WSURL(), name)
	wsCfg.InitialBackoff = adapter.RetryPeriod()
	wsCfg.MaxBackoff = adapter.RetryPeriod()
	wsCfg.MaxReconnects = 0

	client, err := wsconn.New(wsCfg)
	if err != nil {
		c.log.Error(ctx, "failed to build websocket client", "adapter", name, "error", err.Error())
		return
	}

	client.OnMessage(func(ctx context.Context, msg []byte) {
		trade, err := adapter.ParseFrame(msg)
		if err != nil {
			c.log.Debug(ctx, "frame decode skipped", "adapter", name, "error", err.Error())
			return
		}
		select {
		case c.trades <- *trade:
		case <-ctx.Done():
		}
	})

	client.OnStateChange(func(state wsconn.State, err error) {
		if state != wsconn.StateConnected {
			return
		}
		go c.subscribe(ctx, client, plan, name)
	})

	if err := client.ConnectWithRetry(ctx); err != nil {
		c.log.Error(ctx, "connection permanently failed", "adapter", name, "error", err.Error())
		return
	}

	<-ctx.Done()
	_ = client.Close()
}

// subscribe sends every batched SUBSCRIBE frame, pacing sends with a token
// bucket sized to plan.PerMessageDelay so the adapter never exceeds the
// exchange's message rate limit regardless of how fast Send returns. Runs
// on every (re)connect so a dropped connection resubscribes automatically.
func (c *Connector) subscribe(ctx context.Context, client *wsconn.Client, plan ConnectionPlan, adapterName string) {
	var limiter *ratelimit.Limiter
	if plan.PerMessageDelay > 0 {
		limiter = ratelimit.NewWithBurst(1/plan.PerMessageDelay.Seconds(), 1)
	}

	for _, msg := range plan.Messages {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		if err := client.Send(ctx, msg); err != nil {
			c.log.Warn(ctx, "subscription send failed", "adapter", adapterName, "error", err.Error())
			return
		}
	}
}
