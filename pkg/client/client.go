// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/gmqtt/pkg/breaker"
	"github.com/absmach/gmqtt/pkg/codec"
	mqtterrors "github.com/absmach/gmqtt/pkg/errors"
	"github.com/absmach/gmqtt/pkg/handler"
	"github.com/absmach/gmqtt/pkg/metrics"
	"github.com/absmach/gmqtt/pkg/packet"
	"github.com/absmach/gmqtt/pkg/protocol"
	"github.com/absmach/gmqtt/pkg/queue"
	"github.com/absmach/gmqtt/pkg/ratelimit"
	"github.com/absmach/gmqtt/pkg/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// CONNACK return code for an accepted connection.
const connackAccepted = 0x00

// Config holds the client configuration.
type Config struct {
	// URL is the broker URL: mqtt://, mqtts://, ws:// or wss://
	URL string

	// TLSConfig is used for TLS and WSS brokers
	TLSConfig *tls.Config

	// Header is sent with the WebSocket upgrade request
	Header http.Header

	// DialTimeout bounds connection establishment
	DialTimeout time.Duration

	// ConnectTimeout bounds the wait for CONNACK
	ConnectTimeout time.Duration

	// Version is the MQTT protocol level (3, 4 or 5)
	Version byte

	ClientID   string
	Username   string
	Password   []byte
	CleanStart bool
	Will       *packet.Message

	// Properties are sent with CONNECT on MQTT 5
	Properties *packet.Properties

	// KeepAlive is the PINGREQ interval. Zero disables keepalive.
	KeepAlive time.Duration

	// Subscriptions are sent after every successful connect
	Subscriptions []packet.Subscription

	// AutoReconnect makes Run reconnect after a connection loss
	AutoReconnect bool
	MinBackoff    time.Duration
	MaxBackoff    time.Duration

	// Breaker gates dial attempts
	Breaker breaker.Config

	// PublishRate is the number of publishes allowed per second. Zero
	// disables rate limiting.
	PublishRate  int64
	PublishBurst int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client is a MQTT client that keeps a broker connection alive and feeds
// inbound packets to a Handler.
type Client struct {
	config  Config
	handler handler.Handler
	proto   *protocol.Protocol
	breaker *breaker.CircuitBreaker
	limiter *ratelimit.TokenBucket
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	conn *conn
}

// conn is the state of one accepted broker connection.
type conn struct {
	queue *queue.Queue
	hctx  *handler.Context
}

// New creates a client. Nothing is dialed until Connect or Run.
func New(cfg Config, h handler.Handler) *Client {
	if cfg.Version == 0 {
		cfg.Version = packet.V311
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gmqtt-" + uuid.NewString()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("gmqtt", prometheus.NewRegistry())
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	c := &Client{
		config:  cfg,
		handler: h,
		proto: protocol.New(protocol.Config{
			Version: cfg.Version,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		breaker: breaker.New(cfg.Breaker),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if cfg.PublishRate > 0 {
		c.limiter = ratelimit.NewTokenBucket(max(cfg.PublishBurst, cfg.PublishRate), cfg.PublishRate)
	}

	c.breaker.OnStateChange(func(from, to breaker.State) {
		c.metrics.CircuitBreakerState.Set(float64(to))
		if to == breaker.StateOpen {
			c.metrics.CircuitBreakerTrips.Inc()
		}
		c.logger.Warn("dial circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})

	return c
}

// Protocol returns the connection core used by the client.
func (c *Client) Protocol() *protocol.Protocol {
	return c.proto
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.proto.IsConnected()
}

// Connect dials the broker, sends CONNECT and waits for CONNACK.
// Configured subscriptions are sent once the broker accepts the client.
// If they cannot be sent the connection is torn down and Connect fails.
func (c *Client) Connect(ctx context.Context) error {
	var cn *conn
	err := c.breaker.Call(func() error {
		return c.metrics.ObserveDial(func() error {
			var err error
			cn, err = c.connect(ctx)
			return err
		})
	})
	if err != nil {
		return err
	}

	if len(c.config.Subscriptions) > 0 {
		if _, err := c.proto.SendSubscribe(c.config.Subscriptions, nil); err != nil {
			c.proto.ConnectionLost(err)
			return mqtterrors.New("subscribe", cn.hctx.SessionID, cn.hctx.RemoteAddr, err)
		}
	}

	c.mu.Lock()
	c.conn = cn
	c.mu.Unlock()

	if err := c.handler.OnConnect(ctx, cn.hctx); err != nil {
		c.logger.Warn("OnConnect handler failed", slog.Any("error", err))
	}
	return nil
}

func (c *Client) connect(ctx context.Context) (*conn, error) {
	t, err := transport.Dial(ctx, transport.DialConfig{
		URL:       c.config.URL,
		TLSConfig: c.config.TLSConfig,
		Timeout:   c.config.DialTimeout,
		Header:    c.config.Header,
	})
	if err != nil {
		return nil, mqtterrors.New("dial", "", c.config.URL, err)
	}

	q := c.proto.ConnectionMade(t)
	hctx := &handler.Context{
		SessionID:  c.proto.SessionID(),
		ClientID:   c.config.ClientID,
		RemoteAddr: t.RemoteAddr(),
		Version:    c.config.Version,
	}

	fail := func(err error) (*conn, error) {
		c.proto.ConnectionLost(err)
		return nil, mqtterrors.New("connect", hctx.SessionID, hctx.RemoteAddr, err)
	}

	if err := c.proto.SendAuth(packet.ConnectOptions{
		ClientID:   c.config.ClientID,
		Username:   c.config.Username,
		Password:   c.config.Password,
		CleanStart: c.config.CleanStart,
		KeepAlive:  keepAliveSeconds(c.config.KeepAlive),
		Will:       c.config.Will,
		Properties: c.config.Properties,
	}); err != nil {
		return fail(err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	pkt, err := q.Get(wctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fail(mqtterrors.Wrap(mqtterrors.ErrTimeout, "waiting for CONNACK"))
	case err != nil:
		return fail(err)
	case pkt.Type() == codec.Disconnect:
		if lost := c.proto.Err(); lost != nil {
			return nil, mqtterrors.New("connect", hctx.SessionID, hctx.RemoteAddr, lost)
		}
		return fail(mqtterrors.ErrNotConnected)
	case pkt.Type() != codec.Connack:
		return fail(fmt.Errorf("%w: expected CONNACK, got %s", mqtterrors.ErrConnectionRefused, pkt))
	}

	if code := connackCode(pkt); code != connackAccepted {
		return fail(fmt.Errorf("%w: return code 0x%02x", mqtterrors.ErrConnectionRefused, code))
	}

	return &conn{queue: q, hctx: hctx}, nil
}

// Run keeps the client connected until ctx is done, handing every inbound
// packet to the handler. Without AutoReconnect it returns the reason of
// the first connection loss. On shutdown it sends DISCONNECT and returns nil.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		c.mu.Lock()
		cn := c.conn
		c.mu.Unlock()

		if cn == nil {
			if err := c.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !c.config.AutoReconnect {
					return err
				}

				delay := c.backoff(attempt)
				attempt++
				c.logger.Warn("failed to connect to broker",
					slog.String("url", c.config.URL),
					slog.Duration("retry_in", delay),
					slog.Any("error", err))
				if !sleep(ctx, delay) {
					return nil
				}
				c.metrics.Reconnects.Inc()
				continue
			}
			attempt = 0
			continue
		}

		err := c.serve(ctx, cn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return nil
		}
		if !c.config.AutoReconnect {
			return err
		}
		c.logger.Info("connection to broker lost, reconnecting", slog.Any("error", err))
		c.metrics.Reconnects.Inc()
	}
}

// serve drains the queue of cn until the connection is lost or ctx is done.
func (c *Client) serve(ctx context.Context, cn *conn) error {
	kctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pingOutstanding atomic.Bool
	go c.keepAlive(kctx, &pingOutstanding)

	for {
		pkt, err := cn.queue.Get(ctx)
		if err != nil {
			if err := c.Disconnect(); err != nil {
				c.logger.Warn("failed to send DISCONNECT", slog.Any("error", err))
			}
			c.onDisconnect(cn)
			return err
		}

		switch pkt.Type() {
		case codec.Disconnect:
			// An empty DISCONNECT is the end of the connection. A broker
			// DISCONNECT carrying a reason is shown to the handler first.
			if len(pkt.Payload) > 0 {
				c.handle(ctx, cn, pkt)
			}
			c.proto.ConnectionLost(nil)
			c.onDisconnect(cn)
			if err := c.proto.Err(); err != nil {
				return err
			}
			return mqtterrors.ErrNotConnected
		case codec.Pingresp:
			pingOutstanding.Store(false)
		}

		c.handle(ctx, cn, pkt)
		if err := c.acknowledge(pkt); err != nil {
			c.logger.Warn("failed to acknowledge packet",
				slog.String("type", codec.TypeName(pkt.Command)),
				slog.Any("error", err))
		}
	}
}

func (c *Client) handle(ctx context.Context, cn *conn, pkt codec.Packet) {
	if err := c.handler.HandlePacket(ctx, cn.hctx, pkt); err != nil {
		c.logger.Warn("packet handler failed",
			slog.String("session_id", cn.hctx.SessionID),
			slog.String("type", codec.TypeName(pkt.Command)),
			slog.Any("error", err))
	}
}

func (c *Client) onDisconnect(cn *conn) {
	if err := c.handler.OnDisconnect(context.Background(), cn.hctx); err != nil {
		c.logger.Warn("OnDisconnect handler failed", slog.Any("error", err))
	}
}

// acknowledge completes the inbound QoS 1 and 2 flows and the outbound
// QoS 2 flow.
func (c *Client) acknowledge(pkt codec.Packet) error {
	switch pkt.Type() {
	case codec.Publish:
		qos := (pkt.Flags() >> 1) & 0x03
		if qos == 0 {
			return nil
		}
		mid, err := publishMID(pkt.Payload)
		if err != nil {
			return err
		}
		if qos == 1 {
			return c.proto.SendCommandWithMID(codec.Puback, mid, false, 0)
		}
		return c.proto.SendCommandWithMID(codec.Pubrec, mid, false, 0)
	case codec.Pubrec:
		if len(pkt.Payload) < 2 {
			return errShortPacket
		}
		return c.proto.SendCommandWithMID(codec.Pubrel, binary.BigEndian.Uint16(pkt.Payload), false, 0)
	case codec.Pubrel:
		if len(pkt.Payload) < 2 {
			return errShortPacket
		}
		return c.proto.SendCommandWithMID(codec.Pubcomp, binary.BigEndian.Uint16(pkt.Payload), false, 0)
	}
	return nil
}

func (c *Client) keepAlive(ctx context.Context, outstanding *atomic.Bool) {
	if c.config.KeepAlive <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if outstanding.Swap(true) {
				c.logger.Warn("no PINGRESP within keepalive interval", slog.Duration("keepalive", c.config.KeepAlive))
				c.proto.ConnectionLost(mqtterrors.ErrTimeout)
				return
			}
			if err := c.proto.SendPingRequest(); err != nil {
				c.proto.ConnectionLost(err)
				return
			}
		}
	}
}

// Publish sends msg and returns its message id, 0 for QoS 0.
func (c *Client) Publish(msg packet.Message) (uint16, error) {
	if !c.proto.IsConnected() {
		return 0, mqtterrors.ErrNotConnected
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.RateLimitedPublishes.Inc()
		return 0, mqtterrors.ErrRateLimited
	}
	mid, _, err := c.proto.SendPublish(msg)
	return mid, err
}

// Subscribe sends SUBSCRIBE and returns its message id.
func (c *Client) Subscribe(subs ...packet.Subscription) (uint16, error) {
	if !c.proto.IsConnected() {
		return 0, mqtterrors.ErrNotConnected
	}
	return c.proto.SendSubscribe(subs, nil)
}

// Unsubscribe sends UNSUBSCRIBE and returns its message id.
func (c *Client) Unsubscribe(topics ...string) (uint16, error) {
	if !c.proto.IsConnected() {
		return 0, mqtterrors.ErrNotConnected
	}
	return c.proto.SendUnsubscribe(topics, nil)
}

// Disconnect sends DISCONNECT and closes the connection.
func (c *Client) Disconnect() error {
	if !c.proto.IsConnected() {
		return nil
	}
	_, err := c.proto.SendDisconnect(packet.ReasonNormalDisconnection, nil)
	c.proto.ConnectionLost(nil)
	return err
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.MaxBackoff
	if attempt < 16 {
		d = min(c.config.MinBackoff<<attempt, c.config.MaxBackoff)
	}
	return max(d, c.breaker.RetryAfter())
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func keepAliveSeconds(d time.Duration) uint16 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	return uint16(min(max(s, 1), 65535))
}
