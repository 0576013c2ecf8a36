// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/gmqtt/pkg/codec"
	mqtterrors "github.com/absmach/gmqtt/pkg/errors"
	"github.com/absmach/gmqtt/pkg/gate"
	"github.com/absmach/gmqtt/pkg/metrics"
	"github.com/absmach/gmqtt/pkg/packet"
	"github.com/absmach/gmqtt/pkg/queue"
	"github.com/absmach/gmqtt/pkg/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Builder frames outbound packets for a protocol version.
// *packet.Builder is the default implementation.
type Builder interface {
	Reset()
	Connect(version byte, opts packet.ConnectOptions) ([]byte, error)
	Subscribe(version byte, subs []packet.Subscription, props *packet.Properties) (uint16, []byte, error)
	Unsubscribe(version byte, topics []string, props *packet.Properties) (uint16, []byte, error)
	Simple(cmd byte) ([]byte, error)
	Publish(version byte, msg packet.Message) (uint16, []byte, error)
	Disconnect(version byte, reason byte, props *packet.Properties) ([]byte, error)
	CommandWithMID(version, cmd byte, mid uint16, dup bool, reason byte) ([]byte, error)
}

var _ Builder = (*packet.Builder)(nil)

// Config holds Protocol configuration.
type Config struct {
	// Version is the MQTT protocol level: 3, 4 or 5. Defaults to 4.
	Version byte
	Builder Builder
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Protocol is the connection core of an MQTT client. It reads and frames
// inbound packets into a queue, writes outbound commands and tracks
// whether the connection is up.
type Protocol struct {
	version byte
	builder Builder
	logger  *slog.Logger
	metrics *metrics.Metrics

	connected gate.Gate

	mu      sync.Mutex
	queue   *queue.Queue
	sess    *session
	lastErr error

	// sendMu keeps message ids in wire order.
	sendMu sync.Mutex
}

type session struct {
	id        string
	transport transport.Transport
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
	started   time.Time
}

// New creates a Protocol with no connection.
func New(cfg Config) *Protocol {
	if cfg.Version == 0 {
		cfg.Version = packet.V311
	}
	if cfg.Builder == nil {
		cfg.Builder = packet.NewBuilder()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("gmqtt", prometheus.NewRegistry())
	}

	return &Protocol{
		version: cfg.Version,
		builder: cfg.Builder,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		queue:   queue.New(),
	}
}

// Version returns the MQTT protocol level.
func (p *Protocol) Version() byte {
	return p.version
}

// ConnectionMade attaches t as the current connection, opens the
// connection gate and starts the read loop. A connection that is still
// attached is torn down first. It returns the queue that receives the
// packets of t, including the DISCONNECT that ends it.
func (p *Protocol) ConnectionMade(t transport.Transport) *queue.Queue {
	p.mu.Lock()
	prev := p.sess
	p.mu.Unlock()
	if prev != nil {
		p.lose(prev, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        uuid.NewString(),
		transport: t,
		cancel:    cancel,
		done:      make(chan struct{}),
		started:   time.Now(),
	}

	p.sendMu.Lock()
	p.builder.Reset()
	p.sendMu.Unlock()

	p.mu.Lock()
	p.sess = s
	p.lastErr = nil
	p.connected.Set()
	q := p.queue
	p.mu.Unlock()

	p.metrics.ConnectionMade()
	p.logger.Info("connection made",
		slog.String("session_id", s.id),
		slog.String("remote_addr", t.RemoteAddr()),
		slog.Int("version", int(p.version)),
	)

	go p.readLoop(ctx, s)
	return q
}

// ConnectionLost tears down the current connection. It enqueues the
// DISCONNECT pseudo-packet into the current queue and replaces the queue.
// Calling it again, or without a connection, has no effect.
func (p *Protocol) ConnectionLost(err error) {
	p.mu.Lock()
	s := p.sess
	p.mu.Unlock()
	if s == nil {
		return
	}
	p.lose(s, err)
}

// lose runs the teardown of s exactly once.
func (p *Protocol) lose(s *session, err error) {
	s.once.Do(func() {
		p.mu.Lock()
		p.connected.Clear()
		p.queue.Put(codec.Packet{Command: codec.Disconnect, Payload: []byte{}})
		s.cancel()
		p.queue = queue.New()
		if p.sess == s {
			p.sess = nil
		}
		p.lastErr = err
		p.mu.Unlock()

		s.transport.Close()

		p.metrics.ConnectionLost(s.started)
		args := []any{
			slog.String("session_id", s.id),
			slog.String("remote_addr", s.transport.RemoteAddr()),
			slog.Duration("duration", time.Since(s.started)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
		}
		p.logger.Info("connection lost", args...)

		close(s.done)
	})
}

// Queue returns the inbound queue of the current connection. The queue is
// replaced on every connection loss, so it must be fetched again after a
// reconnect.
func (p *Protocol) Queue() *queue.Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue
}

// IsConnected reports whether the connection gate is open.
func (p *Protocol) IsConnected() bool {
	return p.connected.IsSet()
}

// WaitConnected blocks until the connection gate is open or ctx is done.
func (p *Protocol) WaitConnected(ctx context.Context) error {
	return p.connected.Wait(ctx)
}

// Done returns a channel that is closed when the current connection is torn
// down. Without a connection the returned channel is already closed.
func (p *Protocol) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.sess.done
}

// Err returns the reason the last connection was lost, or nil.
func (p *Protocol) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SessionID returns the id of the current connection, or "".
func (p *Protocol) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess == nil {
		return ""
	}
	return p.sess.id
}

func (p *Protocol) readLoop(ctx context.Context, s *session) {
	err := p.read(ctx, s)

	p.logger.Debug("read loop stopped",
		slog.String("session_id", s.id),
		slog.Any("reason", err),
	)
	if ctx.Err() != nil {
		return
	}
	p.lose(s, err)
}

func (p *Protocol) read(ctx context.Context, s *session) error {
	t := s.transport
	var buf []byte

	for {
		if err := p.connected.Wait(ctx); err != nil {
			return err
		}
		if t.IsClosing() {
			return mqtterrors.ErrTransportClosing
		}

		data, err := t.Read(ctx, transport.ReadSize)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			if t.IsClosing() {
				return mqtterrors.ErrTransportClosing
			}
			t.Close()
			return mqtterrors.ErrAbnormalReset
		}
		p.metrics.BytesReceived.Add(float64(len(data)))

		buf = append(buf, data...)
		n, pkts, err := codec.Decode(buf)
		// Packets framed ahead of a malformed header still go out in order.
		if !p.deliver(s, pkts) {
			return nil
		}
		if err != nil {
			p.metrics.DecodeErrors.WithLabelValues("malformed_length").Inc()
			t.Close()
			return mqtterrors.New("decode", s.id, t.RemoteAddr(), err)
		}
		buf = append(buf[:0], buf[n:]...)
	}
}

// deliver enqueues pkts if s is still the current connection.
func (p *Protocol) deliver(s *session, pkts []codec.Packet) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess != s {
		return false
	}
	for _, pkt := range pkts {
		p.metrics.PacketsReceived.WithLabelValues(codec.TypeName(pkt.Command)).Inc()
	}
	p.queue.Put(pkts...)
	return true
}

// writeData writes a framed packet to the current transport. Writes with
// no transport or a closing one are dropped.
func (p *Protocol) writeData(data []byte) error {
	p.mu.Lock()
	s := p.sess
	p.mu.Unlock()

	if s == nil || s.transport.IsClosing() {
		p.dropped(data)
		return nil
	}

	if err := s.transport.Write(data); err != nil {
		if errors.Is(err, mqtterrors.ErrTransportClosing) {
			p.dropped(data)
			return nil
		}
		return mqtterrors.New("write", s.id, s.transport.RemoteAddr(), err)
	}

	p.metrics.BytesSent.Add(float64(len(data)))
	p.metrics.PacketsSent.WithLabelValues(codec.TypeName(data[0])).Inc()
	return nil
}

func (p *Protocol) dropped(data []byte) {
	p.metrics.DroppedWrites.Inc()
	p.logger.Warn("transport is closing, dropping packet",
		slog.String("packet_type", codec.TypeName(data[0])),
		slog.Int("size", len(data)),
	)
}
