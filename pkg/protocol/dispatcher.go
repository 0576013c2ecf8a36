// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/absmach/gmqtt/pkg/codec"
	"github.com/absmach/gmqtt/pkg/packet"
)

// SendAuth writes CONNECT.
func (p *Protocol) SendAuth(opts packet.ConnectOptions) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	pkt, err := p.builder.Connect(p.version, opts)
	if err != nil {
		return err
	}
	return p.writeData(pkt)
}

// SendSubscribe writes SUBSCRIBE and returns its message id.
func (p *Protocol) SendSubscribe(subs []packet.Subscription, props *packet.Properties) (uint16, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	mid, pkt, err := p.builder.Subscribe(p.version, subs, props)
	if err != nil {
		return 0, err
	}
	return mid, p.writeData(pkt)
}

// SendUnsubscribe writes UNSUBSCRIBE and returns its message id.
func (p *Protocol) SendUnsubscribe(topics []string, props *packet.Properties) (uint16, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	mid, pkt, err := p.builder.Unsubscribe(p.version, topics, props)
	if err != nil {
		return 0, err
	}
	return mid, p.writeData(pkt)
}

// SendSimpleCommand writes a packet that consists of a fixed header only.
func (p *Protocol) SendSimpleCommand(cmd byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	pkt, err := p.builder.Simple(cmd)
	if err != nil {
		return err
	}
	return p.writeData(pkt)
}

// SendPingRequest writes PINGREQ.
func (p *Protocol) SendPingRequest() error {
	return p.SendSimpleCommand(codec.Pingreq)
}

// SendPublish writes PUBLISH. It returns the message id, which is 0 for
// QoS 0, and the framed packet so callers can keep it for retransmission.
func (p *Protocol) SendPublish(msg packet.Message) (uint16, []byte, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	mid, pkt, err := p.builder.Publish(p.version, msg)
	if err != nil {
		return 0, nil, err
	}
	return mid, pkt, p.writeData(pkt)
}

// SendDisconnect writes DISCONNECT and returns the framed packet.
func (p *Protocol) SendDisconnect(reason byte, props *packet.Properties) ([]byte, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	pkt, err := p.builder.Disconnect(p.version, reason, props)
	if err != nil {
		return nil, err
	}
	return pkt, p.writeData(pkt)
}

// SendCommandWithMID writes PUBACK, PUBREC, PUBREL or PUBCOMP for mid.
func (p *Protocol) SendCommandWithMID(cmd byte, mid uint16, dup bool, reason byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	pkt, err := p.builder.CommandWithMID(p.version, cmd, mid, dup, reason)
	if err != nil {
		return err
	}
	return p.writeData(pkt)
}
