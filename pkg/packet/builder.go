// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packet

import (
	"bytes"
	"fmt"

	"github.com/absmach/gmqtt/pkg/codec"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

const (
	flagDup    byte = 0x08
	flagRetain byte = 0x01
	flagQoS1   byte = 0x02

	connectCleanStart byte = 0x02
	connectWill       byte = 0x04
	connectWillRetain byte = 0x20
	connectPassword   byte = 0x40
	connectUsername   byte = 0x80
)

// Builder frames outbound control packets.
//
// MQTT 3.1 and 3.1.1 packets are serialized with the paho packets encoder.
// MQTT 5 packets, which paho does not cover, are encoded natively.
type Builder struct {
	ids IDs
}

// NewBuilder creates a builder with a fresh message id sequence.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset restarts message id allocation. It is called once per connection.
func (b *Builder) Reset() {
	b.ids.Reset()
}

// Connect frames a CONNECT packet.
func (b *Builder) Connect(version byte, opts ConnectOptions) ([]byte, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	if w := opts.Will; w != nil {
		if w.Topic == "" {
			return nil, fmt.Errorf("will: %w", ErrEmptyTopic)
		}
		if w.QoS > 2 {
			return nil, fmt.Errorf("will: %w: %d", ErrInvalidQoS, w.QoS)
		}
	}

	if version == V5 {
		return connectV5(opts)
	}

	cp := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	cp.ProtocolName = "MQTT"
	if version == V31 {
		cp.ProtocolName = "MQIsdp"
	}
	cp.ProtocolVersion = version
	cp.CleanSession = opts.CleanStart
	cp.Keepalive = opts.KeepAlive
	cp.ClientIdentifier = opts.ClientID
	if opts.Username != "" {
		cp.UsernameFlag = true
		cp.Username = opts.Username
	}
	if opts.Password != nil {
		cp.PasswordFlag = true
		cp.Password = opts.Password
	}
	if w := opts.Will; w != nil {
		cp.WillFlag = true
		cp.WillQos = w.QoS
		cp.WillRetain = w.Retain
		cp.WillTopic = w.Topic
		cp.WillMessage = w.Payload
	}

	return write(cp)
}

// Subscribe frames a SUBSCRIBE packet and returns its message id.
func (b *Builder) Subscribe(version byte, subs []Subscription, props *Properties) (uint16, []byte, error) {
	if err := checkVersion(version); err != nil {
		return 0, nil, err
	}
	if len(subs) == 0 {
		return 0, nil, ErrNoTopics
	}
	for _, s := range subs {
		if s.Topic == "" {
			return 0, nil, ErrEmptyTopic
		}
		if s.QoS > 2 {
			return 0, nil, fmt.Errorf("%w: %d", ErrInvalidQoS, s.QoS)
		}
	}

	mid := b.ids.Next()

	if version == V5 {
		body := appendUint16(nil, mid)
		body, err := appendProperties(body, props)
		if err != nil {
			return 0, nil, err
		}
		for _, s := range subs {
			body = appendString(body, s.Topic)
			body = append(body, subscriptionOptions(s))
		}
		pkt, err := codec.Frame(codec.Subscribe|flagQoS1, body)
		return mid, pkt, err
	}

	sp := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sp.MessageID = mid
	for _, s := range subs {
		sp.Topics = append(sp.Topics, s.Topic)
		sp.Qoss = append(sp.Qoss, s.QoS)
	}

	pkt, err := write(sp)
	return mid, pkt, err
}

// Unsubscribe frames an UNSUBSCRIBE packet and returns its message id.
func (b *Builder) Unsubscribe(version byte, topics []string, props *Properties) (uint16, []byte, error) {
	if err := checkVersion(version); err != nil {
		return 0, nil, err
	}
	if len(topics) == 0 {
		return 0, nil, ErrNoTopics
	}

	mid := b.ids.Next()

	if version == V5 {
		body := appendUint16(nil, mid)
		body, err := appendProperties(body, props)
		if err != nil {
			return 0, nil, err
		}
		for _, t := range topics {
			body = appendString(body, t)
		}
		pkt, err := codec.Frame(codec.Unsubscribe|flagQoS1, body)
		return mid, pkt, err
	}

	up := packets.NewControlPacket(packets.Unsubscribe).(*packets.UnsubscribePacket)
	up.MessageID = mid
	up.Topics = topics

	pkt, err := write(up)
	return mid, pkt, err
}

// Simple frames a packet that has no variable header or payload,
// such as PINGREQ.
func (b *Builder) Simple(cmd byte) ([]byte, error) {
	return codec.Frame(cmd, nil)
}

// Publish frames a PUBLISH packet. QoS 0 messages get message id 0.
func (b *Builder) Publish(version byte, msg Message) (uint16, []byte, error) {
	if err := checkVersion(version); err != nil {
		return 0, nil, err
	}
	if msg.Topic == "" && (version != V5 || msg.Properties == nil || msg.Properties.TopicAlias == nil) {
		return 0, nil, ErrEmptyTopic
	}
	if msg.QoS > 2 {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidQoS, msg.QoS)
	}

	var mid uint16
	if msg.QoS > 0 {
		mid = b.ids.Next()
	}

	if version == V5 {
		cmd := codec.Publish | msg.QoS<<1
		if msg.Dup {
			cmd |= flagDup
		}
		if msg.Retain {
			cmd |= flagRetain
		}

		body := appendString(nil, msg.Topic)
		if msg.QoS > 0 {
			body = appendUint16(body, mid)
		}
		body, err := appendProperties(body, msg.Properties)
		if err != nil {
			return 0, nil, err
		}
		body = append(body, msg.Payload...)

		pkt, err := codec.Frame(cmd, body)
		return mid, pkt, err
	}

	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.TopicName = msg.Topic
	pp.Payload = msg.Payload
	pp.Qos = msg.QoS
	pp.Retain = msg.Retain
	pp.Dup = msg.Dup
	pp.MessageID = mid

	pkt, err := write(pp)
	return mid, pkt, err
}

// Disconnect frames a DISCONNECT packet. The reason code and properties
// are only sent on MQTT 5, and omitted there when both are empty.
func (b *Builder) Disconnect(version byte, reason byte, props *Properties) ([]byte, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	if version == V5 {
		var body []byte
		if reason != ReasonNormalDisconnection || !props.empty() {
			var err error
			body, err = appendProperties([]byte{reason}, props)
			if err != nil {
				return nil, err
			}
		}
		return codec.Frame(codec.Disconnect, body)
	}

	return write(packets.NewControlPacket(packets.Disconnect))
}

// CommandWithMID frames PUBACK, PUBREC, PUBREL or PUBCOMP for mid.
// The reason code is only sent on MQTT 5 and only when non-zero.
func (b *Builder) CommandWithMID(version, cmd byte, mid uint16, dup bool, reason byte) ([]byte, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}

	typ := codec.Type(cmd)
	switch typ {
	case codec.Puback, codec.Pubrec, codec.Pubrel, codec.Pubcomp:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, codec.TypeName(cmd))
	}

	if version == V5 {
		header := typ
		if typ == codec.Pubrel {
			header |= flagQoS1
		}
		if dup {
			header |= flagDup
		}
		body := appendUint16(nil, mid)
		if reason != 0 {
			body = append(body, reason)
		}
		return codec.Frame(header, body)
	}

	cp := packets.NewControlPacket(typ >> 4)
	switch p := cp.(type) {
	case *packets.PubackPacket:
		p.MessageID = mid
		p.Dup = dup
	case *packets.PubrecPacket:
		p.MessageID = mid
		p.Dup = dup
	case *packets.PubrelPacket:
		p.MessageID = mid
		p.Dup = dup
	case *packets.PubcompPacket:
		p.MessageID = mid
		p.Dup = dup
	}

	return write(cp)
}

func connectV5(opts ConnectOptions) ([]byte, error) {
	var flags byte
	if opts.CleanStart {
		flags |= connectCleanStart
	}
	if w := opts.Will; w != nil {
		flags |= connectWill | w.QoS<<3
		if w.Retain {
			flags |= connectWillRetain
		}
	}
	if opts.Password != nil {
		flags |= connectPassword
	}
	if opts.Username != "" {
		flags |= connectUsername
	}

	body := appendString(nil, "MQTT")
	body = append(body, V5, flags)
	body = appendUint16(body, opts.KeepAlive)
	body, err := appendProperties(body, opts.Properties)
	if err != nil {
		return nil, err
	}

	body = appendString(body, opts.ClientID)
	if w := opts.Will; w != nil {
		body, err = appendProperties(body, w.Properties)
		if err != nil {
			return nil, err
		}
		body = appendString(body, w.Topic)
		body = appendBinary(body, w.Payload)
	}
	if opts.Username != "" {
		body = appendString(body, opts.Username)
	}
	if opts.Password != nil {
		body = appendBinary(body, opts.Password)
	}

	return codec.Frame(codec.Connect, body)
}

func subscriptionOptions(s Subscription) byte {
	opts := s.QoS & 0x03
	if s.NoLocal {
		opts |= 0x04
	}
	if s.RetainAsPublished {
		opts |= 0x08
	}
	opts |= (s.RetainHandling & 0x03) << 4
	return opts
}

func checkVersion(version byte) error {
	switch version {
	case V31, V311, V5:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

func write(cp packets.ControlPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := cp.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write packet: %w", err)
	}
	return buf.Bytes(), nil
}
