// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/absmach/gmqtt/pkg/codec"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

func readPaho(t *testing.T, b []byte) packets.ControlPacket {
	t.Helper()

	cp, err := packets.ReadPacket(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("paho ReadPacket() error = %v", err)
	}
	return cp
}

func TestBuilder_ConnectV311(t *testing.T) {
	b := NewBuilder()

	pkt, err := b.Connect(V311, ConnectOptions{
		ClientID:   "test-client",
		Username:   "testuser",
		Password:   []byte("testpass"),
		CleanStart: true,
		KeepAlive:  60,
		Will: &Message{
			Topic:   "clients/test-client/status",
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	cp, ok := readPaho(t, pkt).(*packets.ConnectPacket)
	if !ok {
		t.Fatal("Expected CONNECT packet")
	}
	if cp.ProtocolName != "MQTT" || cp.ProtocolVersion != 4 {
		t.Errorf("Expected MQTT/4, got %s/%d", cp.ProtocolName, cp.ProtocolVersion)
	}
	if cp.ClientIdentifier != "test-client" {
		t.Errorf("Expected ClientID 'test-client', got '%s'", cp.ClientIdentifier)
	}
	if cp.Username != "testuser" || string(cp.Password) != "testpass" {
		t.Errorf("Unexpected credentials %s/%s", cp.Username, cp.Password)
	}
	if !cp.CleanSession || cp.Keepalive != 60 {
		t.Errorf("Expected clean session and keepalive 60, got %v/%d", cp.CleanSession, cp.Keepalive)
	}
	if !cp.WillFlag || cp.WillQos != 1 || !cp.WillRetain || cp.WillTopic != "clients/test-client/status" {
		t.Errorf("Unexpected will: flag=%v qos=%d retain=%v topic=%s", cp.WillFlag, cp.WillQos, cp.WillRetain, cp.WillTopic)
	}
}

func TestBuilder_ConnectV31(t *testing.T) {
	pkt, err := NewBuilder().Connect(V31, ConnectOptions{ClientID: "legacy"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	cp := readPaho(t, pkt).(*packets.ConnectPacket)
	if cp.ProtocolName != "MQIsdp" || cp.ProtocolVersion != 3 {
		t.Errorf("Expected MQIsdp/3, got %s/%d", cp.ProtocolName, cp.ProtocolVersion)
	}
}

func TestBuilder_ConnectV5(t *testing.T) {
	pkt, err := NewBuilder().Connect(V5, ConnectOptions{
		ClientID:   "c",
		CleanStart: true,
		KeepAlive:  60,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	want := []byte{
		0x10, 0x0e,
		0x00, 0x04, 'M', 'Q', 'T', 'T',
		0x05, 0x02, 0x00, 0x3c,
		0x00,
		0x00, 0x01, 'c',
	}
	if !bytes.Equal(pkt, want) {
		t.Errorf("Expected %x, got %x", want, pkt)
	}
}

func TestBuilder_ConnectV5WithProperties(t *testing.T) {
	expiry := uint32(3600)
	pkt, err := NewBuilder().Connect(V5, ConnectOptions{
		ClientID: "c",
		Username: "u",
		Password: []byte("p"),
		Properties: &Properties{
			SessionExpiryInterval: &expiry,
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	_, pkts, err := codec.Decode(pkt)
	if err != nil || len(pkts) != 1 {
		t.Fatalf("Decode() = %d packets, %v", len(pkts), err)
	}
	body := pkts[0].Payload
	if flags := body[7]; flags != connectUsername|connectPassword {
		t.Errorf("Expected flags 0x%02x, got 0x%02x", connectUsername|connectPassword, flags)
	}
	props := body[10 : 10+6]
	if !bytes.Equal(props, []byte{0x05, propSessionExpiryInterval, 0x00, 0x00, 0x0e, 0x10}) {
		t.Errorf("Unexpected property block %x", props)
	}
	tail := body[16:]
	if !bytes.Equal(tail, []byte{0x00, 0x01, 'c', 0x00, 0x01, 'u', 0x00, 0x01, 'p'}) {
		t.Errorf("Unexpected payload %x", tail)
	}
}

func TestBuilder_Subscribe(t *testing.T) {
	b := NewBuilder()

	mid, pkt, err := b.Subscribe(V311, []Subscription{
		{Topic: "topic1", QoS: 0},
		{Topic: "topic2", QoS: 2},
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if mid != 1 {
		t.Errorf("Expected mid 1, got %d", mid)
	}
	if pkt[0] != 0x82 {
		t.Errorf("Expected command 0x82, got 0x%02x", pkt[0])
	}

	sp := readPaho(t, pkt).(*packets.SubscribePacket)
	if sp.MessageID != mid {
		t.Errorf("Expected MessageID %d, got %d", mid, sp.MessageID)
	}
	if len(sp.Topics) != 2 || sp.Topics[1] != "topic2" || sp.Qoss[1] != 2 {
		t.Errorf("Unexpected topics %v qos %v", sp.Topics, sp.Qoss)
	}

	mid, _, err = b.Unsubscribe(V311, []string{"topic1"}, nil)
	if err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if mid != 2 {
		t.Errorf("Expected mid 2, got %d", mid)
	}
}

func TestBuilder_SubscribeV5(t *testing.T) {
	mid, pkt, err := NewBuilder().Subscribe(V5, []Subscription{
		{Topic: "a/b", QoS: 1, NoLocal: true},
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := []byte{0x82, 0x09, 0x00, byte(mid), 0x00, 0x00, 0x03, 'a', '/', 'b', 0x05}
	if !bytes.Equal(pkt, want) {
		t.Errorf("Expected %x, got %x", want, pkt)
	}
}

func TestBuilder_UnsubscribeV5(t *testing.T) {
	mid, pkt, err := NewBuilder().Unsubscribe(V5, []string{"x"}, nil)
	if err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	want := []byte{0xa2, 0x06, 0x00, byte(mid), 0x00, 0x00, 0x01, 'x'}
	if !bytes.Equal(pkt, want) {
		t.Errorf("Expected %x, got %x", want, pkt)
	}
}

func TestBuilder_Publish(t *testing.T) {
	b := NewBuilder()

	mid, pkt, err := b.Publish(V311, Message{Topic: "test/topic", Payload: []byte("test payload")})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if mid != 0 {
		t.Errorf("Expected QoS 0 publish to get mid 0, got %d", mid)
	}

	mid, pkt, err = b.Publish(V311, Message{
		Topic:   "test/topic",
		Payload: []byte("test payload"),
		QoS:     1,
		Retain:  true,
		Dup:     true,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if mid != 1 {
		t.Errorf("Expected mid 1, got %d", mid)
	}
	if pkt[0] != 0x3b {
		t.Errorf("Expected command 0x3b, got 0x%02x", pkt[0])
	}

	pp := readPaho(t, pkt).(*packets.PublishPacket)
	if pp.TopicName != "test/topic" || string(pp.Payload) != "test payload" || pp.MessageID != 1 {
		t.Errorf("Unexpected publish %s %q %d", pp.TopicName, pp.Payload, pp.MessageID)
	}
}

func TestBuilder_PublishV5(t *testing.T) {
	mid, pkt, err := NewBuilder().Publish(V5, Message{
		Topic:      "t",
		Payload:    []byte("p"),
		QoS:        1,
		Properties: &Properties{ContentType: "x"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	want := []byte{
		0x32, 0x0b,
		0x00, 0x01, 't',
		0x00, byte(mid),
		0x04, propContentType, 0x00, 0x01, 'x',
		'p',
	}
	if !bytes.Equal(pkt, want) {
		t.Errorf("Expected %x, got %x", want, pkt)
	}
}

func TestBuilder_PublishTopicAlias(t *testing.T) {
	alias := uint16(3)
	_, pkt, err := NewBuilder().Publish(V5, Message{
		Payload:    []byte("p"),
		Properties: &Properties{TopicAlias: &alias},
	})
	if err != nil {
		t.Fatalf("Publish() with topic alias error = %v", err)
	}
	want := []byte{0x30, 0x07, 0x00, 0x00, 0x03, propTopicAlias, 0x00, 0x03, 'p'}
	if !bytes.Equal(pkt, want) {
		t.Errorf("Expected %x, got %x", want, pkt)
	}
}

func TestBuilder_Disconnect(t *testing.T) {
	b := NewBuilder()

	tests := []struct {
		name    string
		version byte
		reason  byte
		props   *Properties
		want    []byte
	}{
		{"v311", V311, 0, nil, []byte{0xe0, 0x00}},
		{"v5 normal", V5, ReasonNormalDisconnection, nil, []byte{0xe0, 0x00}},
		{"v5 with will", V5, ReasonDisconnectWithWill, nil, []byte{0xe0, 0x02, 0x04, 0x00}},
		{"v5 reason string", V5, 0, &Properties{ReasonString: "bye"}, []byte{0xe0, 0x08, 0x00, 0x06, propReasonString, 0x00, 0x03, 'b', 'y', 'e'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := b.Disconnect(tt.version, tt.reason, tt.props)
			if err != nil {
				t.Fatalf("Disconnect() error = %v", err)
			}
			if !bytes.Equal(pkt, tt.want) {
				t.Errorf("Expected %x, got %x", tt.want, pkt)
			}
		})
	}
}

func TestBuilder_CommandWithMID(t *testing.T) {
	b := NewBuilder()

	tests := []struct {
		name    string
		version byte
		cmd     byte
		dup     bool
		reason  byte
		want    []byte
	}{
		{"puback", V311, codec.Puback, false, 0, []byte{0x40, 0x02, 0x00, 0x05}},
		{"pubrec", V311, codec.Pubrec, false, 0, []byte{0x50, 0x02, 0x00, 0x05}},
		{"pubrel", V311, codec.Pubrel, false, 0, []byte{0x62, 0x02, 0x00, 0x05}},
		{"pubrel dup", V311, codec.Pubrel, true, 0, []byte{0x6a, 0x02, 0x00, 0x05}},
		{"pubcomp", V311, codec.Pubcomp, false, 0x92, []byte{0x70, 0x02, 0x00, 0x05}},
		{"v5 pubrel", V5, codec.Pubrel, false, 0, []byte{0x62, 0x02, 0x00, 0x05}},
		{"v5 pubcomp reason", V5, codec.Pubcomp, false, 0x92, []byte{0x70, 0x03, 0x00, 0x05, 0x92}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := b.CommandWithMID(tt.version, tt.cmd, 5, tt.dup, tt.reason)
			if err != nil {
				t.Fatalf("CommandWithMID() error = %v", err)
			}
			if !bytes.Equal(pkt, tt.want) {
				t.Errorf("Expected %x, got %x", tt.want, pkt)
			}
		})
	}

	if _, err := b.CommandWithMID(V311, codec.Pingreq, 5, false, 0); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("Expected ErrInvalidCommand, got %v", err)
	}
}

func TestBuilder_Simple(t *testing.T) {
	pkt, err := NewBuilder().Simple(codec.Pingreq)
	if err != nil {
		t.Fatalf("Simple() error = %v", err)
	}
	if !bytes.Equal(pkt, []byte{0xc0, 0x00}) {
		t.Errorf("Expected PINGREQ bytes, got %x", pkt)
	}
}

func TestBuilder_Validation(t *testing.T) {
	b := NewBuilder()

	if _, err := b.Connect(6, ConnectOptions{}); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Expected ErrUnsupportedVersion, got %v", err)
	}
	if _, err := b.Connect(V311, ConnectOptions{Will: &Message{}}); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("Expected ErrEmptyTopic for will, got %v", err)
	}
	if _, _, err := b.Publish(V311, Message{Topic: "t", QoS: 3}); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Expected ErrInvalidQoS, got %v", err)
	}
	if _, _, err := b.Publish(V311, Message{}); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("Expected ErrEmptyTopic, got %v", err)
	}
	if _, _, err := b.Subscribe(V311, nil, nil); !errors.Is(err, ErrNoTopics) {
		t.Errorf("Expected ErrNoTopics, got %v", err)
	}
	if _, _, err := b.Unsubscribe(V5, nil, nil); !errors.Is(err, ErrNoTopics) {
		t.Errorf("Expected ErrNoTopics, got %v", err)
	}

	// Rejected packets do not consume message ids.
	mid, _, err := b.Subscribe(V311, []Subscription{{Topic: "ok"}}, nil)
	if err != nil || mid != 1 {
		t.Errorf("Expected mid 1 after rejected packets, got %d (%v)", mid, err)
	}
}

func TestIDs_Wrap(t *testing.T) {
	var ids IDs
	if id := ids.Next(); id != 1 {
		t.Errorf("Expected first id 1, got %d", id)
	}

	ids.last = 65534
	if id := ids.Next(); id != 65535 {
		t.Errorf("Expected 65535, got %d", id)
	}
	if id := ids.Next(); id != 1 {
		t.Errorf("Expected wrap to 1, got %d", id)
	}

	ids.Reset()
	if id := ids.Next(); id != 1 {
		t.Errorf("Expected 1 after Reset, got %d", id)
	}
}
