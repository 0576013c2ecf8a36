// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		consumed int
		want     []Packet
		err      error
	}{
		{
			name:     "empty buffer",
			buf:      nil,
			consumed: 0,
		},
		{
			name:     "single byte",
			buf:      []byte{0x30},
			consumed: 0,
		},
		{
			name:     "publish hello",
			buf:      []byte("\x30\x05hello"),
			consumed: 7,
			want:     []Packet{{Command: 0x30, Payload: []byte("hello")}},
		},
		{
			name:     "disconnect without payload",
			buf:      []byte{0xe0, 0x00},
			consumed: 2,
			want:     []Packet{{Command: 0xe0, Payload: []byte{}}},
		},
		{
			name:     "two packets back to back",
			buf:      []byte("\x30\x02hi\xd0\x00"),
			consumed: 6,
			want: []Packet{
				{Command: 0x30, Payload: []byte("hi")},
				{Command: 0xd0, Payload: []byte{}},
			},
		},
		{
			name:     "complete packet followed by partial header",
			buf:      []byte("\x30\x05hello\x30\x80"),
			consumed: 7,
			want:     []Packet{{Command: 0x30, Payload: []byte("hello")}},
		},
		{
			name:     "complete packet followed by lone command byte",
			buf:      []byte("\x30\x05hello\x30"),
			consumed: 7,
			want:     []Packet{{Command: 0x30, Payload: []byte("hello")}},
		},
		{
			name:     "partial payload",
			buf:      []byte("\x30\x05hel"),
			consumed: 0,
		},
		{
			name:     "two byte length, partial payload",
			buf:      append([]byte{0x30, 0x80, 0x01}, make([]byte, 127)...),
			consumed: 0,
		},
		{
			name: "five byte length",
			buf:  []byte{0x30, 0xff, 0xff, 0xff, 0xff, 0x01, 'x'},
			err:  ErrMalformedLength,
		},
		{
			name: "four continuation bytes without fifth byte",
			buf:  []byte{0x30, 0x80, 0x80, 0x80, 0x80},
			err:  ErrMalformedLength,
		},
		{
			name: "malformed length after a good packet",
			buf:  []byte{0xd0, 0x00, 0x30, 0x80, 0x80, 0x80, 0x80, 0x01},
			want: []Packet{
				{Command: 0xd0, Payload: []byte{}},
			},
			consumed: 2,
			err:      ErrMalformedLength,
		},
		{
			name:     "three continuation bytes are still partial",
			buf:      []byte{0x30, 0x80, 0x80, 0x80},
			consumed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumed, pkts, err := Decode(tt.buf)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Decode() error = %v, expected %v", err, tt.err)
			}
			if consumed != tt.consumed {
				t.Errorf("Expected %d bytes consumed, got %d", tt.consumed, consumed)
			}
			assertPackets(t, pkts, tt.want)
		})
	}
}

func TestDecodeChunked(t *testing.T) {
	stream := pahoStream(t)

	_, whole, err := Decode(stream)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(whole) != 6 {
		t.Fatalf("Expected 6 packets from whole stream, got %d", len(whole))
	}

	for _, size := range []int{1, 2, 3, 7, 64, 1000, len(stream)} {
		var (
			buf []byte
			got []Packet
		)
		for off := 0; off < len(stream); off += size {
			end := min(off+size, len(stream))
			buf = append(buf, stream[off:end]...)

			n, pkts, err := Decode(buf)
			if err != nil {
				t.Fatalf("chunk size %d: Decode() error = %v", size, err)
			}
			got = append(got, pkts...)
			buf = buf[n:]
		}
		if len(buf) != 0 {
			t.Errorf("chunk size %d: expected empty buffer, %d bytes left", size, len(buf))
		}
		assertPackets(t, got, whole)
	}
}

func TestDecodeMatchesPaho(t *testing.T) {
	pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pub.TopicName = "sensors/temp"
	pub.Qos = 1
	pub.MessageID = 42
	pub.Payload = bytes.Repeat([]byte{0xAB}, 20000)

	var buf bytes.Buffer
	if err := pub.Write(&buf); err != nil {
		t.Fatalf("Failed to write PUBLISH packet: %v", err)
	}

	consumed, pkts, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if consumed != buf.Len() {
		t.Errorf("Expected %d bytes consumed, got %d", buf.Len(), consumed)
	}
	if len(pkts) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(pkts))
	}
	if pkts[0].Type() != Publish {
		t.Errorf("Expected PUBLISH, got %s", TypeName(pkts[0].Command))
	}
	if pkts[0].Flags() != 0x02 {
		t.Errorf("Expected QoS 1 flags 0x02, got 0x%02x", pkts[0].Flags())
	}

	// Re-frame and let paho parse it back.
	framed, err := Frame(pkts[0].Command, pkts[0].Payload)
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	cp, err := packets.ReadPacket(bytes.NewReader(framed))
	if err != nil {
		t.Fatalf("paho ReadPacket() error = %v", err)
	}
	got, ok := cp.(*packets.PublishPacket)
	if !ok {
		t.Fatalf("Expected *packets.PublishPacket, got %T", cp)
	}
	if got.TopicName != pub.TopicName || got.MessageID != pub.MessageID || !bytes.Equal(got.Payload, pub.Payload) {
		t.Errorf("Re-framed packet differs: topic=%q mid=%d len=%d", got.TopicName, got.MessageID, len(got.Payload))
	}
}

func TestDecodePayloadIsCopied(t *testing.T) {
	buf := []byte("\x30\x05hello")
	_, pkts, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	buf[2] = 'j'
	if string(pkts[0].Payload) != "hello" {
		t.Errorf("Expected payload to survive buffer reuse, got %q", pkts[0].Payload)
	}
}

func TestLengthRoundTrip(t *testing.T) {
	tests := []struct {
		value int
		size  int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{268435455, 4},
	}

	for _, tt := range tests {
		enc, err := EncodeLength(tt.value)
		if err != nil {
			t.Fatalf("EncodeLength(%d) error = %v", tt.value, err)
		}
		if len(enc) != tt.size {
			t.Errorf("EncodeLength(%d) expected %d bytes, got %d", tt.value, tt.size, len(enc))
		}

		value, n, err := DecodeLength(enc)
		if err != nil {
			t.Fatalf("DecodeLength(%x) error = %v", enc, err)
		}
		if value != tt.value || n != tt.size {
			t.Errorf("DecodeLength(%x) = (%d, %d), expected (%d, %d)", enc, value, n, tt.value, tt.size)
		}
	}
}

func TestEncodeLengthOutOfRange(t *testing.T) {
	for _, n := range []int{-1, MaxRemainingLength + 1} {
		if _, err := EncodeLength(n); !errors.Is(err, ErrRemainingLength) {
			t.Errorf("EncodeLength(%d) expected ErrRemainingLength, got %v", n, err)
		}
	}
}

func TestTypeName(t *testing.T) {
	tests := map[byte]string{
		0x10: "CONNECT",
		0x32: "PUBLISH",
		0x62: "PUBREL",
		0xe0: "DISCONNECT",
		0x00: "RESERVED",
	}
	for cmd, want := range tests {
		if got := TypeName(cmd); got != want {
			t.Errorf("TypeName(0x%02x) = %s, expected %s", cmd, got, want)
		}
	}
}

// pahoStream serializes a mix of packets with the paho encoder.
func pahoStream(t *testing.T) []byte {
	t.Helper()

	conn := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)

	sub := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sub.MessageID = 7
	sub.Topics = []string{"a/b", "c/#"}
	sub.Qoss = []byte{0, 1}

	small := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	small.TopicName = "t"
	small.Payload = []byte("x")

	large := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	large.TopicName = "bulk"
	large.Payload = bytes.Repeat([]byte("z"), 300)

	ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
	ack.MessageID = 9

	ping := packets.NewControlPacket(packets.Pingresp)

	var buf bytes.Buffer
	for _, p := range []packets.ControlPacket{conn, sub, small, large, ack, ping} {
		if err := p.Write(&buf); err != nil {
			t.Fatalf("Failed to write %s: %v", p.String(), err)
		}
	}
	return buf.Bytes()
}

func assertPackets(t *testing.T, got, want []Packet) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("Expected %d packets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Command != want[i].Command {
			t.Errorf("packet %d: expected command 0x%02x, got 0x%02x", i, want[i].Command, got[i].Command)
		}
		if !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("packet %d: expected payload %q, got %q", i, want[i].Payload, got[i].Payload)
		}
	}
}
