// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/binary"
	"errors"

	"github.com/absmach/gmqtt/pkg/codec"
)

var errShortPacket = errors.New("packet too short")

// connackCode returns the CONNACK return code, or reason code on MQTT 5.
func connackCode(pkt codec.Packet) byte {
	if len(pkt.Payload) < 2 {
		return 0xff
	}
	return pkt.Payload[1]
}

// publishMID reads the message id that follows the topic of a QoS 1 or 2
// PUBLISH.
func publishMID(body []byte) (uint16, error) {
	if len(body) < 2 {
		return 0, errShortPacket
	}
	off := 2 + int(binary.BigEndian.Uint16(body))
	if len(body) < off+2 {
		return 0, errShortPacket
	}
	return binary.BigEndian.Uint16(body[off:]), nil
}
