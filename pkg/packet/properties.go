// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packet

import (
	"encoding/binary"

	"github.com/absmach/gmqtt/pkg/codec"
)

// Property identifiers.
const (
	propPayloadFormat          byte = 0x01
	propMessageExpiryInterval  byte = 0x02
	propContentType            byte = 0x03
	propResponseTopic          byte = 0x08
	propCorrelationData        byte = 0x09
	propSubscriptionIdentifier byte = 0x0B
	propSessionExpiryInterval  byte = 0x11
	propRequestProblemInfo     byte = 0x17
	propWillDelayInterval      byte = 0x18
	propRequestResponseInfo    byte = 0x19
	propReasonString           byte = 0x1F
	propReceiveMaximum         byte = 0x21
	propTopicAliasMaximum      byte = 0x22
	propTopicAlias             byte = 0x23
	propMaximumPacketSize      byte = 0x27
	propUserProperty           byte = 0x26
)

// appendProperties appends the length-prefixed property block of p.
// A nil p encodes as an empty block.
func appendProperties(dst []byte, p *Properties) ([]byte, error) {
	var body []byte
	if p != nil {
		body = p.encode()
	}
	dst, err := codec.AppendLength(dst, len(body))
	if err != nil {
		return nil, err
	}
	return append(dst, body...), nil
}

func (p *Properties) empty() bool {
	return p == nil || len(p.encode()) == 0
}

func (p *Properties) encode() []byte {
	var b []byte

	if p.PayloadFormat != nil {
		b = append(b, propPayloadFormat, *p.PayloadFormat)
	}
	if p.MessageExpiryInterval != nil {
		b = appendUint32(append(b, propMessageExpiryInterval), *p.MessageExpiryInterval)
	}
	if p.ContentType != "" {
		b = appendString(append(b, propContentType), p.ContentType)
	}
	if p.ResponseTopic != "" {
		b = appendString(append(b, propResponseTopic), p.ResponseTopic)
	}
	if p.CorrelationData != nil {
		b = appendBinary(append(b, propCorrelationData), p.CorrelationData)
	}
	if p.SubscriptionIdentifier != nil {
		// Identifiers above the varint range are rejected by brokers anyway.
		b, _ = codec.AppendLength(append(b, propSubscriptionIdentifier), int(*p.SubscriptionIdentifier))
	}
	if p.SessionExpiryInterval != nil {
		b = appendUint32(append(b, propSessionExpiryInterval), *p.SessionExpiryInterval)
	}
	if p.RequestProblemInfo != nil {
		b = append(b, propRequestProblemInfo, *p.RequestProblemInfo)
	}
	if p.WillDelayInterval != nil {
		b = appendUint32(append(b, propWillDelayInterval), *p.WillDelayInterval)
	}
	if p.RequestResponseInfo != nil {
		b = append(b, propRequestResponseInfo, *p.RequestResponseInfo)
	}
	if p.ReasonString != "" {
		b = appendString(append(b, propReasonString), p.ReasonString)
	}
	if p.ReceiveMaximum != nil {
		b = appendUint16(append(b, propReceiveMaximum), *p.ReceiveMaximum)
	}
	if p.TopicAliasMaximum != nil {
		b = appendUint16(append(b, propTopicAliasMaximum), *p.TopicAliasMaximum)
	}
	if p.TopicAlias != nil {
		b = appendUint16(append(b, propTopicAlias), *p.TopicAlias)
	}
	if p.MaximumPacketSize != nil {
		b = appendUint32(append(b, propMaximumPacketSize), *p.MaximumPacketSize)
	}
	for _, up := range p.UserProperties {
		b = append(b, propUserProperty)
		b = appendString(b, up.Key)
		b = appendString(b, up.Value)
	}

	return b
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func appendString(b []byte, s string) []byte {
	b = appendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendBinary(b []byte, v []byte) []byte {
	b = appendUint16(b, uint16(len(v)))
	return append(b, v...)
}
